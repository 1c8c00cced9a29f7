// Package hashing maps outpoints onto shards, sectors and filter
// signatures with a keyed SipHash, so that an adversary choosing txids
// cannot pile coins into one sector.
package hashing

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/aead/siphash"
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/types"
)

const SecretSize = 16

type SipHasher struct {
	key [SecretSize]byte
}

func NewSipHasher(key [SecretSize]byte) *SipHasher {
	return &SipHasher{key: key}
}

// Hash is SipHash-2-4 over the 36 byte serialized outpoint.
func (h *SipHasher) Hash(op *types.Outpoint) uint64 {
	var buf [types.SizeOutpoint]byte
	op.Write(buf[:])
	return siphash.Sum64(buf[:], &h.key)
}

// ShardOf routes on the high half so shard and sector stay independent.
func ShardOf(hash uint64, shardCount int) int {
	return int((hash >> 32) % uint64(shardCount))
}

func SectorOf(hash uint64, sectorCount uint32) uint32 {
	return uint32(hash % uint64(sectorCount))
}

// LoadOrCreateSecret reads the hash key at path, generating it on first
// use. Losing the key makes every stored sector unreachable.
func LoadOrCreateSecret(path string) ([SecretSize]byte, error) {
	var key [SecretSize]byte

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != SecretSize {
			return key, errors.Errorf("hash secret %s holds %d bytes, want %d", path, len(data), SecretSize)
		}
		copy(key[:], data)
		return key, nil
	case !os.IsNotExist(err):
		return key, errors.Wrap(err, "read hash secret")
	}

	if _, err = rand.Read(key[:]); err != nil {
		return key, errors.Wrap(err, "generate hash secret")
	}
	if err = os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return key, err
	}
	if err = os.WriteFile(path, key[:], 0600); err != nil {
		return key, errors.Wrap(err, "write hash secret")
	}
	logging.L.Info().Str("path", path).Msg("generated new hash secret")
	return key, nil
}
