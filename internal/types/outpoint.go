package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	SizeTxID     = chainhash.HashSize
	SizeIndex    = 4
	SizeOutpoint = SizeTxID + SizeIndex
)

// Outpoint identifies one transaction output. Serialized as the raw txid
// followed by the little endian output index.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func NewOutpoint(txid chainhash.Hash, index uint32) Outpoint {
	return Outpoint{TxID: txid, Index: index}
}

// ParseOutpoint takes the txid in its usual (byte reversed) hex display form.
func ParseOutpoint(txidHex string, index uint32) (Outpoint, error) {
	h, err := chainhash.NewHashFromStr(txidHex)
	if err != nil {
		return Outpoint{}, err
	}
	return Outpoint{TxID: *h, Index: index}, nil
}

func OutpointFromWire(op wire.OutPoint) Outpoint {
	return Outpoint{TxID: op.Hash, Index: op.Index}
}

func (o *Outpoint) ToWire() wire.OutPoint {
	return wire.OutPoint{Hash: o.TxID, Index: o.Index}
}

// ReadOutpoint decodes the first SizeOutpoint bytes of b.
func ReadOutpoint(b []byte) Outpoint {
	_ = b[SizeOutpoint-1] // bounds check
	var o Outpoint
	copy(o.TxID[:], b[:SizeTxID])
	o.Index = binary.LittleEndian.Uint32(b[SizeTxID:SizeOutpoint])
	return o
}

// Write serializes the outpoint into the first SizeOutpoint bytes of b.
func (o *Outpoint) Write(b []byte) {
	_ = b[SizeOutpoint-1] // bounds check
	copy(b[:SizeTxID], o.TxID[:])
	binary.LittleEndian.PutUint32(b[SizeTxID:SizeOutpoint], o.Index)
}

func (o *Outpoint) Bytes() []byte {
	b := make([]byte, SizeOutpoint)
	o.Write(b)
	return b
}

// Compare orders by txid bytes first, then by index.
func (o *Outpoint) Compare(other *Outpoint) int {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// EqualsSerialized compares against an outpoint still in its binary form.
// The first txid byte is checked alone since most probes in a pack miss.
func (o *Outpoint) EqualsSerialized(b []byte) bool {
	if b[0] != o.TxID[0] {
		return false
	}
	if binary.LittleEndian.Uint32(b[SizeTxID:SizeOutpoint]) != o.Index {
		return false
	}
	return bytes.Equal(b[:SizeTxID], o.TxID[:])
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
