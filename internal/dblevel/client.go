package dblevel

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/setavenger/sozudb/internal/logging"
)

const sectorKeyPrefix = 's'

// SectorStore keeps final tier packs in a leveldb instance.
type SectorStore struct {
	db *leveldb.DB
}

// OpenDBConnection opens a connection to the through path specified db instance
func OpenDBConnection(path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		logging.L.Err(err).Str("path", path).Msg("error opening db connection")
		return nil, err
	}
	return db, nil
}

func Open(path string) (*SectorStore, error) {
	db, err := OpenDBConnection(path)
	if err != nil {
		return nil, err
	}
	return &SectorStore{db: db}, nil
}

func sectorKey(sector uint32) []byte {
	k := make([]byte, 5)
	k[0] = sectorKeyPrefix
	binary.BigEndian.PutUint32(k[1:], sector)
	return k
}

func (s *SectorStore) TryGet(sector uint32) ([]byte, bool, error) {
	v, err := s.db.Get(sectorKey(sector), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		logging.L.Err(err).Uint32("sector", sector).Msg("error reading sector")
		return nil, false, err
	}
	// leveldb hands out a fresh slice
	return v, true, nil
}

func (s *SectorStore) Set(sector uint32, value []byte) error {
	err := s.db.Put(sectorKey(sector), value, &opt.WriteOptions{Sync: true})
	if err != nil {
		logging.L.Err(err).Uint32("sector", sector).Msg("error inserting sector")
	}
	return err
}

// ForEachSector walks the stored sectors in order until fn returns false.
func (s *SectorStore) ForEachSector(fn func(sector uint32, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{sectorKeyPrefix}), nil)
	defer iter.Release()
	for iter.Next() {
		if !fn(binary.BigEndian.Uint32(iter.Key()[1:]), iter.Value()) {
			break
		}
	}
	return iter.Error()
}
