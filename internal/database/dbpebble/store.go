package dbpebble

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/setavenger/sozudb/internal/logging"
)

// SectorStore keeps final tier packs in pebble, one key per sector.
type SectorStore struct {
	DB *pebble.DB
}

func NewStore(db *pebble.DB) *SectorStore {
	return &SectorStore{DB: db}
}

// Open is OpenDB plus NewStore.
func Open(path string) (*SectorStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *SectorStore) TryGet(sector uint32) ([]byte, bool, error) {
	val, closer, err := s.DB.Get(KeySector(sector))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Set is synced: the pack store clears its journal right after.
func (s *SectorStore) Set(sector uint32, value []byte) error {
	err := s.DB.Set(KeySector(sector), value, pebble.Sync)
	if err != nil {
		logging.L.Err(err).Uint32("sector", sector).Msg("failed to write sector")
	}
	return err
}

func (s *SectorStore) Close() error {
	err := s.DB.Close()
	if err != nil {
		logging.L.Err(err).Msg("failed to close pebble")
	}
	return err
}
