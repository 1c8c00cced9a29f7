package dbpebble

import (
	"github.com/cockroachdb/pebble"
)

// ForEachSector walks the stored sectors in order until fn returns false.
// The value is only valid during the call.
func (s *SectorStore) ForEachSector(fn func(sector uint32, value []byte) bool) error {
	lb, ub := BoundsSector()
	it, err := s.DB.NewIter(&pebble.IterOptions{LowerBound: lb, UpperBound: ub})
	if err != nil {
		return err
	}
	defer it.Close()

	for ok := it.First(); ok; ok = it.Next() {
		sector, err := ParseKeySector(it.Key())
		if err != nil {
			return err
		}
		if !fn(sector, it.Value()) {
			break
		}
	}
	return it.Error()
}

// SectorCount counts the stored sectors.
func (s *SectorStore) SectorCount() (int, error) {
	n := 0
	err := s.ForEachSector(func(uint32, []byte) bool {
		n++
		return true
	})
	return n, err
}
