package dbpebble

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectorStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "final"))
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.TryGet(3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(3, []byte{1, 2, 3}))
	require.NoError(t, s.Set(1, []byte{9}))
	require.NoError(t, s.Set(3, []byte{4, 5}))

	v, ok, err := s.TryGet(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{4, 5}, v)

	var seen []uint32
	require.NoError(t, s.ForEachSector(func(sector uint32, _ []byte) bool {
		seen = append(seen, sector)
		return true
	}))
	assert.Equal(t, []uint32{1, 3}, seen)

	n, err := s.SectorCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSectorKeyOrder(t *testing.T) {
	lb, ub := BoundsSector()
	assert.Less(t, string(lb), string(KeySector(1)))
	assert.Less(t, string(KeySector(255)), string(KeySector(256)))
	assert.Less(t, string(KeySector(1<<31)), string(ub))

	sector, err := ParseKeySector(KeySector(77))
	require.NoError(t, err)
	assert.Equal(t, uint32(77), sector)

	_, err = ParseKeySector([]byte{KSector})
	assert.Error(t, err)
}
