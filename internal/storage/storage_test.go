package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/coinpack"
)

func testLayout(t *testing.T, finalTier string) Layout {
	dir := t.TempDir()
	return Layout{
		LayersPath:    dir + "/layers",
		FinalTierPath: dir + "/final",
		SectorCount:   4,
		SectorSizes:   []int{512},
		FinalTier:     finalTier,
	}
}

func TestPrepareShardPerFinalTier(t *testing.T) {
	for _, tier := range []string{FinalTierPebble, FinalTierLevelDB, FinalTierMemory, FinalTierNone} {
		t.Run(tier, func(t *testing.T) {
			layout := testLayout(t, tier)
			store, err := layout.PrepareShard(1)
			require.NoError(t, err)
			defer store.Close()

			assert.Equal(t, tier != FinalTierNone, store.HasFinalTier())

			last := store.LayerCount() - 1
			p, err := store.Read(last, 3)
			require.NoError(t, err)
			assert.Equal(t, coinpack.HeaderSize, p.SizeInBytes())
		})
	}
}

func TestFinalTierPersistsAcrossOpens(t *testing.T) {
	layout := testLayout(t, FinalTierPebble)
	store, err := layout.PrepareShard(0)
	require.NoError(t, err)

	a := coinpack.NewArena(1 << 10)
	p := coinpack.Empty(a, 1, 2).WithExtraOutpointSig(a, 9)
	require.NoError(t, store.Write(p))
	require.NoError(t, store.Close())

	store, err = layout.OpenShard(0)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Read(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OutpointSigCount())
}

func TestUnknownFinalTier(t *testing.T) {
	_, err := testLayout(t, "redis").OpenShard(0)
	assert.Error(t, err)
}
