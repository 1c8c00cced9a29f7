package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/storage"
	"github.com/setavenger/sozudb/internal/types"
)

func seededExplorer(t *testing.T) *Explorer {
	t.Helper()
	dir := t.TempDir()
	layout := storage.Layout{
		LayersPath:    filepath.Join(dir, "layers"),
		FinalTierPath: filepath.Join(dir, "final"),
		SectorCount:   2,
		SectorSizes:   []int{1024},
		FinalTier:     storage.FinalTierMemory,
	}
	store, err := layout.PrepareShard(0)
	require.NoError(t, err)

	a := coinpack.NewArena(1 << 12)
	op := types.Outpoint{TxID: chainhash.Hash{1}, Index: 3}
	c := coinpack.NewCoin(a, &op, true,
		[]types.CoinEvent{types.ProductionOf(2)}, types.NewPayload(150_000_000, 0, []byte{0x51}))
	require.NoError(t, store.Write(coinpack.Empty(a, 0, 1).WithExtraCoin(a, c)))
	require.NoError(t, store.Close())

	e, err := newExplorerAt(layout, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPrintSector(t *testing.T) {
	e := seededExplorer(t)
	var out bytes.Buffer
	require.NoError(t, e.PrintSector(&out, 0, 1, true))

	assert.Regexp(t, `Coins\s+: 1\n`, out.String())
	assert.Contains(t, out.String(), "1.5 BTC")
	assert.Contains(t, out.String(), ":3")
}

func TestPrintStats(t *testing.T) {
	e := seededExplorer(t)
	var out bytes.Buffer
	require.NoError(t, e.PrintStats(&out))
	assert.Contains(t, out.String(), "SATURATED")
}

func TestPrintJournal(t *testing.T) {
	e := seededExplorer(t)
	var out bytes.Buffer
	require.NoError(t, e.PrintJournal(&out))
	assert.Contains(t, out.String(), "empty")

	require.NoError(t, os.WriteFile(packstore.JournalPath(e.dir), []byte{1, 2, 3}, 0640))
	out.Reset()
	require.NoError(t, e.PrintJournal(&out))
	assert.Contains(t, out.String(), "invalid")
}

func TestPrintBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	store, err := dbsqlite.OpenBlockStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveBlock(context.Background(), dbsqlite.BlockRow{Alias: 1, Height: 0, Committed: true}))
	require.NoError(t, store.SaveBlock(context.Background(), dbsqlite.BlockRow{Alias: 2, Parent: 1, Height: 1}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, PrintBlocks(context.Background(), &out, path))
	assert.Contains(t, out.String(), "COMMITTED")
	assert.Equal(t, 3, bytes.Count(out.Bytes(), []byte("\n")))
}
