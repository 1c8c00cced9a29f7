package dataexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/packstore"
	"github.com/setavenger/sozudb/internal/types"
)

func TestWriteCoins(t *testing.T) {
	store, err := packstore.Open(packstore.Config{
		Dir:         t.TempDir(),
		SectorCount: 2,
		SectorSizes: []int{1024},
	}, packstore.NewMemoryKeyValueStore())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Initialize())

	a := coinpack.NewArena(1 << 12)
	op := types.Outpoint{TxID: chainhash.Hash{0xab}, Index: 1}
	c := coinpack.NewCoin(a, &op, false,
		[]types.CoinEvent{types.ProductionOf(2), types.ConsumptionOf(3)}, types.NewPayload(42, 7, []byte{0x51, 0x52}))
	require.NoError(t, store.Write(coinpack.Empty(a, 1, 1).WithExtraCoin(a, c)))

	var out bytes.Buffer
	n, err := WriteCoins(csv.NewWriter(&out), store, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, coinHeader, records[0])
	assert.Equal(t, []string{"5", "1", "1", op.TxID.String(), "1", "false", "42", "7", "5152"}, records[1][:9])
	assert.Len(t, records[1], len(coinHeader))
}

func TestExportBlocks(t *testing.T) {
	dir := t.TempDir()
	store, err := dbsqlite.OpenBlockStore(filepath.Join(dir, "blocks.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveBlock(ctx, dbsqlite.BlockRow{Alias: 1, Committed: true, ID: chainhash.Hash{1}}))
	require.NoError(t, store.SaveBlock(ctx, dbsqlite.BlockRow{Alias: 2, Parent: 1, Height: 1}))

	n, err := ExportBlocks(ctx, store, filepath.Join(dir, "export", "blocks.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
