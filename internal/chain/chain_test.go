package chain

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/types"
)

var (
	P = types.ProductionOf
	C = types.ConsumptionOf
)

func newChain(t *testing.T, pruneDepth uint32) *Chain {
	t.Helper()
	c, err := New(context.Background(), &chaincfg.RegressionNetParams, nil, pruneDepth)
	require.NoError(t, err)
	return c
}

func open(t *testing.T, c *Chain, parent types.BlockAlias) types.BlockAlias {
	t.Helper()
	a, err := c.OpenBlock(context.Background(), parent)
	require.NoError(t, err)
	return a
}

func commit(t *testing.T, c *Chain, a types.BlockAlias) {
	t.Helper()
	require.NoError(t, c.CommitBlock(context.Background(), a, chainhash.Hash{byte(a)}))
}

// tree builds genesis(1) <- 2 <- 3 and 2 <- 4, with 1 and 2 committed.
func tree(t *testing.T) *Chain {
	c := newChain(t, 2)
	b2 := open(t, c, 1)
	commit(t, c, b2)
	b3 := open(t, c, b2)
	b4 := open(t, c, b2)
	require.Equal(t, types.BlockAlias(3), b3)
	require.Equal(t, types.BlockAlias(4), b4)
	return c
}

func TestGenesis(t *testing.T) {
	c := newChain(t, 6)
	tip := c.Tip()
	assert.Equal(t, types.BlockAlias(1), tip.Alias)
	assert.Equal(t, uint32(0), tip.Height)
	assert.True(t, tip.Committed)
	require.NotNil(t, tip.ID)
	assert.Equal(t, *chaincfg.RegressionNetParams.GenesisHash, *tip.ID)
	assert.False(t, c.Lineage().IsUncommitted(1))
}

func TestOpenAndCommit(t *testing.T) {
	c := tree(t)
	l := c.Lineage()

	assert.True(t, l.IsUncommitted(3))
	assert.True(t, l.IsUncommitted(4))
	assert.False(t, l.IsUncommitted(2))
	assert.False(t, l.IsUncommitted(99))
	assert.False(t, l.IsUncommitted(types.Undefined))

	commit(t, c, 3)
	err := c.CommitBlock(context.Background(), 4, chainhash.Hash{4})
	assert.ErrorIs(t, err, ErrNotCommittable)
	err = c.CommitBlock(context.Background(), 3, chainhash.Hash{3})
	assert.ErrorIs(t, err, ErrNotCommittable)
	err = c.CommitBlock(context.Background(), 42, chainhash.Hash{})
	assert.ErrorIs(t, err, ErrUnknownBlock)
	_, err = c.OpenBlock(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownBlock)

	assert.True(t, l.IsUncommitted(3), "published snapshots never change")
	assert.False(t, c.Lineage().IsUncommitted(3))
	assert.Equal(t, types.BlockAlias(3), c.Tip().Alias)
}

func TestAncestry(t *testing.T) {
	c := tree(t)
	b5 := open(t, c, 4)
	l := c.Lineage()

	assert.True(t, l.IsAncestorOrSelf(1, b5))
	assert.True(t, l.IsAncestorOrSelf(2, b5))
	assert.True(t, l.IsAncestorOrSelf(4, b5))
	assert.True(t, l.IsAncestorOrSelf(b5, b5))
	assert.False(t, l.IsAncestorOrSelf(3, b5))
	assert.False(t, l.IsAncestorOrSelf(b5, 4))
	assert.False(t, l.IsAncestorOrSelf(3, 4))
}

func TestTryGetEventsInContext(t *testing.T) {
	l := tree(t).Lineage()
	events := []types.CoinEvent{P(2), C(4)}

	prod, cons, ok := l.TryGetEventsInContext(events, 3)
	require.True(t, ok)
	assert.Equal(t, types.BlockAlias(2), prod)
	assert.Equal(t, types.Undefined, cons)

	prod, cons, ok = l.TryGetEventsInContext(events, 4)
	require.True(t, ok)
	assert.Equal(t, types.BlockAlias(2), prod)
	assert.Equal(t, types.BlockAlias(4), cons)

	_, _, ok = l.TryGetEventsInContext(events, 77)
	assert.False(t, ok)
}

func TestIsAddConsistent(t *testing.T) {
	c := tree(t)
	b5 := open(t, c, 4)
	l := c.Lineage()

	assert.True(t, l.IsAddConsistent(nil, P(3)))
	assert.False(t, l.IsAddConsistent([]types.CoinEvent{P(2)}, P(3)), "second production on one branch")
	assert.True(t, l.IsAddConsistent([]types.CoinEvent{P(3)}, P(4)), "siblings are separate branches")

	assert.False(t, l.IsAddConsistent(nil, C(3)), "consumption needs a production")
	assert.False(t, l.IsAddConsistent([]types.CoinEvent{P(4)}, C(3)), "production on another branch")
	assert.True(t, l.IsAddConsistent([]types.CoinEvent{P(2)}, C(3)))
	assert.True(t, l.IsAddConsistent([]types.CoinEvent{P(3)}, C(3)), "spent in its own block")
	assert.True(t, l.IsAddConsistent([]types.CoinEvent{P(2), C(3)}, C(4)))
	assert.False(t, l.IsAddConsistent([]types.CoinEvent{P(2), C(4)}, C(b5)))

	assert.False(t, l.IsAddConsistent([]types.CoinEvent{C(4)}, P(b5)), "produced below its consumption")
	assert.False(t, l.IsAddConsistent(nil, P(99)))
}

func TestIsCoinPrunable(t *testing.T) {
	c := newChain(t, 2)
	tip := types.BlockAlias(1)
	for i := 0; i < 2; i++ {
		tip = open(t, c, tip)
		commit(t, c, tip)
	}
	// committed heights: 1->0, 2->1, 3->2
	l := c.Lineage()
	assert.True(t, l.IsCoinPrunable(nil))
	assert.False(t, l.IsCoinPrunable([]types.CoinEvent{P(2)}), "unspent")
	assert.False(t, l.IsCoinPrunable([]types.CoinEvent{P(2), C(3)}), "spent too recently")
	assert.True(t, l.IsCoinPrunable([]types.CoinEvent{P(1), C(1)}))

	open4 := open(t, c, 3)
	l = c.Lineage()
	assert.False(t, l.IsCoinPrunable([]types.CoinEvent{P(1), C(1), C(open4)}), "uncommitted event")
}

func TestChainPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks.db")

	store, err := dbsqlite.OpenBlockStore(path)
	require.NoError(t, err)
	c, err := New(ctx, &chaincfg.RegressionNetParams, store, 6)
	require.NoError(t, err)
	b2 := open(t, c, 1)
	commit(t, c, b2)
	b3 := open(t, c, b2)
	require.NoError(t, store.Close())

	store, err = dbsqlite.OpenBlockStore(path)
	require.NoError(t, err)
	defer store.Close()
	c, err = New(ctx, &chaincfg.RegressionNetParams, store, 6)
	require.NoError(t, err)

	assert.Equal(t, b2, c.Tip().Alias)
	assert.True(t, c.Lineage().IsUncommitted(b3))
	b, err := c.Block(b2)
	require.NoError(t, err)
	require.NotNil(t, b.ID)
	assert.Equal(t, chainhash.Hash{byte(b2)}, *b.ID)

	_, err = New(ctx, &chaincfg.MainNetParams, store, 6)
	assert.Error(t, err, "stored tree belongs to another network")
}
