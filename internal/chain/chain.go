// Package chain tracks the block tree the coin store writes against. Each
// block gets a dense BlockAlias; blocks start uncommitted (writable) and
// are committed one at a time on top of the tip.
package chain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/database/dbsqlite"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/types"
)

var (
	ErrUnknownBlock   = errors.New("unknown block")
	ErrNotCommittable = errors.New("block cannot be committed")
)

// Store persists block rows. nil keeps the chain in memory only.
type Store interface {
	SaveBlock(ctx context.Context, b dbsqlite.BlockRow) error
	LoadBlocks(ctx context.Context) ([]dbsqlite.BlockRow, error)
}

type Block struct {
	Alias     types.BlockAlias `json:"alias"`
	Parent    types.BlockAlias `json:"parent"`
	Height    uint32           `json:"height"`
	Committed bool             `json:"committed"`
	ID        *chainhash.Hash  `json:"id,omitempty"`
}

type Chain struct {
	mu         sync.Mutex
	store      Store
	pruneDepth uint32

	nodes []node
	main  []types.BlockAlias
	ids   map[types.BlockAlias]chainhash.Hash

	lineage atomic.Pointer[Lineage]
}

// New loads the tracked blocks from store, or starts a fresh tree rooted in
// the genesis block of params.
func New(ctx context.Context, params *chaincfg.Params, store Store, pruneDepth uint32) (*Chain, error) {
	c := &Chain{
		store:      store,
		pruneDepth: pruneDepth,
		ids:        make(map[types.BlockAlias]chainhash.Hash),
	}

	var rows []dbsqlite.BlockRow
	if store != nil {
		var err error
		rows, err = store.LoadBlocks(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load blocks")
		}
	}

	if len(rows) == 0 {
		genesis := dbsqlite.BlockRow{Alias: 1, Committed: true, ID: *params.GenesisHash}
		if store != nil {
			if err := store.SaveBlock(ctx, genesis); err != nil {
				return nil, err
			}
		}
		rows = append(rows, genesis)
		logging.L.Info().Str("network", params.Name).Stringer("genesis", params.GenesisHash).Msg("new block tree")
	}

	if rows[0].ID != *params.GenesisHash {
		return nil, errors.Errorf("stored genesis %s does not belong to %s", rows[0].ID, params.Name)
	}
	if err := c.restore(rows); err != nil {
		return nil, err
	}

	c.publish()
	logging.L.Info().Int("blocks", len(c.nodes)).Uint32("tip_height", uint32(len(c.main)-1)).Msg("block tree loaded")
	return c, nil
}

func (c *Chain) restore(rows []dbsqlite.BlockRow) error {
	for i, r := range rows {
		if r.Alias != uint32(i+1) {
			return errors.Errorf("block aliases not dense: row %d holds alias %d", i, r.Alias)
		}
		if i > 0 && (r.Parent == 0 || r.Parent > uint32(i)) {
			return errors.Errorf("block %d has dangling parent %d", r.Alias, r.Parent)
		}
		c.nodes = append(c.nodes, node{parent: types.BlockAlias(r.Parent), height: r.Height})
		if !r.Committed {
			continue
		}
		if int(r.Height) != len(c.main) {
			return errors.Errorf("committed block %d at height %d, expected %d", r.Alias, r.Height, len(c.main))
		}
		c.main = append(c.main, types.BlockAlias(r.Alias))
		c.ids[types.BlockAlias(r.Alias)] = r.ID
	}
	return nil
}

func (c *Chain) publish() {
	c.lineage.Store(&Lineage{nodes: c.nodes, main: c.main, pruneDepth: c.pruneDepth})
}

// Lineage returns the latest snapshot. It never changes after the call.
func (c *Chain) Lineage() *Lineage {
	return c.lineage.Load()
}

// CurrentLineage is Lineage for consumers that only need the
// types.Lineage view.
func (c *Chain) CurrentLineage() types.Lineage {
	return c.Lineage()
}

// OpenBlock creates an uncommitted child of parent.
func (c *Chain) OpenBlock(ctx context.Context, parent types.BlockAlias) (types.BlockAlias, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.lineage.Load()
	if !l.known(parent) {
		return types.Undefined, errors.Wrapf(ErrUnknownBlock, "parent %d", parent)
	}
	if len(c.nodes) >= int(types.MaxBlockAlias) {
		return types.Undefined, errors.New("block aliases exhausted")
	}

	alias := types.BlockAlias(len(c.nodes) + 1)
	n := node{parent: parent, height: l.node(parent).height + 1}
	if c.store != nil {
		row := dbsqlite.BlockRow{Alias: uint32(alias), Parent: uint32(parent), Height: n.height}
		if err := c.store.SaveBlock(ctx, row); err != nil {
			return types.Undefined, err
		}
	}
	c.nodes = append(c.nodes, n)
	c.publish()

	logging.L.Debug().Stringer("alias", alias).Stringer("parent", parent).Uint32("height", n.height).Msg("opened block")
	return alias, nil
}

// CommitBlock freezes alias as the new tip. Its parent has to be the
// current tip.
func (c *Chain) CommitBlock(ctx context.Context, alias types.BlockAlias, id chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.lineage.Load()
	if !l.known(alias) {
		return errors.Wrapf(ErrUnknownBlock, "block %d", alias)
	}
	if l.committed(alias) {
		return errors.Wrapf(ErrNotCommittable, "block %d already committed", alias)
	}
	n := l.node(alias)
	if n.parent != l.Tip() {
		return errors.Wrapf(ErrNotCommittable, "block %d builds on %d, tip is %d", alias, n.parent, l.Tip())
	}

	if c.store != nil {
		row := dbsqlite.BlockRow{
			Alias: uint32(alias), Parent: uint32(n.parent), Height: n.height, Committed: true, ID: id,
		}
		if err := c.store.SaveBlock(ctx, row); err != nil {
			return err
		}
	}
	c.main = append(c.main, alias)
	c.ids[alias] = id
	c.publish()

	logging.L.Info().Stringer("alias", alias).Uint32("height", n.height).Stringer("id", &id).Msg("committed block")
	return nil
}

func (c *Chain) Block(alias types.BlockAlias) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.lineage.Load()
	if !l.known(alias) {
		return Block{}, errors.Wrapf(ErrUnknownBlock, "block %d", alias)
	}
	n := l.node(alias)
	b := Block{Alias: alias, Parent: n.parent, Height: n.height, Committed: l.committed(alias)}
	if id, ok := c.ids[alias]; ok {
		b.ID = &id
	}
	return b, nil
}

func (c *Chain) Tip() Block {
	b, _ := c.Block(c.Lineage().Tip())
	return b
}
