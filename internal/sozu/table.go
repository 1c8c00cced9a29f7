// Package sozu implements the coin table of one shard on top of a layered
// pack store: lookups through layer 0 and its filter, event merges, and the
// overflow cascade that pushes coins into deeper layers.
//
// A Table is driven by a single goroutine. Coins it returns alias its
// scratch arena or the storage mapping and are only valid until the next
// call.
package sozu

import (
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/hashing"
	"github.com/setavenger/sozudb/internal/types"
)

var ErrOverflowExhausted = errors.New("overflow exhausted the deepest layer")

// Store is the part of the pack store the table drives.
type Store interface {
	LayerCount() int
	SectorCount() uint32
	SectorBudget(layer int) int
	Read(layer int, sector uint32) (coinpack.CoinPack, error)
	Write(packs ...coinpack.CoinPack) error
}

type Config struct {
	// LargePayloadThreshold is the payload size above which new coins go
	// straight to the deepest layer. Zero disables the bypass.
	LargePayloadThreshold int
	ArenaSize             int
}

type Table struct {
	store        Store
	hash         types.OutpointHash
	arena        *coinpack.Arena
	sectorCount  uint32
	largePayload int
}

type GetResult struct {
	Status      Status
	Coin        types.Coin
	Production  types.BlockAlias
	Consumption types.BlockAlias
}

func New(store Store, hash types.OutpointHash, cfg Config) *Table {
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = 1 << 20
	}
	return &Table{
		store:        store,
		hash:         hash,
		arena:        coinpack.NewArena(cfg.ArenaSize),
		sectorCount:  store.SectorCount(),
		largePayload: cfg.LargePayloadThreshold,
	}
}

// location is where a coin was found.
type location struct {
	layer  int
	pack   coinpack.CoinPack
	coin   types.Coin
	offset int
}

func (t *Table) sectorOf(hash uint64) uint32 {
	return hashing.SectorOf(hash, t.sectorCount)
}

// locate looks op up in layer 0 then in the deeper layers. With useFilter a
// negative layer 0 filter probe ends the search early.
func (t *Table) locate(op *types.Outpoint, hash uint64, useFilter bool) (location, bool, error) {
	sector := t.sectorOf(hash)
	p0, err := t.store.Read(0, sector)
	if err != nil {
		return location{}, false, err
	}
	if c, off, ok := p0.TryGet(op); ok {
		return location{layer: 0, pack: p0, coin: c, offset: off}, true, nil
	}
	if useFilter && !p0.PositiveMatch(types.SigFromHash(hash)) {
		return location{}, false, nil
	}
	for layer := 1; layer < t.store.LayerCount(); layer++ {
		p, err := t.store.Read(layer, sector)
		if err != nil {
			return location{}, false, err
		}
		if c, off, ok := p.TryGet(op); ok {
			return location{layer: layer, pack: p, coin: c, offset: off}, true, nil
		}
	}
	return location{}, false, nil
}

func checkWriteContext(context types.BlockAlias, lineage types.Lineage) Status {
	if context == types.Undefined {
		return InvalidBlockHandle
	}
	if !lineage.IsUncommitted(context) {
		return InvalidContext
	}
	return Success
}

// Get resolves op against context.
func (t *Table) Get(
	op *types.Outpoint, hash uint64, context types.BlockAlias, lineage types.Lineage,
) (GetResult, error) {
	t.arena.Reset()
	if context == types.Undefined {
		return GetResult{Status: InvalidBlockHandle}, nil
	}

	loc, found, err := t.locate(op, hash, true)
	if err != nil {
		return GetResult{}, err
	}
	if !found {
		return GetResult{Status: OutpointNotFound}, nil
	}
	prod, cons, ok := lineage.TryGetEventsInContext(loc.coin.Events(), context)
	if !ok {
		return GetResult{Status: InvalidContext}, nil
	}
	return GetResult{Status: Success, Coin: loc.coin, Production: prod, Consumption: cons}, nil
}

// AddProduction records that op was created in context, creating the coin
// when it is not stored yet.
func (t *Table) AddProduction(
	op *types.Outpoint, hash uint64, isCoinbase bool, payload types.Payload,
	context types.BlockAlias, lineage types.Lineage,
) (Status, error) {
	t.arena.Reset()
	if st := checkWriteContext(context, lineage); st != Success {
		return st, nil
	}
	ev := types.ProductionOf(context)

	loc, found, err := t.locate(op, hash, true)
	if err != nil {
		return Success, err
	}
	if found {
		return t.extend(loc, ev, lineage)
	}

	c := coinpack.NewCoin(t.arena, op, isCoinbase, []types.CoinEvent{ev}, payload)
	if t.isLarge(payload) {
		// TODO: a coinbase can be oversized too, check it cannot show up
		// on two branches before it lands in the deepest layer
		return Success, t.insertDeep(c, hash, lineage)
	}

	p0, err := t.store.Read(0, t.sectorOf(hash))
	if err != nil {
		return Success, err
	}
	return Success, t.commit(0, p0.WithExtraCoin(t.arena, c), lineage)
}

// AddConsumption records that op was spent in context. A consumption never
// creates a coin.
func (t *Table) AddConsumption(
	op *types.Outpoint, hash uint64, context types.BlockAlias, lineage types.Lineage,
) (Status, error) {
	t.arena.Reset()
	if st := checkWriteContext(context, lineage); st != Success {
		return st, nil
	}

	loc, found, err := t.locate(op, hash, false)
	if err != nil {
		return Success, err
	}
	if !found {
		return OutpointNotFound, nil
	}
	return t.extend(loc, types.ConsumptionOf(context), lineage)
}

// Remove detaches the events recorded in context itself. Events inherited
// from ancestors of context are left alone.
func (t *Table) Remove(
	op *types.Outpoint, hash uint64, context types.BlockAlias, opt RemoveOption, lineage types.Lineage,
) (Status, error) {
	t.arena.Reset()
	if st := checkWriteContext(context, lineage); st != Success {
		return st, nil
	}

	loc, found, err := t.locate(op, hash, true)
	if err != nil {
		return Success, err
	}
	if !found {
		return OutpointNotFound, nil
	}
	prod, cons, ok := lineage.TryGetEventsInContext(loc.coin.Events(), context)
	if !ok {
		return InvalidContext, nil
	}

	p := loc.pack
	changed := false
	if opt&RemoveProduction != 0 && prod == context {
		p = p.WithLessCoinEvent(t.arena, loc.offset, types.ProductionOf(context))
		changed = true
	}
	if opt&RemoveConsumption != 0 && cons == context {
		p = p.WithLessCoinEvent(t.arena, loc.offset, types.ConsumptionOf(context))
		changed = true
	}
	if !changed {
		return Success, nil
	}
	return Success, t.store.Write(p)
}

// extend adds ev to a located coin.
func (t *Table) extend(loc location, ev types.CoinEvent, lineage types.Lineage) (Status, error) {
	if loc.coin.HasEvent(ev) {
		return Success, nil
	}
	if !lineage.IsAddConsistent(loc.coin.Events(), ev) {
		return InvalidContext, nil
	}
	p := loc.pack.WithExtraCoinEvent(t.arena, loc.offset, ev)
	return Success, t.commit(loc.layer, p, lineage)
}

func (t *Table) isLarge(payload types.Payload) bool {
	return t.largePayload > 0 && len(payload) > t.largePayload && t.store.LayerCount() > 1
}
