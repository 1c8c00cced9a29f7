package sozu

import (
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/types"
)

// commit writes p, the new content of its sector in layer, cascading the
// excess into deeper layers when p is over budget.
func (t *Table) commit(layer int, p coinpack.CoinPack, lineage types.Lineage) error {
	if p.SizeInBytes() <= t.store.SectorBudget(layer) {
		return t.store.Write(p)
	}
	packs, err := t.cascade(layer, p, lineage)
	if err != nil {
		return err
	}
	return t.store.Write(packs...)
}

// cascade brings p under the budget of its layer, first by pruning, then by
// moving its leading coins into the same sector of the next layer, and so on
// down. It returns every touched pack, at most one per layer.
func (t *Table) cascade(layer int, p coinpack.CoinPack, lineage types.Lineage) ([]coinpack.CoinPack, error) {
	sector := p.SectorIndex()
	last := t.store.LayerCount() - 1

	var (
		touched []coinpack.CoinPack
		folded  []types.OutpointSig
	)
	for {
		budget := t.store.SectorBudget(layer)
		if p.SizeInBytes() <= budget {
			touched = append(touched, p)
			break
		}

		pruned, sigs := p.WithPruning(t.arena, lineage, t.hash)
		if len(sigs) > 0 {
			logging.L.Debug().Int("layer", layer).Uint32("sector", sector).Int("coins", len(sigs)).Msg("pruned coins")
			if layer > 0 {
				folded = append(folded, sigs...)
			}
			p = pruned
			if p.SizeInBytes() <= budget {
				touched = append(touched, p)
				break
			}
		}

		if layer == last {
			logging.L.Error().
				Int("layer", layer).
				Uint32("sector", sector).
				Int("size", p.SizeInBytes()).
				Int("budget", budget).
				Msg("deepest layer overflows")
			return nil, errors.Wrapf(ErrOverflowExhausted, "layer %d sector %d", layer, sector)
		}

		sigCost := 0
		if layer == 0 && !p.OutpointSigsOverflow() {
			sigCost = types.SizeOutpointSig
		}
		n := coinsToMove(p, budget, budget/4, sigCost)

		next, err := t.store.Read(layer+1, sector)
		if err != nil {
			return nil, err
		}
		next = next.WithAppendedCoins(t.arena, p, n)
		rest := p.WithSkippedCoins(t.arena, n)
		if layer == 0 {
			rest = t.withSigs(rest, t.leadingSigs(p, n))
		}
		touched = append(touched, rest)

		logging.L.Debug().Int("layer", layer).Uint32("sector", sector).Int("coins", n).Msg("cascaded coins")
		p = next
		layer++
	}

	if len(folded) > 0 {
		return t.foldIntoLayer0(touched, sector, folded)
	}
	return touched, nil
}

// coinsToMove picks how many leading coins leave p: at least chunk bytes,
// and enough for the rest to fit budget once each moved coin costs sigCost
// filter bytes.
func coinsToMove(p coinpack.CoinPack, budget, chunk, sigCost int) int {
	n := p.CountCoinsAbove(chunk)
	if n == 0 {
		n = 1
	}
	size := p.SizeInBytes()
	for n < p.CoinCount() && size-p.LeadingCoinsSize(n)+sigCost*n > budget {
		n++
	}
	return n
}

func (t *Table) leadingSigs(p coinpack.CoinPack, n int) []types.OutpointSig {
	sigs := make([]types.OutpointSig, 0, n)
	i := 0
	p.ForEachCoin(func(_ int, c types.Coin) bool {
		if i == n {
			return false
		}
		op := c.Outpoint()
		sigs = append(sigs, types.SigFromHash(t.hash.Hash(&op)))
		i++
		return true
	})
	return sigs
}

// withSigs extends the filter of the layer 0 pack p, saturating it instead
// when the signatures would not fit the sector.
func (t *Table) withSigs(p coinpack.CoinPack, sigs []types.OutpointSig) coinpack.CoinPack {
	q := p.WithExtraOutpointSigs(t.arena, sigs)
	if q.SizeInBytes() > t.store.SectorBudget(0) {
		logging.L.Warn().Uint32("sector", p.SectorIndex()).Msg("saturating layer 0 filter")
		return p.WithSaturatedFilter(t.arena)
	}
	return q
}

// foldIntoLayer0 adds the signatures of coins pruned below layer 0 to the
// layer 0 filter, so the filter still covers every outpoint that ever left
// layer 0.
func (t *Table) foldIntoLayer0(
	touched []coinpack.CoinPack, sector uint32, sigs []types.OutpointSig,
) ([]coinpack.CoinPack, error) {
	for i, p := range touched {
		if p.LayerIndex() == 0 {
			touched[i] = t.withSigs(p, sigs)
			return touched, nil
		}
	}
	p0, err := t.store.Read(0, sector)
	if err != nil {
		return nil, err
	}
	return append([]coinpack.CoinPack{t.withSigs(p0, sigs)}, touched...), nil
}

// insertDeep stores a new oversized coin in the deepest layer and records
// its signature in layer 0.
func (t *Table) insertDeep(c types.Coin, hash uint64, lineage types.Lineage) error {
	sector := t.sectorOf(hash)
	deepest := t.store.LayerCount() - 1

	pd, err := t.store.Read(deepest, sector)
	if err != nil {
		return err
	}
	pd = pd.WithExtraCoin(t.arena, c)

	var folded []types.OutpointSig
	if budget := t.store.SectorBudget(deepest); pd.SizeInBytes() > budget {
		pruned, sigs := pd.WithPruning(t.arena, lineage, t.hash)
		if pruned.SizeInBytes() > budget {
			return errors.Wrapf(ErrOverflowExhausted, "layer %d sector %d", deepest, sector)
		}
		pd, folded = pruned, sigs
	}

	p0, err := t.store.Read(0, sector)
	if err != nil {
		return err
	}
	p0 = t.withSigs(p0, append(folded, types.SigFromHash(hash)))
	return t.store.Write(p0, pd)
}
