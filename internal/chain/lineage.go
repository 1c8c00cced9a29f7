package chain

import (
	"github.com/setavenger/sozudb/internal/types"
)

type node struct {
	parent types.BlockAlias
	height uint32
}

// Lineage is an immutable view of the block tree at one point in time. It
// shares the append-only backing arrays of the Chain and only reads below
// the lengths captured when it was published.
type Lineage struct {
	nodes      []node
	main       []types.BlockAlias // main[h] is the committed block at height h
	pruneDepth uint32
}

var _ types.Lineage = (*Lineage)(nil)

func (l *Lineage) known(a types.BlockAlias) bool {
	return a != types.Undefined && int(a) <= len(l.nodes)
}

func (l *Lineage) node(a types.BlockAlias) node {
	return l.nodes[a-1]
}

func (l *Lineage) committed(a types.BlockAlias) bool {
	if !l.known(a) {
		return false
	}
	h := l.node(a).height
	return int(h) < len(l.main) && l.main[h] == a
}

// TipHeight is the height of the last committed block.
func (l *Lineage) TipHeight() uint32 {
	return uint32(len(l.main) - 1)
}

func (l *Lineage) Tip() types.BlockAlias {
	return l.main[len(l.main)-1]
}

// Height returns the height of a, false if a is unknown.
func (l *Lineage) Height(a types.BlockAlias) (uint32, bool) {
	if !l.known(a) {
		return 0, false
	}
	return l.node(a).height, true
}

// IsAncestorOrSelf reports whether a lies on the path from b to genesis.
func (l *Lineage) IsAncestorOrSelf(a, b types.BlockAlias) bool {
	if !l.known(a) || !l.known(b) {
		return false
	}
	ha := l.node(a).height
	for {
		if a == b {
			return true
		}
		nb := l.node(b)
		if nb.height <= ha {
			return false
		}
		if l.committed(b) {
			// everything below a committed block is committed
			return l.committed(a)
		}
		b = nb.parent
	}
}

func (l *Lineage) sameBranch(a, b types.BlockAlias) bool {
	return l.IsAncestorOrSelf(a, b) || l.IsAncestorOrSelf(b, a)
}

func (l *Lineage) IsUncommitted(context types.BlockAlias) bool {
	return l.known(context) && !l.committed(context)
}

// TryGetEventsInContext picks the events visible from context, that is the
// ones recorded in context or one of its ancestors.
func (l *Lineage) TryGetEventsInContext(
	events []types.CoinEvent, context types.BlockAlias,
) (production, consumption types.BlockAlias, ok bool) {
	if !l.known(context) {
		return types.Undefined, types.Undefined, false
	}
	for _, e := range events {
		if !l.IsAncestorOrSelf(e.Block(), context) {
			continue
		}
		switch e.Kind() {
		case types.Production:
			production = e.Block()
		case types.Consumption:
			consumption = e.Block()
		}
	}
	return production, consumption, true
}

// IsAddConsistent allows at most one production and one consumption per
// branch. A consumption needs a production at or above it, a production
// must not sit below an existing consumption.
func (l *Lineage) IsAddConsistent(events []types.CoinEvent, toAdd types.CoinEvent) bool {
	block := toAdd.Block()
	if !l.known(block) {
		return false
	}

	produced := false
	for _, e := range events {
		if e.Kind() == toAdd.Kind() && l.sameBranch(e.Block(), block) {
			return false
		}
		switch {
		case toAdd.Kind() == types.Consumption && e.Kind() == types.Production:
			if l.IsAncestorOrSelf(e.Block(), block) {
				produced = true
			}
		case toAdd.Kind() == types.Production && e.Kind() == types.Consumption:
			if e.Block() != block && l.IsAncestorOrSelf(e.Block(), block) {
				return false
			}
		}
	}
	return toAdd.Kind() == types.Production || produced
}

// IsCoinPrunable is true for a coin with no events left, and for a coin
// whose events are all committed and whose consumption is buried at least
// pruneDepth blocks below the tip.
func (l *Lineage) IsCoinPrunable(events []types.CoinEvent) bool {
	if len(events) == 0 {
		return true
	}
	buried := false
	tip := l.TipHeight()
	for _, e := range events {
		if !l.committed(e.Block()) {
			return false
		}
		if e.Kind() == types.Consumption && tip-l.node(e.Block()).height >= l.pruneDepth {
			buried = true
		}
	}
	return buried
}
