package coinpack

import (
	"encoding/binary"

	"github.com/setavenger/sozudb/internal/types"
)

// WithExtraCoin appends c after the existing coins.
func (p CoinPack) WithExtraCoin(a *Arena, c types.Coin) CoinPack {
	size := p.SizeInBytes() + c.SizeInBytes()
	b := NewBuilder(a.Alloc(size), p)
	b.AppendRange(p, p.CoinsOffset(), p.CoinCount())
	b.Append(c)
	return b.Pack()
}

// WithExtraCoinEvent attaches ev to the coin starting at offset.
func (p CoinPack) WithExtraCoinEvent(a *Arena, offset int, ev types.CoinEvent) CoinPack {
	c := p.CoinAt(offset)
	size := p.SizeInBytes() + types.SizeCoinEvent
	dst := a.Alloc(size)

	copy(dst, p[:offset])
	next := offset + len(c)
	types.WriteCoinWithExtraEvent(dst[offset:next+types.SizeCoinEvent], c, ev)
	copy(dst[next+types.SizeCoinEvent:], p[next:p.SizeInBytes()])

	out := CoinPack(dst)
	out.setSize(size)
	return out
}

// WithLessCoinEvent detaches ev from the coin starting at offset. The pack
// is returned as is when the coin does not carry ev.
func (p CoinPack) WithLessCoinEvent(a *Arena, offset int, ev types.CoinEvent) CoinPack {
	c := p.CoinAt(offset)
	i := c.IndexOfEvent(ev)
	if i < 0 {
		return p
	}
	size := p.SizeInBytes() - types.SizeCoinEvent
	dst := a.Alloc(size)

	copy(dst, p[:offset])
	next := offset + len(c)
	types.WriteCoinWithoutEvent(dst[offset:next-types.SizeCoinEvent], c, i)
	copy(dst[next-types.SizeCoinEvent:], p[next:p.SizeInBytes()])

	out := CoinPack(dst)
	out.setSize(size)
	return out
}

// WithExtraOutpointSig records sig as the most recent filter entry.
func (p CoinPack) WithExtraOutpointSig(a *Arena, sig types.OutpointSig) CoinPack {
	return p.WithExtraOutpointSigs(a, []types.OutpointSig{sig})
}

// WithExtraOutpointSigs records sigs in insertion order, the last one ending
// up most recent. Signatures already present are skipped. Going past
// MaxOutpointSigs saturates the filter.
func (p CoinPack) WithExtraOutpointSigs(a *Arena, sigs []types.OutpointSig) CoinPack {
	if p.OutpointSigsOverflow() {
		return p
	}
	fresh := make([]types.OutpointSig, 0, len(sigs))
	for _, s := range sigs {
		if p.hasSig(s) || containsSig(fresh, s) {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return p
	}
	count := p.OutpointSigCount()
	if count+len(fresh) > MaxOutpointSigs {
		return p.WithSaturatedFilter(a)
	}

	size := p.SizeInBytes() + len(fresh)*types.SizeOutpointSig
	dst := a.Alloc(size)
	copy(dst, p[:HeaderSize])
	off := HeaderSize
	for i := len(fresh) - 1; i >= 0; i-- {
		binary.LittleEndian.PutUint16(dst[off:], uint16(fresh[i]))
		off += types.SizeOutpointSig
	}
	copy(dst[off:], p[HeaderSize:p.SizeInBytes()])

	out := CoinPack(dst)
	out.setSigCount(count + len(fresh))
	out.setSize(size)
	return out
}

// WithLessOutpointSigs keeps only the keep most recent signatures.
func (p CoinPack) WithLessOutpointSigs(a *Arena, keep int) CoinPack {
	count := p.OutpointSigCount()
	if keep >= count {
		return p
	}
	if keep < 0 {
		keep = 0
	}
	dropped := (count - keep) * types.SizeOutpointSig
	size := p.SizeInBytes() - dropped
	dst := a.Alloc(size)

	keptEnd := HeaderSize + keep*types.SizeOutpointSig
	copy(dst, p[:keptEnd])
	copy(dst[keptEnd:], p[p.CoinsOffset():p.SizeInBytes()])

	out := CoinPack(dst)
	out.setSigCount(keep)
	out.setSize(size)
	return out
}

// WithSaturatedFilter drops every signature and flags the filter as
// overflowed, after which it matches everything.
func (p CoinPack) WithSaturatedFilter(a *Arena) CoinPack {
	if p.OutpointSigsOverflow() {
		return p
	}
	var out CoinPack
	if p.OutpointSigCount() == 0 {
		out = p.Clone(a)
	} else {
		out = p.WithLessOutpointSigs(a, 0)
	}
	out.setSigsOverflow(true)
	return out
}

// WithSkippedCoins drops the first n coins.
func (p CoinPack) WithSkippedCoins(a *Arena, n int) CoinPack {
	if n <= 0 {
		return p
	}
	if n > p.CoinCount() {
		n = p.CoinCount()
	}
	from := p.offsetOfCoin(n)
	head := p.CoinsOffset()
	size := head + p.SizeInBytes() - from
	dst := a.Alloc(size)
	copy(dst, p[:head])
	copy(dst[head:], p[from:p.SizeInBytes()])

	out := CoinPack(dst)
	out.setCoinCount(p.CoinCount() - n)
	out.setSize(size)
	return out
}

// WithAppendedCoins appends the first n coins of src after the coins of p.
func (p CoinPack) WithAppendedCoins(a *Arena, src CoinPack, n int) CoinPack {
	if n <= 0 {
		return p
	}
	size := p.SizeInBytes() + src.LeadingCoinsSize(n)
	b := NewBuilder(a.Alloc(size), p)
	b.AppendRange(p, p.CoinsOffset(), p.CoinCount())
	b.AppendRange(src, src.CoinsOffset(), n)
	return b.Pack()
}

// WithPruning rebuilds p without the coins the lineage deems prunable. The
// signatures of the discarded outpoints are returned so the caller can keep
// the layer 0 filter a superset.
func (p CoinPack) WithPruning(
	a *Arena, lineage types.Lineage, hash types.OutpointHash,
) (CoinPack, []types.OutpointSig) {
	b := NewBuilder(a.Alloc(p.SizeInBytes()), p)
	pruned := b.PruneAndAppend(p, lineage, hash)
	if len(pruned) == 0 {
		return p, nil
	}
	return b.Pack(), pruned
}

// PruneAndAppend copies every coin of src the lineage does not mark as
// prunable and returns the signatures of those it skipped.
func (b *Builder) PruneAndAppend(
	src CoinPack, lineage types.Lineage, hash types.OutpointHash,
) []types.OutpointSig {
	var pruned []types.OutpointSig
	src.ForEachCoin(func(_ int, c types.Coin) bool {
		if lineage.IsCoinPrunable(c.Events()) {
			op := c.Outpoint()
			pruned = append(pruned, types.SigFromHash(hash.Hash(&op)))
			return true
		}
		b.Append(c)
		return true
	})
	return pruned
}

func (p CoinPack) hasSig(sig types.OutpointSig) bool {
	for i, n := 0, p.OutpointSigCount(); i < n; i++ {
		if p.OutpointSig(i) == sig {
			return true
		}
	}
	return false
}

func containsSig(sigs []types.OutpointSig, sig types.OutpointSig) bool {
	for _, s := range sigs {
		if s == sig {
			return true
		}
	}
	return false
}
