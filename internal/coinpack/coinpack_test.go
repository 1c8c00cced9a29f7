package coinpack

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/types"
)

// indexHash hashes an outpoint to its index, which makes signatures
// predictable in tests.
type indexHash struct{}

func (indexHash) Hash(op *types.Outpoint) uint64 {
	return uint64(op.Index)
}

// pruneProduced treats every coin produced in block prunable as dead.
type pruneProduced struct {
	prunable types.BlockAlias
}

func (l pruneProduced) IsAddConsistent([]types.CoinEvent, types.CoinEvent) bool { return true }

func (l pruneProduced) TryGetEventsInContext(
	events []types.CoinEvent, _ types.BlockAlias,
) (types.BlockAlias, types.BlockAlias, bool) {
	return types.Undefined, types.Undefined, true
}

func (l pruneProduced) IsCoinPrunable(events []types.CoinEvent) bool {
	for _, e := range events {
		if e.Kind() == types.Production && e.Block() == l.prunable {
			return true
		}
	}
	return false
}

func (l pruneProduced) IsUncommitted(types.BlockAlias) bool { return true }

func outpoint(seed byte, index uint32) types.Outpoint {
	var h chainhash.Hash
	h[0] = seed
	binary.LittleEndian.PutUint32(h[1:], index)
	return types.Outpoint{TxID: h, Index: index}
}

func coin(a *Arena, seed byte, index uint32, block types.BlockAlias, scriptLen int) types.Coin {
	op := outpoint(seed, index)
	payload := types.NewPayload(uint64(index)*100, 0, make([]byte, scriptLen))
	return NewCoin(a, &op, false, []types.CoinEvent{types.ProductionOf(block)}, payload)
}

func sumCoinSizes(p CoinPack) int {
	total := 0
	p.ForEachCoin(func(_ int, c types.Coin) bool {
		total += c.SizeInBytes()
		return true
	})
	return total
}

func requireSizeInvariant(t *testing.T, p CoinPack) {
	t.Helper()
	require.NoError(t, p.CheckConsistency())
	require.Equal(t, HeaderSize+p.FilterSizeInBytes()+sumCoinSizes(p), p.SizeInBytes())
}

func TestEmptyPack(t *testing.T) {
	a := NewArena(1 << 12)
	p := Empty(a, 2, 77)

	assert.Equal(t, HeaderSize, p.SizeInBytes())
	assert.Equal(t, 2, p.LayerIndex())
	assert.Equal(t, uint32(77), p.SectorIndex())
	assert.Equal(t, Version, p.Version())
	assert.Equal(t, 0, p.CoinCount())
	assert.False(t, p.PositiveMatch(1))
	requireSizeInvariant(t, p)
}

func TestTryGetAfterAppends(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 0, 1)
	for i := uint32(0); i < 10; i++ {
		p = p.WithExtraCoin(a, coin(a, byte(i), i, 5, int(i)))
		requireSizeInvariant(t, p)
	}
	require.Equal(t, 10, p.CoinCount())

	for i := uint32(0); i < 10; i++ {
		op := outpoint(byte(i), i)
		c, off, ok := p.TryGet(&op)
		require.True(t, ok)
		assert.Equal(t, op, c.Outpoint())
		assert.Equal(t, int(i), c.Payload().ScriptLength())
		assert.Equal(t, c, p.CoinAt(off))
	}

	missing := outpoint(3, 4)
	_, _, ok := p.TryGet(&missing)
	assert.False(t, ok)
}

func TestDerivationsDoNotMutateSource(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 0, 1)
	p = p.WithExtraCoin(a, coin(a, 1, 1, 5, 3))
	snapshot := append([]byte(nil), p...)

	op := outpoint(1, 1)
	_, off, ok := p.TryGet(&op)
	require.True(t, ok)

	_ = p.WithExtraCoinEvent(a, off, types.ConsumptionOf(6))
	_ = p.WithExtraOutpointSig(a, 9)
	_ = p.WithSkippedCoins(a, 1)
	_ = p.WithExtraCoin(a, coin(a, 2, 2, 5, 0))

	assert.Equal(t, snapshot, []byte(p))
}

func TestCoinEventDerivations(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 0, 1)
	p = p.WithExtraCoin(a, coin(a, 1, 1, 5, 3))
	p = p.WithExtraCoin(a, coin(a, 2, 2, 5, 7))
	p = p.WithExtraCoin(a, coin(a, 3, 3, 5, 1))

	mid := outpoint(2, 2)
	_, off, ok := p.TryGet(&mid)
	require.True(t, ok)

	grown := p.WithExtraCoinEvent(a, off, types.ConsumptionOf(9))
	requireSizeInvariant(t, grown)
	assert.Equal(t, p.SizeInBytes()+types.SizeCoinEvent, grown.SizeInBytes())

	c, off, ok := grown.TryGet(&mid)
	require.True(t, ok)
	assert.Equal(t, []types.CoinEvent{types.ProductionOf(5), types.ConsumptionOf(9)}, c.Events())
	assert.Equal(t, 7, c.Payload().ScriptLength())

	// trailing coin still intact after the shift
	last := outpoint(3, 3)
	lc, _, ok := grown.TryGet(&last)
	require.True(t, ok)
	assert.Equal(t, 1, lc.Payload().ScriptLength())

	shrunk := grown.WithLessCoinEvent(a, off, types.ProductionOf(5))
	requireSizeInvariant(t, shrunk)
	c, _, ok = shrunk.TryGet(&mid)
	require.True(t, ok)
	assert.Equal(t, []types.CoinEvent{types.ConsumptionOf(9)}, c.Events())

	same := shrunk.WithLessCoinEvent(a, off, types.ProductionOf(5))
	assert.Equal(t, shrunk, same)
}

func TestFilterSoundness(t *testing.T) {
	a := NewArena(1 << 16)
	p := Empty(a, 0, 1)

	for sig := types.OutpointSig(0); sig < 200; sig += 2 {
		p = p.WithExtraOutpointSig(a, sig)
		requireSizeInvariant(t, p)
	}
	require.Equal(t, 100, p.OutpointSigCount())
	assert.Equal(t, types.OutpointSig(198), p.OutpointSig(0), "most recent first")

	for sig := types.OutpointSig(0); sig < 200; sig++ {
		assert.Equal(t, sig%2 == 0, p.PositiveMatch(sig), "sig %d", sig)
	}

	again := p.WithExtraOutpointSig(a, 4)
	assert.Equal(t, p.OutpointSigCount(), again.OutpointSigCount())
}

func TestFilterSaturates(t *testing.T) {
	a := NewArena(1 << 16)
	p := Empty(a, 0, 1)
	p = p.WithExtraCoin(a, coin(a, 1, 1, 5, 3))

	sigs := make([]types.OutpointSig, MaxOutpointSigs)
	for i := range sigs {
		sigs[i] = types.OutpointSig(i)
	}
	p = p.WithExtraOutpointSigs(a, sigs)
	require.False(t, p.OutpointSigsOverflow())
	require.Equal(t, MaxOutpointSigs, p.OutpointSigCount())
	assert.False(t, p.PositiveMatch(types.OutpointSig(MaxOutpointSigs)))

	p = p.WithExtraOutpointSig(a, types.OutpointSig(MaxOutpointSigs))
	assert.True(t, p.OutpointSigsOverflow())
	assert.Equal(t, 0, p.OutpointSigCount())
	assert.True(t, p.PositiveMatch(0xffff))
	assert.Equal(t, 1, p.CoinCount())
	requireSizeInvariant(t, p)
}

func TestWithLessOutpointSigs(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 0, 1)
	p = p.WithExtraCoin(a, coin(a, 1, 1, 5, 3))
	p = p.WithExtraOutpointSigs(a, []types.OutpointSig{1, 2, 3, 4})

	kept := p.WithLessOutpointSigs(a, 2)
	requireSizeInvariant(t, kept)
	assert.True(t, kept.PositiveMatch(4))
	assert.True(t, kept.PositiveMatch(3))
	assert.False(t, kept.PositiveMatch(1))
	assert.Equal(t, 1, kept.CoinCount())
}

func TestCountCoinsAbove(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 1, 1)
	var sizes []int
	for i := uint32(0); i < 5; i++ {
		c := coin(a, byte(i), i, 5, 10)
		sizes = append(sizes, c.SizeInBytes())
		p = p.WithExtraCoin(a, c)
	}

	assert.Equal(t, 0, p.CountCoinsAbove(0))
	assert.Equal(t, 1, p.CountCoinsAbove(1))
	assert.Equal(t, 1, p.CountCoinsAbove(sizes[0]))
	assert.Equal(t, 2, p.CountCoinsAbove(sizes[0]+1))
	assert.Equal(t, 5, p.CountCoinsAbove(1<<20))
	assert.Equal(t, sizes[0]+sizes[1], p.LeadingCoinsSize(2))
}

func TestSkipAndAppendConserveCoins(t *testing.T) {
	a := NewArena(1 << 14)
	src := Empty(a, 0, 4)
	for i := uint32(0); i < 6; i++ {
		src = src.WithExtraCoin(a, coin(a, byte(i), i, 5, int(i)))
	}
	dst := Empty(a, 1, 4)
	dst = dst.WithExtraCoin(a, coin(a, 99, 99, 5, 2))

	moved := dst.WithAppendedCoins(a, src, 4)
	rest := src.WithSkippedCoins(a, 4)
	requireSizeInvariant(t, moved)
	requireSizeInvariant(t, rest)

	assert.Equal(t, 5, moved.CoinCount())
	assert.Equal(t, 2, rest.CoinCount())
	assert.Equal(t, 1, moved.LayerIndex())

	for i := uint32(0); i < 6; i++ {
		op := outpoint(byte(i), i)
		_, _, inMoved := moved.TryGet(&op)
		_, _, inRest := rest.TryGet(&op)
		assert.True(t, inMoved != inRest, "coin %d must live in exactly one pack", i)
	}
}

func TestWithPruning(t *testing.T) {
	a := NewArena(1 << 14)
	p := Empty(a, 1, 4)
	p = p.WithExtraCoin(a, coin(a, 1, 11, 5, 3))
	p = p.WithExtraCoin(a, coin(a, 2, 12, 6, 3))
	p = p.WithExtraCoin(a, coin(a, 3, 13, 5, 3))

	pruned, sigs := p.WithPruning(a, pruneProduced{prunable: 5}, indexHash{})
	requireSizeInvariant(t, pruned)
	assert.Equal(t, 1, pruned.CoinCount())
	assert.ElementsMatch(t, []types.OutpointSig{11, 13}, sigs)

	kept := outpoint(2, 12)
	_, _, ok := pruned.TryGet(&kept)
	assert.True(t, ok)

	untouched, sigs := p.WithPruning(a, pruneProduced{prunable: 100}, indexHash{})
	assert.Nil(t, sigs)
	assert.Equal(t, p, untouched)
}

func TestBuilderFailsFastOnCapacity(t *testing.T) {
	a := NewArena(1 << 12)
	base := Empty(a, 0, 1)
	b := NewBuilder(make([]byte, HeaderSize+10), base)
	assert.Panics(t, func() { b.Append(coin(a, 1, 1, 5, 3)) })
}

func TestArenaSpillsAndResets(t *testing.T) {
	a := NewArena(16)
	first := a.Alloc(10)
	second := a.Alloc(10)
	assert.Len(t, first, 10)
	assert.Len(t, second, 10)
	assert.Equal(t, 20, a.Used())

	a.Reset()
	assert.Equal(t, 0, a.Used())
	assert.Len(t, a.Alloc(16), 16)
}

func TestCheckConsistencyRejectsTruncatedPack(t *testing.T) {
	a := NewArena(1 << 12)
	p := Empty(a, 0, 3).WithExtraCoin(a, coin(a, 1, 4, 2, 20))
	requireSizeInvariant(t, p)

	err := p[:HeaderSize-1].CheckConsistency()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than its header")

	err = p[:p.SizeInBytes()-1].CheckConsistency()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view holds")
}
