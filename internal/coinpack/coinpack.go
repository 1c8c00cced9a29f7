// Package coinpack implements the binary content of one storage sector: a
// packed header, the layer 0 outpoint filter and the coins back to back.
//
// A CoinPack is never patched in place. Every structural change derives a
// new pack in an Arena, because most changes shift the trailing offsets.
package coinpack

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/types"
)

// Header layout, 1 byte aligned:
//
//	SectorIndex(u32) LayerIndex(u8) Version(u8) WriteColor(u8) WriteCount(u8)
//	PackSizeInBytes(i32) OutpointSigCount(u16) OutpointCount(u16)
//	OutpointSigsOverflow(bool)
const (
	offsetSectorIndex  = 0
	offsetLayerIndex   = 4
	offsetVersion      = 5
	offsetWriteColor   = 6
	offsetWriteCount   = 7
	offsetSize         = 8
	offsetSigCount     = 12
	offsetCoinCount    = 14
	offsetSigsOverflow = 16

	HeaderSize = 17

	// Version is stamped on every initialized sector. Zero means the sector
	// was never initialized.
	Version uint8 = 1

	// MaxOutpointSigs is the filter cardinality past which it saturates and
	// matches everything.
	MaxOutpointSigs = 1500

	MaxCoinCount = math.MaxUint16
	MaxPackSize  = math.MaxInt32
)

// CoinPack is a view over a serialized pack, exactly SizeInBytes long.
type CoinPack []byte

// InitHeader stamps an empty pack for (layer, sector) into dst.
func InitHeader(dst []byte, layer int, sector uint32) CoinPack {
	_ = dst[HeaderSize-1] // bounds check
	for i := 0; i < HeaderSize; i++ {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst[offsetSectorIndex:], sector)
	dst[offsetLayerIndex] = uint8(layer)
	dst[offsetVersion] = Version
	binary.LittleEndian.PutUint32(dst[offsetSize:], HeaderSize)
	return CoinPack(dst[:HeaderSize])
}

// Empty allocates an initialized empty pack.
func Empty(a *Arena, layer int, sector uint32) CoinPack {
	return InitHeader(a.Alloc(HeaderSize), layer, sector)
}

// NewEmpty is Empty on the heap, for packs that outlive the arena.
func NewEmpty(layer int, sector uint32) CoinPack {
	return InitHeader(make([]byte, HeaderSize), layer, sector)
}

func (p CoinPack) SectorIndex() uint32 {
	return binary.LittleEndian.Uint32(p[offsetSectorIndex:])
}

func (p CoinPack) LayerIndex() int {
	return int(p[offsetLayerIndex])
}

func (p CoinPack) Version() uint8 {
	return p[offsetVersion]
}

func (p CoinPack) WriteColor() uint8 {
	return p[offsetWriteColor]
}

func (p CoinPack) WriteCount() uint8 {
	return p[offsetWriteCount]
}

func (p CoinPack) SizeInBytes() int {
	return int(int32(binary.LittleEndian.Uint32(p[offsetSize:])))
}

func (p CoinPack) OutpointSigCount() int {
	return int(binary.LittleEndian.Uint16(p[offsetSigCount:]))
}

func (p CoinPack) CoinCount() int {
	return int(binary.LittleEndian.Uint16(p[offsetCoinCount:]))
}

func (p CoinPack) OutpointSigsOverflow() bool {
	return p[offsetSigsOverflow] != 0
}

// OutpointSig returns the i-th signature, the most recent being at 0.
func (p CoinPack) OutpointSig(i int) types.OutpointSig {
	return types.OutpointSig(binary.LittleEndian.Uint16(p[HeaderSize+i*types.SizeOutpointSig:]))
}

func (p CoinPack) FilterSizeInBytes() int {
	return p.OutpointSigCount() * types.SizeOutpointSig
}

// CoinsOffset is the offset of the first coin.
func (p CoinPack) CoinsOffset() int {
	return HeaderSize + p.FilterSizeInBytes()
}

// SetWriteStamp records the journal bookkeeping of the write carrying p.
// Only ever called on a private copy.
func (p CoinPack) SetWriteStamp(color, count uint8) {
	p[offsetWriteColor] = color
	p[offsetWriteCount] = count
}

// CoinAt returns the coin starting at offset.
func (p CoinPack) CoinAt(offset int) types.Coin {
	size := types.CoinSizeAt(p[offset:])
	return types.Coin(p[offset : offset+size : offset+size])
}

// ForEachCoin walks the coins in storage order until fn returns false.
func (p CoinPack) ForEachCoin(fn func(offset int, c types.Coin) bool) {
	off := p.CoinsOffset()
	for i, n := 0, p.CoinCount(); i < n; i++ {
		c := p.CoinAt(off)
		if !fn(off, c) {
			return
		}
		off += len(c)
	}
}

// TryGet scans the pack for op and returns the coin with its offset.
func (p CoinPack) TryGet(op *types.Outpoint) (types.Coin, int, bool) {
	off := p.CoinsOffset()
	for i, n := 0, p.CoinCount(); i < n; i++ {
		if op.EqualsSerialized(p[off:]) {
			c := p.CoinAt(off)
			return c, off, true
		}
		off += types.CoinSizeAt(p[off:])
	}
	return nil, 0, false
}

// PositiveMatch probes the filter. A false answer proves the outpoint of
// sig was never moved out of this layer 0 sector.
func (p CoinPack) PositiveMatch(sig types.OutpointSig) bool {
	if p.OutpointSigsOverflow() {
		return true
	}
	for i, n := 0, p.OutpointSigCount(); i < n; i++ {
		if p.OutpointSig(i) == sig {
			return true
		}
	}
	return false
}

// CountCoinsAbove returns how many leading coins it takes for their
// cumulative size to reach threshold, or the coin count if it never does.
func (p CoinPack) CountCoinsAbove(threshold int) int {
	if threshold <= 0 {
		return 0
	}
	total := 0
	off := p.CoinsOffset()
	for i, n := 0, p.CoinCount(); i < n; i++ {
		size := types.CoinSizeAt(p[off:])
		total += size
		off += size
		if total >= threshold {
			return i + 1
		}
	}
	return p.CoinCount()
}

// LeadingCoinsSize is the byte size of the first n coins.
func (p CoinPack) LeadingCoinsSize(n int) int {
	return p.offsetOfCoin(n) - p.CoinsOffset()
}

// offsetOfCoin returns the offset of the i-th coin, or the pack end when i
// equals the coin count.
func (p CoinPack) offsetOfCoin(i int) int {
	off := p.CoinsOffset()
	for j := 0; j < i; j++ {
		off += types.CoinSizeAt(p[off:])
	}
	return off
}

// Clone copies p into the arena.
func (p CoinPack) Clone(a *Arena) CoinPack {
	b := a.Alloc(p.SizeInBytes())
	copy(b, p[:p.SizeInBytes()])
	return CoinPack(b)
}

// CheckConsistency verifies that the header agrees with the content.
func (p CoinPack) CheckConsistency() error {
	if len(p) < HeaderSize {
		return errors.Errorf("pack of %d bytes is shorter than its header", len(p))
	}
	size := p.SizeInBytes()
	if size != len(p) {
		return errors.Errorf("pack header says %d bytes, view holds %d", size, len(p))
	}
	if p.OutpointSigsOverflow() && p.OutpointSigCount() != 0 {
		return errors.Errorf("saturated filter still holds %d signatures", p.OutpointSigCount())
	}
	off := p.CoinsOffset()
	for i, n := 0, p.CoinCount(); i < n; i++ {
		if off+types.SizeCoinHeader > size {
			return errors.Errorf("coin %d header runs past the pack end", i)
		}
		off += types.CoinSizeAt(p[off:])
		if off > size {
			return errors.Errorf("coin %d runs past the pack end", i)
		}
	}
	if off != size {
		return errors.Errorf("coins end at %d, pack size is %d", off, size)
	}
	return nil
}

func (p CoinPack) String() string {
	return fmt.Sprintf("pack{layer=%d sector=%d size=%d coins=%d sigs=%d overflow=%t}",
		p.LayerIndex(), p.SectorIndex(), p.SizeInBytes(), p.CoinCount(),
		p.OutpointSigCount(), p.OutpointSigsOverflow())
}

func (p CoinPack) setSize(size int) {
	if size > MaxPackSize {
		panic(fmt.Sprintf("pack size %d overflows the header", size))
	}
	binary.LittleEndian.PutUint32(p[offsetSize:], uint32(int32(size)))
}

func (p CoinPack) setCoinCount(n int) {
	if n > MaxCoinCount {
		panic(fmt.Sprintf("%d coins overflow the pack header", n))
	}
	binary.LittleEndian.PutUint16(p[offsetCoinCount:], uint16(n))
}

func (p CoinPack) setSigCount(n int) {
	binary.LittleEndian.PutUint16(p[offsetSigCount:], uint16(n))
}

func (p CoinPack) setSigsOverflow(v bool) {
	if v {
		p[offsetSigsOverflow] = 1
	} else {
		p[offsetSigsOverflow] = 0
	}
}
