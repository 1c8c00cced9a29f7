package coinpack

import (
	"fmt"

	"github.com/setavenger/sozudb/internal/types"
)

// Builder appends coins to a pack being assembled in a caller supplied
// buffer. The caller guarantees the capacity; running past it panics.
type Builder struct {
	buf   []byte
	off   int
	coins int
}

// NewBuilder starts a pack in dst with the header and filter of base and
// no coins.
func NewBuilder(dst []byte, base CoinPack) *Builder {
	head := base.CoinsOffset()
	if len(dst) < head {
		panic(fmt.Sprintf("builder buffer of %d bytes cannot hold a %d byte header", len(dst), head))
	}
	copy(dst, base[:head])
	return &Builder{buf: dst, off: head}
}

func (b *Builder) Remaining() int {
	return len(b.buf) - b.off
}

// Append copies one coin.
func (b *Builder) Append(c types.Coin) {
	size := c.SizeInBytes()
	b.ensure(size)
	copy(b.buf[b.off:], c[:size])
	b.off += size
	b.coins++
}

// AppendRange copies the n consecutive coins of src starting at offset and
// returns the offset following them.
func (b *Builder) AppendRange(src CoinPack, offset, n int) int {
	end := offset
	for i := 0; i < n; i++ {
		end += types.CoinSizeAt(src[end:])
	}
	b.ensure(end - offset)
	copy(b.buf[b.off:], src[offset:end])
	b.off += end - offset
	b.coins += n
	return end
}

// Pack seals the header and returns the assembled pack.
func (b *Builder) Pack() CoinPack {
	p := CoinPack(b.buf[:b.off:b.off])
	p.setSize(b.off)
	p.setCoinCount(b.coins)
	return p
}

func (b *Builder) ensure(n int) {
	if b.off+n > len(b.buf) {
		panic(fmt.Sprintf("pack builder out of capacity: %d more bytes, %d left", n, len(b.buf)-b.off))
	}
}
