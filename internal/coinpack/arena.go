package coinpack

// Arena is the scratch memory derived packs are built in. It belongs to a
// single worker and is reset after every request; nothing allocated from it
// survives the reset.
//
// Allocations never move: once the primary buffer is exhausted further
// allocations spill into dedicated slices which are dropped on Reset.
type Arena struct {
	buf   []byte
	off   int
	spill [][]byte
}

func NewArena(size int) *Arena {
	return &Arena{buf: make([]byte, size)}
}

// Alloc returns n bytes. The content is not zeroed.
func (a *Arena) Alloc(n int) []byte {
	if n < 0 {
		panic("negative arena allocation")
	}
	if a.off+n <= len(a.buf) {
		b := a.buf[a.off : a.off+n : a.off+n]
		a.off += n
		return b
	}
	b := make([]byte, n)
	a.spill = append(a.spill, b)
	return b
}

func (a *Arena) Reset() {
	a.off = 0
	for i := range a.spill {
		a.spill[i] = nil
	}
	a.spill = a.spill[:0]
}

// Used reports the bytes handed out since the last reset.
func (a *Arena) Used() int {
	n := a.off
	for _, b := range a.spill {
		n += len(b)
	}
	return n
}

func (a *Arena) Capacity() int {
	return len(a.buf)
}
