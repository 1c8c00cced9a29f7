package packstore

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/coinpack"
)

// journal holds the packs of the write in flight. Packs are stored back to
// back, each stamped with the write color and a count going down to 1 on
// the last pack.
type journal struct {
	file *os.File
}

func openJournal(path string) (*journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, err
	}
	return &journal{file: f}, nil
}

func (j *journal) write(buf []byte) error {
	if _, err := j.file.WriteAt(buf, 0); err != nil {
		return errors.Wrap(err, "journal write")
	}
	if err := j.file.Truncate(int64(len(buf))); err != nil {
		return errors.Wrap(err, "journal truncate")
	}
	return j.file.Sync()
}

func (j *journal) read() ([]byte, error) {
	fi, err := j.file.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	if _, err = j.file.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// clear marks the write as applied. A later replay of the same packs would
// overwrite newer fast path writes.
func (j *journal) clear() error {
	if err := j.file.Truncate(0); err != nil {
		return errors.Wrap(err, "journal clear")
	}
	return j.file.Sync()
}

func (j *journal) close() error {
	return j.file.Close()
}

// ParseJournal splits a journal image into its packs. It fails with
// ErrTornJournal unless the packs share one color and their counts run
// down to 1.
func ParseJournal(buf []byte) ([]coinpack.CoinPack, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < coinpack.HeaderSize {
		return nil, errors.Wrapf(ErrTornJournal, "%d bytes", len(buf))
	}

	first := coinpack.CoinPack(buf)
	color := first.WriteColor()
	n := int(first.WriteCount())
	if n == 0 || n > MaxPacksPerWrite {
		return nil, errors.Wrapf(ErrTornJournal, "write count %d", n)
	}

	packs := make([]coinpack.CoinPack, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		if off+coinpack.HeaderSize > len(buf) {
			return nil, errors.Wrapf(ErrTornJournal, "pack %d header cut short", i)
		}
		p := coinpack.CoinPack(buf[off:])
		size := p.SizeInBytes()
		if size < coinpack.HeaderSize || off+size > len(buf) {
			return nil, errors.Wrapf(ErrTornJournal, "pack %d body cut short", i)
		}
		p = p[:size:size]
		switch {
		case p.Version() != coinpack.Version:
			return nil, errors.Wrapf(ErrTornJournal, "pack %d version %d", i, p.Version())
		case p.WriteColor() != color:
			return nil, errors.Wrapf(ErrTornJournal, "pack %d color %d, want %d", i, p.WriteColor(), color)
		case int(p.WriteCount()) != n-i:
			return nil, errors.Wrapf(ErrTornJournal, "pack %d count %d, want %d", i, p.WriteCount(), n-i)
		}
		packs = append(packs, p)
		off += size
	}
	return packs, nil
}
