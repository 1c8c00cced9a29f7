package packstore

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapLayer is one fixed layer: sectorCount sectors of sectorSize bytes
// mapped shared from a single file.
type mmapLayer struct {
	file        *os.File
	data        []byte
	sectorSize  int
	sectorCount uint32
	pageSize    int
}

func openMmapLayer(path string, sectorSize int, sectorCount uint32) (*mmapLayer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, err
	}

	size := int64(sectorSize) * int64(sectorCount)
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch fi.Size() {
	case size:
	case 0:
		// sparse, reads back as zeroes which is "never initialized"
		if err = f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	default:
		f.Close()
		return nil, errors.Errorf(
			"layer file %s holds %d bytes, configuration expects %d", path, fi.Size(), size,
		)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}

	return &mmapLayer{
		file:        f,
		data:        data,
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		pageSize:    unix.Getpagesize(),
	}, nil
}

// sector returns the mapped bytes of sector i. Writes through the slice land
// in the page cache and need a flush to be durable.
func (l *mmapLayer) sector(i uint32) []byte {
	off := int(i) * l.sectorSize
	return l.data[off : off+l.sectorSize : off+l.sectorSize]
}

// flush syncs the pages covering sector i. msync wants a page aligned start.
func (l *mmapLayer) flush(i uint32) error {
	start := int(i) * l.sectorSize
	end := start + l.sectorSize
	start -= start % l.pageSize
	if rem := end % l.pageSize; rem != 0 {
		end += l.pageSize - rem
	}
	if end > len(l.data) {
		end = len(l.data)
	}
	return unix.Msync(l.data[start:end], unix.MS_SYNC)
}

func (l *mmapLayer) flushAll() error {
	return unix.Msync(l.data, unix.MS_SYNC)
}

func (l *mmapLayer) close() error {
	var errs []error
	if l.data != nil {
		if err := unix.Munmap(l.data); err != nil {
			errs = append(errs, err)
		}
		l.data = nil
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
