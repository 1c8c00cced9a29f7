package dbpebble

import (
	"errors"
	"math"
)

// ---------------- Keys ----------------

// KeySector is big endian so iteration follows sector order.
func KeySector(sector uint32) []byte {
	k := make([]byte, 1+SizeSector)
	k[0] = KSector
	be32(sector, k[1:])
	return k
}

func BoundsSector() (lb, ub []byte) {
	lb = KeySector(0)
	ub = make([]byte, 1+SizeSector)
	ub[0] = KSector
	be32(math.MaxUint32, ub[1:])
	// exclusive upper bound, sector MaxUint32 is never addressed
	return
}

func ParseKeySector(k []byte) (uint32, error) {
	if len(k) != 1+SizeSector || k[0] != KSector {
		return 0, errors.New("not a sector key")
	}
	return rbe32(k[1:]), nil
}
