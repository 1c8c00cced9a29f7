package packstore

import "github.com/pkg/errors"

var (
	ErrCorruptedSector = errors.New("corrupted sector")
	ErrUnknownVersion  = errors.New("unknown sector format version")
	ErrTornJournal     = errors.New("torn journal")
	ErrPackTooLarge    = errors.New("pack exceeds the sector budget")
	ErrBadCoordinates  = errors.New("pack addresses a layer or sector out of range")
)
