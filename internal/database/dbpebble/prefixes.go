package dbpebble

const (
	SizeSector = 4
)

// Prefix Keys "K"
const (
	KSector = 0x01
)
