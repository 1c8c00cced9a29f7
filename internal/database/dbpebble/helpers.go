package dbpebble

import (
	"encoding/binary"
)

func be32(u uint32, b []byte) { binary.BigEndian.PutUint32(b, u) }
func rbe32(b []byte) uint32   { return binary.BigEndian.Uint32(b) }
