package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload layout: Satoshis(u64) NLockTime(u32) ScriptLengthInBytes(u16) script...
const (
	SizePayloadHeader = 8 + 4 + 2
	MaxPayloadSize    = math.MaxUint16
	MaxScriptSize     = MaxPayloadSize - SizePayloadHeader
)

// Payload is a view over a serialized payload. It never owns its bytes.
type Payload []byte

func PayloadSize(scriptLen int) int {
	return SizePayloadHeader + scriptLen
}

// WritePayload serializes a payload into dst, which must be exactly
// PayloadSize(len(script)) long.
func WritePayload(dst []byte, satoshis uint64, nLockTime uint32, script []byte) Payload {
	if len(script) > MaxScriptSize {
		panic(fmt.Sprintf("script of %d bytes exceeds %d", len(script), MaxScriptSize))
	}
	if len(dst) != PayloadSize(len(script)) {
		panic(fmt.Sprintf("payload buffer of %d bytes, need %d", len(dst), PayloadSize(len(script))))
	}
	binary.LittleEndian.PutUint64(dst[0:8], satoshis)
	binary.LittleEndian.PutUint32(dst[8:12], nLockTime)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(len(script)))
	copy(dst[SizePayloadHeader:], script)
	return Payload(dst)
}

// NewPayload allocates and serializes a payload on the heap.
func NewPayload(satoshis uint64, nLockTime uint32, script []byte) Payload {
	return WritePayload(make([]byte, PayloadSize(len(script))), satoshis, nLockTime, script)
}

func (p Payload) Satoshis() uint64 {
	return binary.LittleEndian.Uint64(p[0:8])
}

func (p Payload) NLockTime() uint32 {
	return binary.LittleEndian.Uint32(p[8:12])
}

func (p Payload) ScriptLength() int {
	return int(binary.LittleEndian.Uint16(p[12:14]))
}

func (p Payload) Script() []byte {
	return p[SizePayloadHeader : SizePayloadHeader+p.ScriptLength()]
}

func (p Payload) SizeInBytes() int {
	return SizePayloadHeader + p.ScriptLength()
}
