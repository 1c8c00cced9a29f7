package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Coin layout:
//
//	Outpoint(36) Flags(u16) EventCount(u16) PayloadLengthInBytes(u16)
//	EventCount x CoinEvent(4)
//	Payload
//
// The size is derived from the header alone.
const (
	SizeCoinHeader = SizeOutpoint + 2 + 2 + 2

	offsetFlags      = SizeOutpoint
	offsetEventCount = SizeOutpoint + 2
	offsetPayloadLen = SizeOutpoint + 4

	FlagCoinbase uint16 = 1 << 0

	MaxEventCount = math.MaxUint16
)

// Coin is a view over one serialized coin record.
type Coin []byte

func CoinSize(eventCount, payloadSize int) int {
	return SizeCoinHeader + eventCount*SizeCoinEvent + payloadSize
}

// CoinSizeAt reads the size of the coin starting at b without bounding
// the view first.
func CoinSizeAt(b []byte) int {
	events := int(binary.LittleEndian.Uint16(b[offsetEventCount:]))
	payload := int(binary.LittleEndian.Uint16(b[offsetPayloadLen:]))
	return CoinSize(events, payload)
}

// WriteCoin serializes a coin into dst, which must be exactly the coin size.
// Events are laid out before the payload, the payload offset depending on
// the event count.
func WriteCoin(dst []byte, op *Outpoint, flags uint16, events []CoinEvent, payload Payload) Coin {
	if len(events) > MaxEventCount {
		panic(fmt.Sprintf("%d events exceed the coin event capacity", len(events)))
	}
	size := CoinSize(len(events), len(payload))
	if len(dst) != size {
		panic(fmt.Sprintf("coin buffer of %d bytes, need %d", len(dst), size))
	}
	writeCoinHeader(dst, flags, len(events), len(payload))
	op.Write(dst)
	for i, e := range events {
		e.Write(dst[SizeCoinHeader+i*SizeCoinEvent:])
	}
	copy(dst[SizeCoinHeader+len(events)*SizeCoinEvent:], payload)
	return Coin(dst)
}

func writeCoinHeader(dst []byte, flags uint16, eventCount, payloadLen int) {
	if payloadLen > MaxPayloadSize {
		panic(fmt.Sprintf("payload of %d bytes exceeds %d", payloadLen, MaxPayloadSize))
	}
	binary.LittleEndian.PutUint16(dst[offsetFlags:], flags)
	binary.LittleEndian.PutUint16(dst[offsetEventCount:], uint16(eventCount))
	binary.LittleEndian.PutUint16(dst[offsetPayloadLen:], uint16(payloadLen))
}

// WriteCoinWithExtraEvent copies src into dst with ev appended to the event
// list. dst must be exactly src.SizeInBytes()+SizeCoinEvent long.
func WriteCoinWithExtraEvent(dst []byte, src Coin, ev CoinEvent) Coin {
	n := src.EventCount()
	if n == MaxEventCount {
		panic("coin event list is full")
	}
	if len(dst) != src.SizeInBytes()+SizeCoinEvent {
		panic(fmt.Sprintf("coin buffer of %d bytes, need %d", len(dst), src.SizeInBytes()+SizeCoinEvent))
	}
	eventsEnd := SizeCoinHeader + n*SizeCoinEvent
	copy(dst, src[:eventsEnd])
	ev.Write(dst[eventsEnd:])
	copy(dst[eventsEnd+SizeCoinEvent:], src[eventsEnd:src.SizeInBytes()])
	binary.LittleEndian.PutUint16(dst[offsetEventCount:], uint16(n+1))
	return Coin(dst)
}

// WriteCoinWithoutEvent copies src into dst dropping the event at index i.
// dst must be exactly src.SizeInBytes()-SizeCoinEvent long.
func WriteCoinWithoutEvent(dst []byte, src Coin, i int) Coin {
	n := src.EventCount()
	if i < 0 || i >= n {
		panic(fmt.Sprintf("event index %d out of range [0,%d)", i, n))
	}
	if len(dst) != src.SizeInBytes()-SizeCoinEvent {
		panic(fmt.Sprintf("coin buffer of %d bytes, need %d", len(dst), src.SizeInBytes()-SizeCoinEvent))
	}
	cut := SizeCoinHeader + i*SizeCoinEvent
	copy(dst, src[:cut])
	copy(dst[cut:], src[cut+SizeCoinEvent:src.SizeInBytes()])
	binary.LittleEndian.PutUint16(dst[offsetEventCount:], uint16(n-1))
	return Coin(dst)
}

func (c Coin) Outpoint() Outpoint {
	return ReadOutpoint(c)
}

func (c Coin) OutpointBytes() []byte {
	return c[:SizeOutpoint]
}

func (c Coin) Flags() uint16 {
	return binary.LittleEndian.Uint16(c[offsetFlags:])
}

func (c Coin) IsCoinbase() bool {
	return c.Flags()&FlagCoinbase != 0
}

func (c Coin) EventCount() int {
	return int(binary.LittleEndian.Uint16(c[offsetEventCount:]))
}

func (c Coin) PayloadLength() int {
	return int(binary.LittleEndian.Uint16(c[offsetPayloadLen:]))
}

func (c Coin) SizeInBytes() int {
	return CoinSize(c.EventCount(), c.PayloadLength())
}

func (c Coin) Event(i int) CoinEvent {
	return ReadCoinEvent(c[SizeCoinHeader+i*SizeCoinEvent:])
}

// Events returns a fresh slice of the events.
func (c Coin) Events() []CoinEvent {
	n := c.EventCount()
	out := make([]CoinEvent, n)
	for i := range out {
		out[i] = c.Event(i)
	}
	return out
}

// IndexOfEvent returns -1 when the event is not attached.
func (c Coin) IndexOfEvent(ev CoinEvent) int {
	for i := 0; i < c.EventCount(); i++ {
		if c.Event(i) == ev {
			return i
		}
	}
	return -1
}

func (c Coin) HasEvent(ev CoinEvent) bool {
	return c.IndexOfEvent(ev) >= 0
}

func (c Coin) Payload() Payload {
	start := SizeCoinHeader + c.EventCount()*SizeCoinEvent
	return Payload(c[start : start+c.PayloadLength()])
}
