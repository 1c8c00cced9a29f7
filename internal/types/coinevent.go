package types

import (
	"encoding/binary"
	"fmt"
)

// BlockAlias is the compact surrogate key of a block, committed or not.
// Only the low 31 bits are usable.
type BlockAlias uint32

const (
	Undefined     BlockAlias = 0
	MaxBlockAlias BlockAlias = 1<<31 - 1
)

func (a BlockAlias) IsDefined() bool {
	return a != Undefined
}

func (a BlockAlias) String() string {
	if a == Undefined {
		return "undefined"
	}
	return fmt.Sprintf("%d", uint32(a))
}

type EventKind uint8

const (
	Production EventKind = iota
	Consumption
)

func (k EventKind) String() string {
	if k == Consumption {
		return "consumption"
	}
	return "production"
}

const (
	SizeCoinEvent = 4

	consumptionBit = uint32(1) << 31
)

// CoinEvent packs a block alias and the event kind into one 32 bit word,
// the top bit being set for consumptions.
type CoinEvent uint32

func NewCoinEvent(block BlockAlias, kind EventKind) CoinEvent {
	if block > MaxBlockAlias {
		panic(fmt.Sprintf("block alias %d does not fit in 31 bits", block))
	}
	v := uint32(block)
	if kind == Consumption {
		v |= consumptionBit
	}
	return CoinEvent(v)
}

func ProductionOf(block BlockAlias) CoinEvent  { return NewCoinEvent(block, Production) }
func ConsumptionOf(block BlockAlias) CoinEvent { return NewCoinEvent(block, Consumption) }

func (e CoinEvent) Block() BlockAlias {
	return BlockAlias(uint32(e) &^ consumptionBit)
}

func (e CoinEvent) Kind() EventKind {
	if uint32(e)&consumptionBit != 0 {
		return Consumption
	}
	return Production
}

func (e CoinEvent) String() string {
	return fmt.Sprintf("%s@%s", e.Kind(), e.Block())
}

func ReadCoinEvent(b []byte) CoinEvent {
	return CoinEvent(binary.LittleEndian.Uint32(b))
}

func (e CoinEvent) Write(b []byte) {
	binary.LittleEndian.PutUint32(b, uint32(e))
}
