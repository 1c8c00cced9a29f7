package coinpack

import "github.com/setavenger/sozudb/internal/types"

// NewCoin serializes a coin into the arena.
func NewCoin(
	a *Arena, op *types.Outpoint, isCoinbase bool, events []types.CoinEvent, payload types.Payload,
) types.Coin {
	var flags uint16
	if isCoinbase {
		flags |= types.FlagCoinbase
	}
	dst := a.Alloc(types.CoinSize(len(events), len(payload)))
	return types.WriteCoin(dst, op, flags, events, payload)
}
