package types

// OutpointSig is the 16 bit fingerprint of an outpoint hash kept in the
// layer 0 filter.
type OutpointSig uint16

const SizeOutpointSig = 2

func SigFromHash(hash uint64) OutpointSig {
	return OutpointSig(hash)
}

// OutpointHash is the keyed hash shared by shard routing and sector
// addressing. It must be stable across restarts.
type OutpointHash interface {
	Hash(op *Outpoint) uint64
}

// Lineage answers the branch aware questions about coin events.
type Lineage interface {
	// IsAddConsistent reports whether toAdd can join events without a second
	// event of the same kind on one branch.
	IsAddConsistent(events []CoinEvent, toAdd CoinEvent) bool

	// TryGetEventsInContext resolves the production and consumption visible
	// from context. ok is false when context is not a known block.
	TryGetEventsInContext(events []CoinEvent, context BlockAlias) (production, consumption BlockAlias, ok bool)

	// IsCoinPrunable reports whether the coin can be discarded for good.
	IsCoinPrunable(events []CoinEvent) bool

	// IsUncommitted reports whether context is an open block accepting writes.
	IsUncommitted(context BlockAlias) bool
}
