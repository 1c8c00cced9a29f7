package sozu

// Status is the caller-correctable outcome of a table operation.
type Status int

const (
	Success Status = iota
	OutpointNotFound
	InvalidContext
	InvalidBlockHandle
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case OutpointNotFound:
		return "outpoint_not_found"
	case InvalidContext:
		return "invalid_context"
	case InvalidBlockHandle:
		return "invalid_block_handle"
	default:
		return "unknown"
	}
}

// RemoveOption selects which events Remove detaches.
type RemoveOption uint8

const (
	RemoveProduction RemoveOption = 1 << iota
	RemoveConsumption
)
