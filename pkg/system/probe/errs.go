package probe

import "errors"

var (
	// ErrShortRead indicates a resource pseudo-file returned fewer bytes
	// than any valid content could occupy.
	ErrShortRead = errors.New("probe: short read")

	// ErrCPUFormat indicates the aggregate CPU line was missing, untagged,
	// or had too few tick fields.
	ErrCPUFormat = errors.New("probe: malformed cpu line")

	// ErrMemFormat indicates the meminfo labels could not be located.
	ErrMemFormat = errors.New("probe: malformed meminfo")

	// ErrMemTotalZero indicates meminfo reported zero total memory.
	ErrMemTotalZero = errors.New("probe: zero MemTotal")

	// ErrMemAvailExceedsTotal indicates meminfo reported more available
	// than total memory.
	ErrMemAvailExceedsTotal = errors.New("probe: MemAvailable > MemTotal")
)
