package snapshot

import "github.com/pkg/errors"

var (
	// ErrRegionUnreadable is returned by a MemoryReader when a region stopped being readable
	// between enumeration and read. Capture treats it as a skipped region.
	ErrRegionUnreadable = errors.New("region is not readable")

	// ErrChunkCollision reports two different chunks addressed to the same key.
	ErrChunkCollision = errors.New("chunk store integrity violation")

	// ErrInvalidRegion reports a region whose bounds or contents are inconsistent.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrMissingRegister reports a register absent from a register set.
	ErrMissingRegister = errors.New("missing register")

	// ErrUnknownRegister reports a register name outside the x86-64 set.
	ErrUnknownRegister = errors.New("unknown register")

	// ErrCorruptDocument reports a persisted document that fails validation.
	ErrCorruptDocument = errors.New("corrupt snapshot document")
)
