package vector

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension. The caller must fix the input; index state is unchanged.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidVector indicates a zero-norm vector, which cannot be normalized.
	ErrInvalidVector = errors.New("invalid vector: zero norm")

	// ErrDuplicateID indicates an id already present in the index or repeated
	// within one batch. Re-adding an existing id is rejected, not replaced.
	ErrDuplicateID = errors.New("duplicate chunk id")

	// ErrIndexCorrupt indicates a persisted image that violates a load-time
	// invariant (bad header, dimension disagreement, truncation, trailing
	// bytes, duplicate ids). Fatal: refuse to serve until repaired.
	ErrIndexCorrupt = errors.New("vector index corrupt")

	// ErrPersistence indicates an I/O failure while saving the index. The
	// in-memory index stays authoritative; callers should warn and continue.
	ErrPersistence = errors.New("vector index persistence failure")
)
