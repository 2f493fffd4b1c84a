package types

import "errors"

// Sentinel errors of the core pipeline. Transient external failures are
// absorbed by the retry budget and converted into an undetermined Decision,
// never surfaced to the caller as raw errors.
var (
	// ErrInvalidQuery marks malformed or empty input. Rejected immediately,
	// never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmbeddingUnavailable marks a transient embedding gateway failure.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable marks a transient LLM failure.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrGenerationTimeout marks an LLM call that exceeded its deadline.
	// Treated the same as unavailable by the retry policy.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrIndexInconsistency marks an index entry whose chunk id has no
	// backing chunk. Fatal to that lookup only; the id is skipped.
	ErrIndexInconsistency = errors.New("index references unknown chunk")

	// ErrDuplicateChunk marks an ingest attempt reusing an existing chunk id.
	ErrDuplicateChunk = errors.New("duplicate chunk id")
)
