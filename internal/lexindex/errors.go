package lexindex

import "errors"

var (
	// ErrIndexMissing means no complete index is persisted at the requested
	// location. Callers on the retrieval path rebuild from the corpus.
	ErrIndexMissing = errors.New("index missing")

	// ErrIndexBuild means an index could not be built. Any previously
	// persisted index stays active.
	ErrIndexBuild = errors.New("index build failed")
)
