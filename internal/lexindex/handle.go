package lexindex

import "sync/atomic"

// Handle holds the index currently served to queries. Swapping in a rebuilt
// index never blocks readers, and in-flight queries keep the index they
// started with.
type Handle struct {
	current atomic.Pointer[Index]
}

// NewHandle returns a handle serving idx, which may be nil.
func NewHandle(idx *Index) *Handle {
	h := &Handle{}
	if idx != nil {
		h.current.Store(idx)
	}
	return h
}

// Current returns the served index or nil when none is loaded.
func (h *Handle) Current() *Index {
	return h.current.Load()
}

// Swap installs idx and returns the previous index.
func (h *Handle) Swap(idx *Index) *Index {
	return h.current.Swap(idx)
}

// Install serves idx only if no index is served yet and returns the index
// that is served afterwards. A load racing a rebuild cannot replace the
// rebuilt index with an older generation.
func (h *Handle) Install(idx *Index) *Index {
	if h.current.CompareAndSwap(nil, idx) {
		return idx
	}
	return h.current.Load()
}
