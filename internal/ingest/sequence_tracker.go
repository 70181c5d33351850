package ingest

import (
	"sync/atomic"
)

// SequenceTracker remembers the last dispatch sequence seen on a connection.
type SequenceTracker struct {
	sequence atomic.Int64
	seen     atomic.Bool
}

func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{}
}

func (st *SequenceTracker) Update(seq int64) {
	st.sequence.Store(seq)
	st.seen.Store(true)
}

// Get returns the last sequence and whether any has been seen.
func (st *SequenceTracker) Get() (int64, bool) {
	if !st.seen.Load() {
		return 0, false
	}
	return st.sequence.Load(), true
}

func (st *SequenceTracker) Reset() {
	st.seen.Store(false)
	st.sequence.Store(0)
}
