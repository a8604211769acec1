package buffer

import "sync/atomic"

// Statistics tracks buffer activity with atomic counters so readers never
// contend with the buffer's own lock.
type Statistics struct {
	writes      atomic.Int64
	reads       atomic.Int64
	drops       atomic.Int64
	currentSize atomic.Int64
}

// NewStatistics creates a zeroed statistics aggregate.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records a successful write.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records a successful read.
func (s *Statistics) Read() { s.reads.Add(1) }

// Drop records an item dropped by the overflow policy.
func (s *Statistics) Drop() { s.drops.Add(1) }

// UpdateSize records the current buffer occupancy.
func (s *Statistics) UpdateSize(size int64) { s.currentSize.Store(size) }

// Writes returns the total number of writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the total number of reads.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the total number of dropped items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the last recorded occupancy.
func (s *Statistics) CurrentSize() int64 { return s.currentSize.Load() }
