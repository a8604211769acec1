// Package buffer provides a thread-safe bounded circular buffer with
// configurable overflow policies. The fan-out distributor uses it as the
// local backup buffer with oldest-dropped eviction.
package buffer

// OverflowPolicy controls what happens when a full buffer receives a write.
type OverflowPolicy int

const (
	// DropOldest evicts the single oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item and keeps the buffer unchanged.
	DropNewest
)

// Buffer is a bounded FIFO container.
type Buffer[T any] interface {
	// Write adds an item according to the overflow policy. It never blocks.
	Write(item T) error
	// Read retrieves and removes the oldest item.
	Read() (T, bool)
	// ReadBatch retrieves and removes up to max items in arrival order.
	ReadBatch(max int) []T
	// Peek returns the oldest item without removing it.
	Peek() (T, bool)
	// Snapshot returns a copy of the buffered items in arrival order.
	Snapshot() []T
	// Size returns the current number of buffered items.
	Size() int
	// Capacity returns the fixed maximum number of items.
	Capacity() int
	// Clear removes all items.
	Clear()
	// Stats returns buffer statistics.
	Stats() *Statistics
	// Close shuts down the buffer; subsequent writes fail.
	Close() error
}

// Option configures a buffer at construction time.
type Option[T any] func(*options[T])

type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   func(T)
}

// WithOverflowPolicy sets the overflow policy (default DropOldest).
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.overflowPolicy = policy
	}
}

// WithDropCallback registers a callback invoked for every dropped item.
func WithDropCallback[T any](cb func(T)) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = cb
	}
}
