package dp

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferCapacity matches the original engine's per-GPU ceiling:
// 256K records is roughly 20 MB and gives a fast producer about two send
// periods of headroom.
const DefaultBufferCapacity = 262144

// BufferConfig configures one Buffer. The zero value picks defaults.
type BufferConfig struct {
	// Capacity is the maximum number of queued records. 0 means
	// DefaultBufferCapacity.
	Capacity int
}

// Buffer is the bounded queue between one producing lane and the merge
// client. Push never blocks: when the buffer is full the NEWEST record is
// the one dropped (the queued prefix keeps its insertion order and the
// overflow is reported to the pusher), so a stalled consumer degrades into
// counted loss rather than reordering or unbounded memory.
//
// Push and Drain may race freely; Drain takes the whole queued contents in
// one step and the buffer is immediately reusable.
type Buffer struct {
	mu   sync.Mutex
	recs []Record
	cap  int

	pushed  atomic.Uint64
	dropped atomic.Uint64
	drains  atomic.Uint64
}

// NewBuffer returns an empty buffer with the configured capacity.
func NewBuffer(cfg BufferConfig) *Buffer {
	c := cfg.Capacity
	if c <= 0 {
		c = DefaultBufferCapacity
	}
	return &Buffer{cap: c}
}

// Push queues r. Returns ErrOverflow (and drops r) when the buffer is full,
// and ErrInvalidRecord for records with no point or distance.
func (b *Buffer) Push(r Record) error {
	if len(r.Point) == 0 || r.Distance == nil || !r.Kind.Valid() {
		return ErrInvalidRecord
	}
	b.mu.Lock()
	if len(b.recs) >= b.cap {
		b.mu.Unlock()
		b.dropped.Add(1)
		return ErrOverflow
	}
	b.recs = append(b.recs, r)
	b.mu.Unlock()
	b.pushed.Add(1)
	return nil
}

// Drain removes and returns everything queued, in insertion order. The
// returned slice is owned by the caller; a concurrent Push lands in the
// fresh queue and is picked up by the next drain.
func (b *Buffer) Drain() []Record {
	b.mu.Lock()
	out := b.recs
	b.recs = nil
	b.mu.Unlock()
	if len(out) > 0 {
		b.drains.Add(1)
	}
	return out
}

// Len reports the number of queued records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recs)
}

// Full reports whether the next Push would overflow. Clients use this as the
// early-flush signal.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recs) >= b.cap
}

// BufferStats is a point-in-time diagnostics snapshot.
type BufferStats struct {
	Queued  int
	Pushed  uint64
	Dropped uint64
	Drains  uint64
}

func (b *Buffer) Stats() BufferStats {
	return BufferStats{
		Queued:  b.Len(),
		Pushed:  b.pushed.Load(),
		Dropped: b.dropped.Load(),
		Drains:  b.drains.Load(),
	}
}
