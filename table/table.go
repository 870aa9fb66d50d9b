// Package table is the server-side authority for collision detection: it
// merges distinguished-point records from every producer into one sharded
// structure and reports the first tame/wild meeting, which the solver turns
// into the discrete logarithm.
package table

import (
	"sync"
	"sync/atomic"

	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/shardmap"
)

// Config sizes the table. The zero value picks defaults.
type Config struct {
	// Shards is the merge partition count. 0 means shardmap.DefaultShards.
	Shards int
}

// Collision is a tame/wild pair that landed on the same point. Existing is
// the record that was already committed; Incoming is the one whose insertion
// detected the meeting.
type Collision struct {
	Existing dp.Record
	Incoming dp.Record
}

// Table maps a point's canonical encoding to the first record seen for it.
// Entries are never mutated or removed; a conflicting insertion resolves in
// analysis (collision or duplicate), not in storage.
type Table struct {
	m *shardmap.Map[dp.Record]

	mu        sync.Mutex
	collision *Collision // set once, under mu
	solved    atomic.Bool

	inserted atomic.Uint64
	dupes    atomic.Uint64
	rejected atomic.Uint64
}

// New returns an empty table.
func New(cfg Config) *Table {
	return &Table{m: shardmap.New[dp.Record](cfg.Shards)}
}

// Insert commits rec unless its point is already present.
//
//   - absent point: rec is stored; returns (nil, nil).
//   - present, same kind: rec is discarded and counted; returns (nil, nil).
//     Two walks of one population meeting is wasted work, not an error.
//   - present, different kind: the collision; returns it exactly once and
//     latches the table solved. Later inserts are accepted but not merged
//     and report ErrSolved, so the server can bound its shutdown.
//
// Concurrent inserts contend only on the shard the point hashes to.
func (t *Table) Insert(rec dp.Record) (*Collision, error) {
	if len(rec.Point) == 0 || rec.Distance == nil || !rec.Kind.Valid() {
		t.rejected.Add(1)
		return nil, dp.ErrInvalidRecord
	}
	if t.solved.Load() {
		return nil, ErrSolved
	}

	existing, loaded := t.m.LoadOrStore(string(rec.Point), rec)
	if !loaded {
		t.inserted.Add(1)
		return nil, nil
	}
	if existing.Kind == rec.Kind {
		t.dupes.Add(1)
		return nil, nil
	}

	// Tame met wild. Only the first detection wins the latch.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.collision != nil {
		return nil, ErrSolved
	}
	col := &Collision{Existing: existing, Incoming: rec}
	t.collision = col
	t.solved.Store(true)
	return col, nil
}

// Solved reports whether a collision has been latched, and returns it.
func (t *Table) Solved() (*Collision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collision, t.collision != nil
}

// Reopen clears the solved latch after a false-positive collision so the
// merge path can resume. The conflicting entry stays committed; the walk
// that produced the losing record simply keeps going.
func (t *Table) Reopen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.collision = nil
	t.solved.Store(false)
}

// Len reports the number of committed records.
func (t *Table) Len() int { return t.m.Len() }

// ShardIndex exposes the routing decision for a point encoding, for
// diagnostics and partition-invariant tests.
func (t *Table) ShardIndex(point []byte) int { return t.m.ShardIndex(string(point)) }

// Snapshot returns every committed record, in unspecified order. This is the
// enumerable view checkpointing consumes.
func (t *Table) Snapshot() []dp.Record {
	out := make([]dp.Record, 0, t.m.Len())
	t.m.Range(func(_ string, rec dp.Record) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// Stats is a point-in-time diagnostics snapshot.
type Stats struct {
	Entries   int
	Inserted  uint64
	Duplicate uint64
	Rejected  uint64
}

func (t *Table) Stats() Stats {
	return Stats{
		Entries:   t.m.Len(),
		Inserted:  t.inserted.Load(),
		Duplicate: t.dupes.Load(),
		Rejected:  t.rejected.Load(),
	}
}
