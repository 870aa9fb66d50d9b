package dp

import (
	"math/big"
	"sync"
	"testing"
)

func rec(i int64) Record {
	return Record{Point: []byte{0x02, byte(i)}, Distance: big.NewInt(i), Kind: Tame}
}

func TestBufferFIFOWithinCapacity(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 64})
	for i := int64(0); i < 40; i++ {
		if err := b.Push(rec(i)); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	out := b.Drain()
	if len(out) != 40 {
		t.Fatalf("drained %d records, want 40", len(out))
	}
	for i, r := range out {
		if r.Distance.Int64() != int64(i) {
			t.Fatalf("record %d out of order: distance %v", i, r.Distance)
		}
	}
	// Restartable: the buffer accepts pushes again immediately.
	if err := b.Push(rec(99)); err != nil {
		t.Fatalf("Push after drain: %v", err)
	}
	if got := b.Drain(); len(got) != 1 || got[0].Distance.Int64() != 99 {
		t.Fatalf("second drain got %v", got)
	}
}

func TestBufferOverflowDropsNewest(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 8})
	for i := int64(0); i < 8; i++ {
		if err := b.Push(rec(i)); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if !b.Full() {
		t.Fatalf("buffer should report full at capacity")
	}
	if err := b.Push(rec(8)); !IsOverflow(err) {
		t.Fatalf("push over capacity: got %v, want overflow", err)
	}
	out := b.Drain()
	if len(out) != 8 {
		t.Fatalf("retained %d records, want capacity 8", len(out))
	}
	// The dropped record is the newest one: the retained prefix is 0..7.
	if out[len(out)-1].Distance.Int64() != 7 {
		t.Fatalf("tail record is %v, want 7", out[len(out)-1].Distance)
	}
	if st := b.Stats(); st.Dropped != 1 || st.Pushed != 8 {
		t.Fatalf("stats %+v, want 8 pushed / 1 dropped", st)
	}
}

func TestBufferRejectsMalformedRecords(t *testing.T) {
	b := NewBuffer(BufferConfig{})
	if err := b.Push(Record{Distance: big.NewInt(1), Kind: Tame}); err != ErrInvalidRecord {
		t.Fatalf("missing point: got %v", err)
	}
	if err := b.Push(Record{Point: []byte{1}, Kind: Wild}); err != ErrInvalidRecord {
		t.Fatalf("missing distance: got %v", err)
	}
	if err := b.Push(Record{Point: []byte{1}, Distance: big.NewInt(1), Kind: Kind(7)}); err != ErrInvalidRecord {
		t.Fatalf("bad kind: got %v", err)
	}
}

// A drain racing a pushing producer must neither lose a record nor hand one
// out twice.
func TestBufferDrainConcurrentWithPush(t *testing.T) {
	const total = 20000
	b := NewBuffer(BufferConfig{Capacity: total})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); i < total; i++ {
			if err := b.Push(rec(i)); err != nil {
				t.Errorf("Push(%d): %v", i, err)
				return
			}
		}
	}()

	seen := make(map[int64]bool, total)
	collect := func(recs []Record) {
		for _, r := range recs {
			d := r.Distance.Int64()
			if seen[d] {
				t.Fatalf("record %d drained twice", d)
			}
			seen[d] = true
		}
	}
	for len(seen) < total {
		collect(b.Drain())
	}
	wg.Wait()
	collect(b.Drain())
	if len(seen) != total {
		t.Fatalf("drained %d distinct records, want %d", len(seen), total)
	}
}

func TestMaskDistinguished(t *testing.T) {
	cases := []struct {
		bits uint
		enc  []byte
		want bool
	}{
		{0, []byte{0xff}, true},                 // zero mask: everything is a DP
		{4, []byte{0x12, 0x30}, true},           // low nibble zero
		{4, []byte{0x12, 0x38}, false}, // low nibble set
		{8, []byte{0x12, 0x00}, true},
		{8, []byte{0x12, 0x01}, false},
		{12, []byte{0x12, 0x10, 0x00}, true},
		{12, []byte{0x12, 0x18, 0x00}, false},
		{24, []byte{0x00, 0x00}, false}, // mask wider than the encoding
	}
	for i, c := range cases {
		if got := (Mask{Bits: c.bits}).Distinguished(c.enc); got != c.want {
			t.Errorf("case %d: mask %d on %x: got %v want %v", i, c.bits, c.enc, got, c.want)
		}
	}
}
