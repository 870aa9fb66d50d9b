package walk_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"ecdlp.dev/kangaroo/curve/testkit"
	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/walk"
)

func TestJumpSetDeterministic(t *testing.T) {
	g := testkit.ToyGroup(t)
	cfg := walk.JumpSetConfig{Seed: []byte("seed-a"), RangeBits: 4}
	a, err := walk.NewJumpSet(g, cfg)
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	b, err := walk.NewJumpSet(g, cfg)
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	for i := 0; i < walk.JumpCount; i++ {
		ja, jb := a.Jump(i), b.Jump(i)
		if ja.Distance.Cmp(jb.Distance) != 0 || !ja.Point.Equal(jb.Point) {
			t.Fatalf("jump %d differs across identically-seeded tables", i)
		}
		if ja.Distance.Sign() <= 0 {
			t.Fatalf("jump %d has non-positive distance %v", i, ja.Distance)
		}
		// Each entry must be internally consistent: Point = Distance·G.
		if !ja.Point.Equal(g.ScalarBaseMult(ja.Distance)) {
			t.Fatalf("jump %d: point does not match its distance", i)
		}
	}

	other, err := walk.NewJumpSet(g, walk.JumpSetConfig{Seed: []byte("seed-b"), RangeBits: 4})
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	same := true
	for i := 0; i < walk.JumpCount; i++ {
		if a.Jump(i).Distance.Cmp(other.Jump(i).Distance) != 0 {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical jump tables")
	}
}

func TestJumpIndexStable(t *testing.T) {
	g := testkit.ToyGroup(t)
	js, err := walk.NewJumpSet(g, walk.JumpSetConfig{Seed: []byte("s"), RangeBits: 4})
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	for k := int64(1); k <= 10; k++ {
		p := g.ScalarBaseMult(big.NewInt(k))
		idx := js.Index(p)
		if idx < 0 || idx >= walk.JumpCount {
			t.Fatalf("index %d out of range", idx)
		}
		if js.Index(p) != idx {
			t.Fatalf("index not stable for point %d·G", k)
		}
	}
}

func TestCPUEngineDeterministicAndOrdered(t *testing.T) {
	g := testkit.ToyGroup(t)
	js, err := walk.NewJumpSet(g, walk.JumpSetConfig{Seed: []byte("s"), RangeBits: 4})
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	eng, err := walk.NewCPUEngine(g, js, walk.CPUEngineConfig{Mask: dp.Mask{Bits: 1}})
	if err != nil {
		t.Fatalf("NewCPUEngine: %v", err)
	}

	herd, err := walk.SeedHerd(g, nil, walk.HerdConfig{Kind: dp.Tame, Count: 4})
	if err != nil {
		t.Fatalf("SeedHerd: %v", err)
	}
	snapshot := make([]walk.Kangaroo, len(herd))
	copy(snapshot, herd)

	r1, err := eng.Advance(herd)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	r2, err := eng.Advance(snapshot)
	if err != nil {
		t.Fatalf("Advance(copy): %v", err)
	}
	if len(r1) != len(herd) || len(r2) != len(herd) {
		t.Fatalf("engine must return one result per input")
	}
	for i := range r1 {
		if !r1[i].Point.Equal(r2[i].Point) || r1[i].Distance.Cmp(r2[i].Distance) != 0 ||
			r1[i].Distinguished != r2[i].Distinguished {
			t.Fatalf("result %d not deterministic", i)
		}
		// One jump from the input state reproduces the result.
		j := js.Jump(js.Index(herd[i].Point))
		if !r1[i].Point.Equal(g.Add(herd[i].Point, j.Point)) {
			t.Fatalf("result %d: point is not input + selected jump", i)
		}
		wantD := new(big.Int).Add(herd[i].Distance, j.Distance)
		if r1[i].Distance.Cmp(wantD) != 0 {
			t.Fatalf("result %d: distance %v, want %v", i, r1[i].Distance, wantD)
		}
		if r1[i].Distinguished != (dp.Mask{Bits: 1}).Distinguished(r1[i].Point.Encode()) {
			t.Fatalf("result %d: distinguished flag disagrees with the mask", i)
		}
	}
}

func TestSeedHerdBookkeeping(t *testing.T) {
	g := testkit.ToyGroup(t)
	target := g.ScalarBaseMult(big.NewInt(7))

	tame, err := walk.SeedHerd(g, nil, walk.HerdConfig{
		Kind: dp.Tame, ID: 1, Count: 3, Offset: big.NewInt(3), Spread: big.NewInt(2),
	})
	if err != nil {
		t.Fatalf("SeedHerd(tame): %v", err)
	}
	for i, k := range tame {
		// Point must be (offset + distance)·G.
		total := new(big.Int).Add(big.NewInt(3), k.Distance)
		if !k.Point.Equal(g.ScalarBaseMult(total)) {
			t.Fatalf("tame %d: point != (offset+distance)·G", i)
		}
		if k.Distance.Int64() != int64(2*i) {
			t.Fatalf("tame %d: distance %v, want %d", i, k.Distance, 2*i)
		}
	}

	wild, err := walk.SeedHerd(g, target, walk.HerdConfig{
		Kind: dp.Wild, ID: 2, Count: 3, Offset: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("SeedHerd(wild): %v", err)
	}
	for i, k := range wild {
		// Point must be Target + distance·G.
		want := g.Add(target, g.ScalarBaseMult(k.Distance))
		if !k.Point.Equal(want) {
			t.Fatalf("wild %d: point != target + distance·G", i)
		}
	}

	if _, err := walk.SeedHerd(g, nil, walk.HerdConfig{Kind: dp.Wild, Count: 1}); err == nil {
		t.Fatalf("wild herd without target should fail")
	}
}

func TestRunCollectsDistinguishedPoints(t *testing.T) {
	g := testkit.ToyGroup(t)
	js, err := walk.NewJumpSet(g, walk.JumpSetConfig{Seed: []byte("collect"), RangeBits: 4})
	if err != nil {
		t.Fatalf("NewJumpSet: %v", err)
	}
	// Mask zero: every step is distinguished, so the buffer fills quickly.
	eng, err := walk.NewCPUEngine(g, js, walk.CPUEngineConfig{})
	if err != nil {
		t.Fatalf("NewCPUEngine: %v", err)
	}
	herd, err := walk.SeedHerd(g, nil, walk.HerdConfig{Kind: dp.Tame, ID: 9, Count: 2})
	if err != nil {
		t.Fatalf("SeedHerd: %v", err)
	}

	buf := dp.NewBuffer(dp.BufferConfig{Capacity: 64})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- walk.Run(ctx, eng, herd, buf) }()

	deadline := time.After(2 * time.Second)
	for buf.Len() < 8 {
		select {
		case <-deadline:
			t.Fatalf("walk produced only %d records", buf.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != context.Canceled && err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v", err)
	}

	for _, r := range buf.Drain() {
		if r.Kind != dp.Tame || r.Herd != 9 {
			t.Fatalf("record carries wrong attribution: %+v", r)
		}
		p, err := g.Decode(r.Point)
		if err != nil {
			t.Fatalf("record point does not decode: %v", err)
		}
		if !bytes.Equal(p.Encode(), r.Point) {
			t.Fatalf("record point not canonical")
		}
	}
}
