package curve_test

import (
	"math/big"
	"testing"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/curve/testkit"
)

// Order-11 subgroup on y² = x³ + 7x + 6 over F_13, generated by (1,1).
func newToy(t *testing.T) curve.Group {
	t.Helper()
	g, err := curve.NewWeierstrass("toy13",
		big.NewInt(13), big.NewInt(7), big.NewInt(6),
		big.NewInt(1), big.NewInt(1), big.NewInt(11))
	if err != nil {
		t.Fatalf("NewWeierstrass: %v", err)
	}
	return g
}

func TestWeierstrassConformance(t *testing.T) {
	testkit.RunGroupConformance(t, newToy)
}

func TestWeierstrassKnownMultiples(t *testing.T) {
	g := newToy(t)
	// Full multiplication table of the order-11 subgroup.
	want := [][2]int64{
		{1, 1}, {10, 6}, {6, 2}, {5, 6}, {11, 6},
		{11, 7}, {5, 7}, {6, 11}, {10, 7}, {1, 12},
	}
	for i, xy := range want {
		k := int64(i + 1)
		p := g.ScalarBaseMult(big.NewInt(k))
		q, err := g.Decode(p.Encode())
		if err != nil {
			t.Fatalf("k=%d: Decode: %v", k, err)
		}
		if !p.Equal(q) {
			t.Fatalf("k=%d: decode round trip mismatch", k)
		}
		wantP := mustPoint(t, g, xy[0], xy[1])
		if !p.Equal(wantP) {
			t.Fatalf("k=%d: got %x want (%d,%d)", k, p.Encode(), xy[0], xy[1])
		}
	}
	if !g.ScalarBaseMult(big.NewInt(11)).IsIdentity() {
		t.Fatalf("11·G should be the identity")
	}
}

func mustPoint(t *testing.T, g curve.Group, x, y int64) curve.Point {
	t.Helper()
	enc := make([]byte, 2)
	if y%2 == 0 {
		enc[0] = 0x02
	} else {
		enc[0] = 0x03
	}
	enc[1] = byte(x)
	p, err := g.Decode(enc)
	if err != nil {
		t.Fatalf("Decode(%d,%d): %v", x, y, err)
	}
	return p
}

func TestWeierstrassRejectsBadParameters(t *testing.T) {
	// Singular: 4A³ + 27B² ≡ 0.
	if _, err := curve.NewWeierstrass("bad",
		big.NewInt(13), big.NewInt(0), big.NewInt(0),
		big.NewInt(1), big.NewInt(1), big.NewInt(11)); err == nil {
		t.Fatalf("singular curve accepted")
	}
	// Generator off the curve.
	if _, err := curve.NewWeierstrass("bad",
		big.NewInt(13), big.NewInt(7), big.NewInt(6),
		big.NewInt(2), big.NewInt(2), big.NewInt(11)); err == nil {
		t.Fatalf("off-curve generator accepted")
	}
}

func TestLookupRegistry(t *testing.T) {
	g, err := curve.Lookup("p256")
	if err != nil {
		t.Fatalf("Lookup(p256): %v", err)
	}
	if g.Name() != "p256" {
		t.Fatalf("unexpected name %q", g.Name())
	}
	if _, err := curve.Lookup("nope"); err == nil {
		t.Fatalf("Lookup of unknown group should fail")
	}
}
