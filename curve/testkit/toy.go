package testkit

import (
	"math/big"
	"testing"

	"ecdlp.dev/kangaroo/curve"
)

// ToyGroup returns the order-11 subgroup on y² = x³ + 7x + 6 over F_13 with
// generator (1,1). Small enough to enumerate by hand, which makes collision
// and solver scenarios exactly checkable.
func ToyGroup(t *testing.T) curve.Group {
	t.Helper()
	g, err := curve.NewWeierstrass("toy13",
		big.NewInt(13), big.NewInt(7), big.NewInt(6),
		big.NewInt(1), big.NewInt(1), big.NewInt(11))
	if err != nil {
		t.Fatalf("toy group construction failed: %v", err)
	}
	return g
}
