package table_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/curve/testkit"
	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/table"
)

// Order-11 toy scenario: target P = 7·G, tame herd offset 3.
// A tame walk at accumulated distance 9 sits on (3+9)·G = 1·G; a wild walk
// at distance 5 sits on P + 5·G = 12·G = 1·G. Same point, k = 3 + 9 − 5 = 7.
func solveFixture(t *testing.T) (curve.Group, curve.Point, table.Collision) {
	g := testkit.ToyGroup(t)
	target := g.ScalarBaseMult(big.NewInt(7))
	meet := g.ScalarBaseMult(big.NewInt(1)).Encode()
	col := table.Collision{
		Existing: dp.Record{Point: meet, Distance: big.NewInt(9), Kind: dp.Tame},
		Incoming: dp.Record{Point: meet, Distance: big.NewInt(5), Kind: dp.Wild},
	}
	return g, target, col
}

func TestSolveRoundTrip(t *testing.T) {
	g, target, col := solveFixture(t)

	k, err := table.Solve(g, target, big.NewInt(3), col)
	require.NoError(t, err)
	require.Equal(t, int64(7), k.Int64())
	require.True(t, g.ScalarBaseMult(k).Equal(target), "k·G must equal P exactly")

	// Collision orientation must not matter.
	swapped := table.Collision{Existing: col.Incoming, Incoming: col.Existing}
	k2, err := table.Solve(g, target, big.NewInt(3), swapped)
	require.NoError(t, err)
	require.Equal(t, int64(7), k2.Int64())
}

func TestSolveCorruptedDistanceFailsVerification(t *testing.T) {
	g, target, col := solveFixture(t)
	col.Incoming.Distance = big.NewInt(6) // off by one
	_, err := table.Solve(g, target, big.NewInt(3), col)
	require.ErrorIs(t, err, table.ErrVerify)
}

func TestSolveRejectsNonPrimeOrder(t *testing.T) {
	// Same curve points, but a group claiming a composite order: a
	// configuration error, not a verification failure.
	bad, err := curve.NewWeierstrass("toy13-bad-order",
		big.NewInt(13), big.NewInt(7), big.NewInt(6),
		big.NewInt(1), big.NewInt(1), big.NewInt(12))
	require.NoError(t, err)

	_, target, col := solveFixture(t)
	_, err = table.Solve(bad, target, big.NewInt(3), col)
	require.ErrorIs(t, err, table.ErrNoSolution)
}

func TestSolveRejectsMismatchedPairs(t *testing.T) {
	g, target, col := solveFixture(t)

	sameKind := col
	sameKind.Incoming.Kind = dp.Tame
	_, err := table.Solve(g, target, big.NewInt(3), sameKind)
	require.ErrorIs(t, err, table.ErrKindMismatch)

	otherPoint := col
	otherPoint.Incoming.Point = g.ScalarBaseMult(big.NewInt(2)).Encode()
	_, err = table.Solve(g, target, big.NewInt(3), otherPoint)
	require.ErrorIs(t, err, table.ErrKindMismatch)
}
