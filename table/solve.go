package table

import (
	"bytes"
	"math/big"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
)

// Solve recovers the discrete logarithm from a tame/wild collision.
//
// The tame record's distance is relative to the herd's starting multiple of
// G (offsetTame); the wild record's distance is relative to the target P.
// Both walks reached the same point, so
//
//	(offsetTame + d_tame)·G = P + d_wild·G
//	k = offsetTame + d_tame − d_wild  (mod N)
//
// The candidate is only returned after verifying k·G = P. A failed check
// means the collision was a false positive and the caller must resume the
// search; the candidate is never trusted on arithmetic alone.
func Solve(g curve.Group, target curve.Point, offsetTame *big.Int, col Collision) (*big.Int, error) {
	order := g.Order()
	if order == nil || order.Sign() <= 0 || !order.ProbablyPrime(32) {
		return nil, ErrNoSolution
	}

	tame, wild := col.Existing, col.Incoming
	if tame.Kind != dp.Tame {
		tame, wild = wild, tame
	}
	if tame.Kind != dp.Tame || wild.Kind != dp.Wild {
		return nil, ErrKindMismatch
	}
	if !bytes.Equal(tame.Point, wild.Point) {
		return nil, ErrKindMismatch
	}
	if tame.Distance == nil || wild.Distance == nil {
		return nil, dp.ErrInvalidRecord
	}
	if offsetTame == nil {
		offsetTame = new(big.Int)
	}

	k := new(big.Int).Add(offsetTame, tame.Distance)
	k.Sub(k, wild.Distance)
	k.Mod(k, order)

	if !g.ScalarBaseMult(k).Equal(target) {
		return nil, ErrVerify
	}
	return k, nil
}
