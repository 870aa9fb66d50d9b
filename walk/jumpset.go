// Package walk holds the pseudorandom-walk side of the kangaroo search: the
// precomputed jump table, the walk state, the batched engine boundary the
// GPU (or the CPU fallback) sits behind, and herd seeding.
package walk

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"

	"golang.org/x/crypto/sha3"

	"ecdlp.dev/kangaroo/curve"
)

// JumpCount is the fixed size of the jump table. 32 keeps the whole table in
// GPU constant memory; the walk mixes well long before the count matters.
const JumpCount = 32

// Jump is one precomputed hop: a point and the scalar it stands for.
type Jump struct {
	Point    curve.Point
	Distance *big.Int
}

// JumpSetConfig selects the jump table. Seed and RangeBits must match across
// every producer of a search, or their walks never collide.
type JumpSetConfig struct {
	// Seed feeds the SHAKE-256 stream the jump distances are read from.
	Seed []byte
	// RangeBits is the bit width of the search interval. Jump distances are
	// drawn uniformly from [1, 2^(RangeBits/2)], putting the mean jump near
	// sqrt(range)/2, which is where the kangaroo heuristic wants it.
	RangeBits uint
}

// JumpSet is an immutable table of JumpCount pseudorandom jumps,
// deterministically derived from the config.
type JumpSet struct {
	jumps [JumpCount]Jump
}

// NewJumpSet derives the jump table for g from cfg. The derivation is a pure
// function of (Seed, RangeBits, g): every worker that agrees on the config
// computes bit-identical jumps.
func NewJumpSet(g curve.Group, cfg JumpSetConfig) (*JumpSet, error) {
	if cfg.RangeBits == 0 {
		return nil, errors.New("walk: RangeBits must be positive")
	}
	half := cfg.RangeBits / 2
	if half == 0 {
		half = 1
	}
	bound := new(big.Int).Lsh(big.NewInt(1), half) // 2^(RangeBits/2)
	width := (int(half) + 7) / 8

	shake := sha3.NewShake256()
	_, _ = shake.Write([]byte("kangaroo-jump-table-v1"))
	_, _ = shake.Write(cfg.Seed)

	js := &JumpSet{}
	buf := make([]byte, width+8) // oversample to keep the modulo bias negligible
	for i := 0; i < JumpCount; i++ {
		if _, err := shake.Read(buf); err != nil {
			return nil, fmt.Errorf("walk: jump derivation: %w", err)
		}
		d := new(big.Int).SetBytes(buf)
		d.Mod(d, bound)
		d.Add(d, big.NewInt(1)) // never a zero-length jump
		js.jumps[i] = Jump{
			Point:    g.ScalarBaseMult(d),
			Distance: d,
		}
	}
	return js, nil
}

// Index selects the jump for a point, by hashing its canonical encoding.
// Deliberately independent of the distinguished-point predicate: the DP mask
// zeroes low-order encoding bits, so raw low bits would make a biased pick.
func (js *JumpSet) Index(p curve.Point) int {
	h := fnv.New32a()
	_, _ = h.Write(p.Encode())
	return int(h.Sum32() % JumpCount)
}

// Jump returns table entry i.
func (js *JumpSet) Jump(i int) Jump { return js.jumps[i] }
