package walk

import (
	"errors"
	"fmt"
	"math/big"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
)

// HerdConfig seeds one herd: a group of kangaroos of one kind sharing an
// attributable starting strategy.
//
// Distance bookkeeping (the solver depends on this exactly):
//   - Tame kangaroo i starts at (Offset + i·Spread)·G with Distance i·Spread.
//     The herd Offset stays OUT of the record and is supplied at solve time.
//   - Wild kangaroo i starts at Target + (Offset + i·Spread)·G with Distance
//     Offset + i·Spread, so its distance is always relative to the target.
type HerdConfig struct {
	Kind   dp.Kind
	ID     uint32
	Count  int
	Offset *big.Int // nil means 0
	Spread *big.Int // distance between successive starts; nil means 1
}

// SeedHerd builds the starting states for one herd. target is required for
// wild herds and ignored for tame ones.
func SeedHerd(g curve.Group, target curve.Point, cfg HerdConfig) ([]Kangaroo, error) {
	if cfg.Count <= 0 {
		return nil, errors.New("walk: herd count must be positive")
	}
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("walk: invalid herd kind %d", cfg.Kind)
	}
	if cfg.Kind == dp.Wild && target == nil {
		return nil, errors.New("walk: wild herd needs a target point")
	}
	offset := cfg.Offset
	if offset == nil {
		offset = new(big.Int)
	}
	spread := cfg.Spread
	if spread == nil || spread.Sign() == 0 {
		spread = big.NewInt(1)
	}

	herd := make([]Kangaroo, cfg.Count)
	step := new(big.Int)
	for i := range herd {
		start := new(big.Int).Add(offset, step) // Offset + i·Spread
		switch cfg.Kind {
		case dp.Tame:
			herd[i] = Kangaroo{
				Point:    g.ScalarBaseMult(start),
				Distance: new(big.Int).Set(step),
				Kind:     dp.Tame,
				Herd:     cfg.ID,
			}
		case dp.Wild:
			herd[i] = Kangaroo{
				Point:    g.Add(target, g.ScalarBaseMult(start)),
				Distance: start,
				Kind:     dp.Wild,
				Herd:     cfg.ID,
			}
		}
		step = new(big.Int).Add(step, spread)
	}
	return herd, nil
}

// ExpectedOps estimates the group operations a kangaroo search needs for an
// interval of the given bit width: about 2·sqrt(range).
func ExpectedOps(rangeBits uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(2), rangeBits/2)
}
