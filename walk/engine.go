package walk

import (
	"context"
	"errors"
	"math/big"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
)

// Kangaroo is the transient state of one walk: where it is, how far it has
// hopped, and which population it belongs to. It lives only inside the
// walk/buffer pipeline; distinguished states are copied out as dp.Records.
type Kangaroo struct {
	Point    curve.Point
	Distance *big.Int
	Kind     dp.Kind
	Herd     uint32
}

// Result is the outcome of advancing one kangaroo: its new position and
// distance, and whether the new position is a distinguished point.
type Result struct {
	Point         curve.Point
	Distance      *big.Int
	Distinguished bool
}

// Engine advances a batch of kangaroos. The GPU kernel sits behind this
// boundary in production; CPUEngine is the reference implementation.
//
// Contract: exactly one Result per input, in input order, and the output is
// a deterministic function of the jump table and the input states. The
// engine never retains or mutates the inputs.
type Engine interface {
	Advance(batch []Kangaroo) ([]Result, error)
}

// CPUEngineConfig configures the reference engine.
type CPUEngineConfig struct {
	Mask dp.Mask
	// Runs is how many jumps one Advance performs per kangaroo, stopping
	// early the moment a distinguished point is hit so no DP is skipped.
	// 0 means 1.
	Runs int
}

// CPUEngine is the scalar walk engine: one point addition per jump.
type CPUEngine struct {
	g    curve.Group
	js   *JumpSet
	mask dp.Mask
	runs int
}

// NewCPUEngine builds the reference engine over g and js.
func NewCPUEngine(g curve.Group, js *JumpSet, cfg CPUEngineConfig) (*CPUEngine, error) {
	if g == nil || js == nil {
		return nil, errors.New("walk: nil group or jump set")
	}
	runs := cfg.Runs
	if runs <= 0 {
		runs = 1
	}
	return &CPUEngine{g: g, js: js, mask: cfg.Mask, runs: runs}, nil
}

func (e *CPUEngine) Advance(batch []Kangaroo) ([]Result, error) {
	out := make([]Result, len(batch))
	for i := range batch {
		k := &batch[i]
		if k.Point == nil || k.Distance == nil {
			return nil, errors.New("walk: uninitialized kangaroo in batch")
		}
		p := k.Point
		d := new(big.Int).Set(k.Distance)
		distinguished := false
		for r := 0; r < e.runs; r++ {
			j := e.js.Jump(e.js.Index(p))
			p = e.g.Add(p, j.Point)
			d.Add(d, j.Distance)
			if e.mask.Distinguished(p.Encode()) {
				distinguished = true
				break
			}
		}
		out[i] = Result{Point: p, Distance: d, Distinguished: distinguished}
	}
	return out, nil
}

// Run drives eng over herd until ctx is cancelled, writing every
// distinguished state into buf as a dp.Record. Overflow is absorbed: the
// buffer counts the drop and the walk keeps going (a lost DP is
// rediscoverable by more walking).
func Run(ctx context.Context, eng Engine, herd []Kangaroo, buf *dp.Buffer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		results, err := eng.Advance(herd)
		if err != nil {
			return err
		}
		if len(results) != len(herd) {
			return errors.New("walk: engine returned wrong batch size")
		}
		for i, r := range results {
			herd[i].Point = r.Point
			herd[i].Distance = r.Distance
			if !r.Distinguished {
				continue
			}
			rec := dp.Record{
				Point:    r.Point.Encode(),
				Distance: new(big.Int).Set(r.Distance),
				Kind:     herd[i].Kind,
				Herd:     herd[i].Herd,
			}
			if err := buf.Push(rec); err != nil && !dp.IsOverflow(err) {
				return err
			}
		}
	}
}
