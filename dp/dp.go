// Package dp defines distinguished-point records — the unit of transmission
// and table insertion for the collision search — together with the sparsity
// predicate that selects them and the bounded per-lane buffer that queues
// them for merge.
package dp

import "math/big"

// Kind tells which population a kangaroo walks in. The numeric values are
// part of the wire format and of checkpoint files; do not renumber.
type Kind uint8

const (
	// Tame kangaroos walk from a known multiple of the generator.
	Tame Kind = 0
	// Wild kangaroos walk from the target point.
	Wild Kind = 1
)

func (k Kind) String() string {
	switch k {
	case Tame:
		return "tame"
	case Wild:
		return "wild"
	default:
		return "invalid"
	}
}

// Valid reports whether k is one of the two defined kinds.
func (k Kind) Valid() bool { return k == Tame || k == Wild }

// Record is one distinguished point: where a walk landed and how far it had
// travelled when it got there. Records are immutable once constructed.
//
// Distance is the jump total accumulated by the walk. For tame kangaroos it
// is measured relative to the herd's starting multiple of G (the herd offset
// is kept out of the record and supplied at solve time); for wild kangaroos
// it is measured relative to the target point, with any wild start offset
// folded in at seeding time.
type Record struct {
	Point    []byte // canonical point encoding
	Distance *big.Int
	Kind     Kind
	Herd     uint32
	Client   string // origin client id; assigned by the server on ingest
}

// Mask is the distinguished-point predicate: a point is distinguished when
// the low-order Bits bits of its canonical encoding are all zero. Bits
// trades DP density against walk length; it is fixed for the life of a
// search and must match between every client and the server.
type Mask struct {
	Bits uint
}

// Distinguished reports whether enc satisfies the predicate. A pure function
// of the encoding bytes: every producer classifies a point identically.
func (m Mask) Distinguished(enc []byte) bool {
	bits := m.Bits
	if bits == 0 {
		return true
	}
	if bits > uint(len(enc))*8 {
		return false
	}
	i := len(enc) - 1
	for bits >= 8 {
		if enc[i] != 0 {
			return false
		}
		i--
		bits -= 8
	}
	if bits > 0 && enc[i]&(1<<bits-1) != 0 {
		return false
	}
	return true
}
