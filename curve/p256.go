package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cloudflare/circl/group"
)

// p256Order is the order of the NIST P-256 base-point subgroup.
var p256Order, _ = new(big.Int).SetString(
	"ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551", 16)

func init() {
	Register("p256", func() Group { return &circlGroup{name: "p256", g: group.P256, order: p256Order} })
}

// circlGroup adapts a cloudflare/circl prime-order group to the Group
// interface. Scalars cross the boundary as fixed-width big-endian bytes,
// which is the circl scalar wire format.
type circlGroup struct {
	name  string
	g     group.Group
	order *big.Int
}

func (c *circlGroup) Name() string    { return c.name }
func (c *circlGroup) Order() *big.Int { return new(big.Int).Set(c.order) }

// circlPoint wraps a circl element with its cached compressed encoding.
// The identity is encoded as a single zero byte so the canonical form does
// not depend on circl's identity serialization.
type circlPoint struct {
	e   group.Element
	enc []byte
}

func (p *circlPoint) Encode() []byte   { return p.enc }
func (p *circlPoint) IsIdentity() bool { return p.e.IsIdentity() }

func (p *circlPoint) Equal(q Point) bool {
	qc, ok := q.(*circlPoint)
	if !ok {
		return false
	}
	return p.e.IsEqual(qc.e)
}

func (c *circlGroup) wrap(e group.Element) *circlPoint {
	if e.IsIdentity() {
		return &circlPoint{e: e, enc: []byte{encIdentity}}
	}
	enc, err := e.MarshalBinaryCompress()
	if err != nil {
		// Compression of a valid non-identity element cannot fail.
		panic(fmt.Sprintf("curve: %s compress: %v", c.name, err))
	}
	return &circlPoint{e: e, enc: enc}
}

func (c *circlGroup) scalar(k *big.Int) group.Scalar {
	kk := new(big.Int).Mod(k, c.order)
	buf := make([]byte, c.g.Params().ScalarLength)
	kk.FillBytes(buf)
	s := c.g.NewScalar()
	if err := s.UnmarshalBinary(buf); err != nil {
		panic(fmt.Sprintf("curve: %s scalar: %v", c.name, err))
	}
	return s
}

func (c *circlGroup) Generator() Point {
	return c.wrap(c.g.Generator())
}

func (c *circlGroup) Add(p, q Point) Point {
	pc, ok1 := p.(*circlPoint)
	qc, ok2 := q.(*circlPoint)
	if !ok1 || !ok2 {
		panic("curve: foreign point passed to circl group")
	}
	return c.wrap(c.g.NewElement().Add(pc.e, qc.e))
}

func (c *circlGroup) ScalarMult(p Point, k *big.Int) Point {
	pc, ok := p.(*circlPoint)
	if !ok {
		panic("curve: foreign point passed to circl group")
	}
	return c.wrap(c.g.NewElement().Mul(pc.e, c.scalar(k)))
}

func (c *circlGroup) ScalarBaseMult(k *big.Int) Point {
	return c.wrap(c.g.NewElement().MulGen(c.scalar(k)))
}

func (c *circlGroup) Decode(b []byte) (Point, error) {
	if len(b) == 0 {
		return nil, errors.New("curve: empty point encoding")
	}
	if len(b) == 1 && b[0] == encIdentity {
		return c.wrap(c.g.Identity()), nil
	}
	e := c.g.NewElement()
	if err := e.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("curve: %s decode: %w", c.name, err)
	}
	return c.wrap(e), nil
}
