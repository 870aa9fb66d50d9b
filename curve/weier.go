package curve

import (
	"errors"
	"fmt"
	"math/big"
)

// Weierstrass is a short-form Weierstrass group y² = x³ + Ax + B over F_P,
// restricted to the subgroup of order N generated by (Gx, Gy). Arithmetic is
// plain affine math/big; it is meant for small curves (tests, toy searches)
// and for curves no optimized backend covers, not for raw speed.
type Weierstrass struct {
	CurveName string
	P         *big.Int // field prime
	A, B      *big.Int // curve equation constants
	Gx, Gy    *big.Int // generator
	N         *big.Int // subgroup order

	byteLen int // field element width of the encoding
}

// NewWeierstrass validates the parameters and returns the group.
func NewWeierstrass(name string, p, a, b, gx, gy, n *big.Int) (*Weierstrass, error) {
	if p == nil || a == nil || b == nil || gx == nil || gy == nil || n == nil {
		return nil, errors.New("curve: nil weierstrass parameter")
	}
	if p.Sign() <= 0 || n.Sign() <= 0 {
		return nil, errors.New("curve: non-positive modulus or order")
	}
	// 4A³ + 27B² ≠ 0 (non-singular)
	d := new(big.Int).Exp(a, big.NewInt(3), p)
	d.Mul(d, big.NewInt(4))
	bb := new(big.Int).Mul(b, b)
	bb.Mul(bb, big.NewInt(27))
	d.Add(d, bb)
	if d.Mod(d, p).Sign() == 0 {
		return nil, errors.New("curve: singular weierstrass parameters")
	}
	w := &Weierstrass{
		CurveName: name,
		P:         new(big.Int).Set(p),
		A:         new(big.Int).Set(a),
		B:         new(big.Int).Set(b),
		Gx:        new(big.Int).Set(gx),
		Gy:        new(big.Int).Set(gy),
		N:         new(big.Int).Set(n),
		byteLen:   (p.BitLen() + 7) / 8,
	}
	if !w.isOnCurve(gx, gy) {
		return nil, errors.New("curve: generator not on curve")
	}
	return w, nil
}

func (w *Weierstrass) Name() string    { return w.CurveName }
func (w *Weierstrass) Order() *big.Int { return new(big.Int).Set(w.N) }

func (w *Weierstrass) Generator() Point {
	return w.point(new(big.Int).Set(w.Gx), new(big.Int).Set(w.Gy))
}

// affinePoint carries coordinates alongside the cached canonical encoding.
// x == nil marks the point at infinity.
type affinePoint struct {
	x, y *big.Int
	enc  []byte
}

func (p *affinePoint) Encode() []byte   { return p.enc }
func (p *affinePoint) IsIdentity() bool { return p.x == nil }

func (p *affinePoint) Equal(q Point) bool {
	qa, ok := q.(*affinePoint)
	if !ok {
		return false
	}
	if p.x == nil || qa.x == nil {
		return p.x == nil && qa.x == nil
	}
	return p.x.Cmp(qa.x) == 0 && p.y.Cmp(qa.y) == 0
}

const (
	encIdentity  = 0x00
	encEvenY     = 0x02
	encOddY      = 0x03
	encUncompTag = 0x04 // accepted on decode only
)

func (w *Weierstrass) point(x, y *big.Int) *affinePoint {
	p := &affinePoint{x: x, y: y}
	if x == nil {
		p.enc = []byte{encIdentity}
		return p
	}
	enc := make([]byte, 1+w.byteLen)
	if y.Bit(0) == 0 {
		enc[0] = encEvenY
	} else {
		enc[0] = encOddY
	}
	x.FillBytes(enc[1:])
	p.enc = enc
	return p
}

func (w *Weierstrass) isOnCurve(x, y *big.Int) bool {
	if x.Sign() < 0 || x.Cmp(w.P) >= 0 || y.Sign() < 0 || y.Cmp(w.P) >= 0 {
		return false
	}
	// y² ?= x³ + Ax + B
	lhs := new(big.Int).Mul(y, y)
	lhs.Mod(lhs, w.P)
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	rhs.Add(rhs, new(big.Int).Mul(w.A, x))
	rhs.Add(rhs, w.B)
	rhs.Mod(rhs, w.P)
	return lhs.Cmp(rhs) == 0
}

// Decode parses a canonical compressed encoding (or an uncompressed one, for
// interop with external tooling) and checks curve membership.
func (w *Weierstrass) Decode(b []byte) (Point, error) {
	if len(b) == 0 {
		return nil, errors.New("curve: empty point encoding")
	}
	switch b[0] {
	case encIdentity:
		if len(b) != 1 {
			return nil, errors.New("curve: malformed identity encoding")
		}
		return w.point(nil, nil), nil
	case encEvenY, encOddY:
		if len(b) != 1+w.byteLen {
			return nil, fmt.Errorf("curve: compressed point length %d, want %d", len(b), 1+w.byteLen)
		}
		x := new(big.Int).SetBytes(b[1:])
		y, err := w.liftX(x, b[0] == encOddY)
		if err != nil {
			return nil, err
		}
		return w.point(x, y), nil
	case encUncompTag:
		if len(b) != 1+2*w.byteLen {
			return nil, fmt.Errorf("curve: uncompressed point length %d, want %d", len(b), 1+2*w.byteLen)
		}
		x := new(big.Int).SetBytes(b[1 : 1+w.byteLen])
		y := new(big.Int).SetBytes(b[1+w.byteLen:])
		if !w.isOnCurve(x, y) {
			return nil, errors.New("curve: point not on curve")
		}
		return w.point(x, y), nil
	default:
		return nil, fmt.Errorf("curve: unknown point encoding tag %#02x", b[0])
	}
}

// liftX recovers y from x and the parity bit.
func (w *Weierstrass) liftX(x *big.Int, odd bool) (*big.Int, error) {
	if x.Cmp(w.P) >= 0 {
		return nil, errors.New("curve: x out of range")
	}
	y2 := new(big.Int).Mul(x, x)
	y2.Mul(y2, x)
	y2.Add(y2, new(big.Int).Mul(w.A, x))
	y2.Add(y2, w.B)
	y2.Mod(y2, w.P)
	y := new(big.Int).ModSqrt(y2, w.P)
	if y == nil {
		return nil, errors.New("curve: x has no square root on curve")
	}
	if (y.Bit(0) == 1) != odd {
		y.Sub(w.P, y)
	}
	if !w.isOnCurve(x, y) {
		return nil, errors.New("curve: point not on curve")
	}
	return y, nil
}

func (w *Weierstrass) Add(p, q Point) Point {
	pa, ok1 := p.(*affinePoint)
	qa, ok2 := q.(*affinePoint)
	if !ok1 || !ok2 {
		panic("curve: foreign point passed to Weierstrass group")
	}
	if pa.x == nil {
		return qa
	}
	if qa.x == nil {
		return pa
	}
	if pa.x.Cmp(qa.x) == 0 {
		s := new(big.Int).Add(pa.y, qa.y)
		if s.Mod(s, w.P).Sign() == 0 {
			return w.point(nil, nil) // P + (-P)
		}
		return w.double(pa)
	}
	// λ = (y2 - y1) / (x2 - x1)
	num := new(big.Int).Sub(qa.y, pa.y)
	den := new(big.Int).Sub(qa.x, pa.x)
	den.ModInverse(den.Mod(den, w.P), w.P)
	lam := num.Mul(num, den)
	lam.Mod(lam, w.P)
	return w.chord(pa, qa, lam)
}

func (w *Weierstrass) double(p *affinePoint) *affinePoint {
	if p.x == nil || p.y.Sign() == 0 {
		return w.point(nil, nil)
	}
	// λ = (3x² + A) / 2y
	num := new(big.Int).Mul(p.x, p.x)
	num.Mul(num, big.NewInt(3))
	num.Add(num, w.A)
	den := new(big.Int).Lsh(p.y, 1)
	den.ModInverse(den.Mod(den, w.P), w.P)
	lam := num.Mul(num, den)
	lam.Mod(lam, w.P)
	return w.chord(p, p, lam)
}

func (w *Weierstrass) chord(p, q *affinePoint, lam *big.Int) *affinePoint {
	x3 := new(big.Int).Mul(lam, lam)
	x3.Sub(x3, p.x)
	x3.Sub(x3, q.x)
	x3.Mod(x3, w.P)
	y3 := new(big.Int).Sub(p.x, x3)
	y3.Mul(y3, lam)
	y3.Sub(y3, p.y)
	y3.Mod(y3, w.P)
	return w.point(x3, y3)
}

func (w *Weierstrass) ScalarMult(p Point, k *big.Int) Point {
	pa, ok := p.(*affinePoint)
	if !ok {
		panic("curve: foreign point passed to Weierstrass group")
	}
	kk := new(big.Int).Mod(k, w.N)
	var acc Point = w.point(nil, nil)
	var add Point = pa
	for i := 0; i < kk.BitLen(); i++ {
		if kk.Bit(i) == 1 {
			acc = w.Add(acc, add)
		}
		add = w.Add(add, add)
	}
	return acc
}

func (w *Weierstrass) ScalarBaseMult(k *big.Int) Point {
	return w.ScalarMult(w.Generator(), k)
}
