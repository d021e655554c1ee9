package curve

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/arcadia-exchange/mpc/pkg/arith"
)

// ScalarSize is the byte length of a signing-curve scalar.
const ScalarSize = 32

// PointSize is the byte length of a compressed signing-curve point.
const PointSize = 33

var (
	secp = secp256k1.S256()

	// sqrtExp = (p+1)/4, used to recover y from a compressed encoding;
	// the secp256k1 field prime is congruent to 3 mod 4.
	sqrtExp = func() *big.Int {
		e := new(big.Int).Add(secp.P, big.NewInt(1))
		return e.Rsh(e, 2)
	}()
)

// Order returns a copy of the signing-curve group order.
func Order() *big.Int {
	return new(big.Int).Set(secp.N)
}

// Scalar is an element of the signing-curve scalar field. Operations
// return fresh values; a Scalar is never mutated except by Zeroize.
type Scalar struct {
	v *big.Int
}

// NewScalar reduces v modulo the curve order.
func NewScalar(v *big.Int) *Scalar {
	return &Scalar{v: new(big.Int).Mod(v, secp.N)}
}

// ScalarFromBytes parses a 32-byte big-endian scalar, rejecting values
// at or above the curve order.
func ScalarFromBytes(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(secp.N) >= 0 {
		return nil, ErrInvalidScalar
	}
	return &Scalar{v: v}, nil
}

// RandomScalar samples a uniform nonzero scalar.
func RandomScalar() (*Scalar, error) {
	for {
		v, err := arith.Rand(secp.N)
		if err != nil {
			return nil, err
		}
		if v.Sign() != 0 {
			return &Scalar{v: v}, nil
		}
	}
}

func (s *Scalar) Add(t *Scalar) *Scalar {
	return NewScalar(new(big.Int).Add(s.v, t.v))
}

func (s *Scalar) Sub(t *Scalar) *Scalar {
	return NewScalar(new(big.Int).Sub(s.v, t.v))
}

func (s *Scalar) Mul(t *Scalar) *Scalar {
	return NewScalar(new(big.Int).Mul(s.v, t.v))
}

func (s *Scalar) Negate() *Scalar {
	return NewScalar(new(big.Int).Neg(s.v))
}

// Invert returns s^-1 mod the curve order, or ErrZeroScalar.
func (s *Scalar) Invert() (*Scalar, error) {
	if s.v.Sign() == 0 {
		return nil, ErrZeroScalar
	}
	inv, err := arith.ModInverse(s.v, secp.N)
	if err != nil {
		return nil, ErrZeroScalar
	}
	return &Scalar{v: inv}, nil
}

func (s *Scalar) Equal(t *Scalar) bool { return s.v.Cmp(t.v) == 0 }

func (s *Scalar) IsZero() bool { return s.v.Sign() == 0 }

// Big returns a copy of the scalar value.
func (s *Scalar) Big() *big.Int { return new(big.Int).Set(s.v) }

// Bytes returns the fixed-width big-endian encoding.
func (s *Scalar) Bytes() []byte {
	out := make([]byte, ScalarSize)
	s.v.FillBytes(out)
	return out
}

// Zeroize wipes the scalar's limbs. The scalar is zero afterwards.
func (s *Scalar) Zeroize() {
	arith.Zero(s.v)
}

// Point is a point on the signing curve. The zero value and the result of
// annihilating additions represent the point at infinity; it is a valid
// intermediate marker but can never be encoded or finalized into a key.
type Point struct {
	x, y *big.Int
	inf  bool
}

// Infinity returns the identity element.
func Infinity() *Point { return &Point{inf: true} }

// BaseMul computes k*G in variable time. Use BaseMulSecret for secret
// scalars.
func BaseMul(k *Scalar) *Point {
	if k.IsZero() {
		return Infinity()
	}
	x, y := secp.ScalarBaseMult(k.Bytes())
	return &Point{x: x, y: y}
}

// BaseMulSecret computes k*G with a fixed double-and-add-always schedule.
func BaseMulSecret(k *Scalar) *Point {
	return basePoint().MulSecret(k)
}

func basePoint() *Point {
	return &Point{x: new(big.Int).Set(secp.Gx), y: new(big.Int).Set(secp.Gy)}
}

// Mul computes k*P in variable time.
func (p *Point) Mul(k *Scalar) *Point {
	if p.inf || k.IsZero() {
		return Infinity()
	}
	x, y := secp.ScalarMult(p.x, p.y, k.Bytes())
	return fromAffine(x, y)
}

// MulSecret computes k*P processing every scalar bit identically: each
// iteration performs one doubling and one addition regardless of the bit
// value, to the extent the underlying field arithmetic allows.
func (p *Point) MulSecret(k *Scalar) *Point {
	if p.inf {
		return Infinity()
	}
	acc := Infinity()
	kv := k.v
	for i := ScalarSize*8 - 1; i >= 0; i-- {
		acc = acc.double()
		sum := acc.Add(p)
		if kv.Bit(i) == 1 {
			acc = sum
		}
	}
	return acc
}

// Add returns p + q, yielding the point at infinity when the inputs
// annihilate.
func (p *Point) Add(q *Point) *Point {
	if p.inf {
		return q.clone()
	}
	if q.inf {
		return p.clone()
	}
	x, y := secp.Add(p.x, p.y, q.x, q.y)
	return fromAffine(x, y)
}

func (p *Point) double() *Point {
	if p.inf {
		return Infinity()
	}
	x, y := secp.Double(p.x, p.y)
	return fromAffine(x, y)
}

func fromAffine(x, y *big.Int) *Point {
	if x.Sign() == 0 && y.Sign() == 0 {
		return Infinity()
	}
	return &Point{x: x, y: y}
}

func (p *Point) clone() *Point {
	if p.inf {
		return Infinity()
	}
	return &Point{x: new(big.Int).Set(p.x), y: new(big.Int).Set(p.y)}
}

func (p *Point) Equal(q *Point) bool {
	if p.inf || q.inf {
		return p.inf == q.inf
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

func (p *Point) IsInfinity() bool { return p.inf }

// X returns the affine x coordinate reduced modulo the group order, the
// r component of an ECDSA signature.
func (p *Point) X() (*big.Int, error) {
	if p.inf {
		return nil, ErrPointAtInfinity
	}
	return new(big.Int).Mod(p.x, secp.N), nil
}

// Encode serializes to the 33-byte compressed form. The point at infinity
// has no encoding.
func (p *Point) Encode() ([]byte, error) {
	if p.inf {
		return nil, ErrPointAtInfinity
	}
	out := make([]byte, PointSize)
	out[0] = 0x02 | byte(p.y.Bit(0))
	p.x.FillBytes(out[1:])
	return out, nil
}

// DecodePoint parses a 33-byte compressed encoding, rejecting encodings
// that do not describe a point on the curve.
func DecodePoint(b []byte) (*Point, error) {
	if len(b) != PointSize || (b[0] != 0x02 && b[0] != 0x03) {
		return nil, ErrInvalidPoint
	}
	x := new(big.Int).SetBytes(b[1:])
	if x.Cmp(secp.P) >= 0 {
		return nil, ErrInvalidPoint
	}
	// y^2 = x^3 + 7
	y2 := new(big.Int).Exp(x, big.NewInt(3), secp.P)
	y2.Add(y2, secp.B)
	y2.Mod(y2, secp.P)
	y := new(big.Int).Exp(y2, sqrtExp, secp.P)
	check := new(big.Int).Mul(y, y)
	if check.Mod(check, secp.P).Cmp(y2) != 0 {
		return nil, ErrInvalidPoint
	}
	if byte(y.Bit(0)) != b[0]&1 {
		y.Sub(secp.P, y)
	}
	p := &Point{x: x, y: y}
	if !secp.IsOnCurve(p.x, p.y) {
		return nil, ErrInvalidPoint
	}
	return p, nil
}
