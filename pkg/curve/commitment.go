package curve

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"math/big"

	"filippo.io/edwards25519"
)

// ComPointSize is the byte length of an encoded auxiliary-group element.
const ComPointSize = 32

// auxGeneratorTag seeds the derivation of the second Pedersen generator.
// The discrete log of H with respect to the base point is unknown.
const auxGeneratorTag = "arcadia/mpc/commitment-generator/v1"

// ComScalar is a scalar of the auxiliary commitment group.
type ComScalar struct {
	s *edwards25519.Scalar
}

// ComScalarFromBig maps a non-negative integer below the auxiliary group
// order to a scalar. Values committed by the protocol are bounded well
// below the order, so the mapping is injective for all protocol inputs.
func ComScalarFromBig(v *big.Int) (*ComScalar, error) {
	if v.Sign() < 0 {
		return nil, ErrInvalidScalar
	}
	be := make([]byte, ComPointSize)
	if v.BitLen() > 255 {
		return nil, ErrInvalidScalar
	}
	v.FillBytes(be)
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(reverse(be))
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return &ComScalar{s: s}, nil
}

// ComScalarReduce maps an arbitrary non-negative integer below 2^512 into
// the auxiliary scalar field by wide reduction. Used for verification
// equations whose integer responses exceed the group order.
func ComScalarReduce(v *big.Int) (*ComScalar, error) {
	if v.Sign() < 0 || v.BitLen() > 512 {
		return nil, ErrInvalidScalar
	}
	wide := make([]byte, 64)
	v.FillBytes(wide)
	s, err := new(edwards25519.Scalar).SetUniformBytes(reverse(wide))
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return &ComScalar{s: s}, nil
}

// RandomComScalar samples a uniform auxiliary scalar.
func RandomComScalar() (*ComScalar, error) {
	wide := make([]byte, 64)
	if _, err := rand.Read(wide); err != nil {
		return nil, err
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		return nil, err
	}
	return &ComScalar{s: s}, nil
}

// ComScalarFromBytes parses the canonical 32-byte encoding.
func ComScalarFromBytes(b []byte) (*ComScalar, error) {
	if len(b) != ComPointSize {
		return nil, ErrInvalidScalar
	}
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return &ComScalar{s: s}, nil
}

func (c *ComScalar) Add(d *ComScalar) *ComScalar {
	return &ComScalar{s: new(edwards25519.Scalar).Add(c.s, d.s)}
}

func (c *ComScalar) Mul(d *ComScalar) *ComScalar {
	return &ComScalar{s: new(edwards25519.Scalar).Multiply(c.s, d.s)}
}

func (c *ComScalar) Equal(d *ComScalar) bool { return c.s.Equal(d.s) == 1 }

func (c *ComScalar) Bytes() []byte { return c.s.Bytes() }

// ComPoint is an element of the auxiliary commitment group.
type ComPoint struct {
	p *edwards25519.Point
}

// ComBase returns the auxiliary group's base point.
func ComBase() *ComPoint {
	return &ComPoint{p: edwards25519.NewGeneratorPoint()}
}

// ComAuxGenerator returns the second Pedersen generator H, derived by
// hashing a fixed tag to a point and clearing the cofactor.
func ComAuxGenerator() *ComPoint {
	for ctr := uint32(0); ; ctr++ {
		var seed [4]byte
		binary.BigEndian.PutUint32(seed[:], ctr)
		digest := sha512.Sum512(append([]byte(auxGeneratorTag), seed[:]...))
		cand, err := new(edwards25519.Point).SetBytes(digest[:32])
		if err != nil {
			continue
		}
		h := new(edwards25519.Point).MultByCofactor(cand)
		if h.Equal(edwards25519.NewIdentityPoint()) == 1 {
			continue
		}
		return &ComPoint{p: h}
	}
}

// ComBaseMul computes s*B.
func ComBaseMul(s *ComScalar) *ComPoint {
	return &ComPoint{p: new(edwards25519.Point).ScalarBaseMult(s.s)}
}

func (p *ComPoint) Mul(s *ComScalar) *ComPoint {
	return &ComPoint{p: new(edwards25519.Point).ScalarMult(s.s, p.p)}
}

func (p *ComPoint) Add(q *ComPoint) *ComPoint {
	return &ComPoint{p: new(edwards25519.Point).Add(p.p, q.p)}
}

func (p *ComPoint) Equal(q *ComPoint) bool { return p.p.Equal(q.p) == 1 }

func (p *ComPoint) Bytes() []byte { return p.p.Bytes() }

// DecodeComPoint parses a 32-byte auxiliary group element.
func DecodeComPoint(b []byte) (*ComPoint, error) {
	if len(b) != ComPointSize {
		return nil, ErrInvalidPoint
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, ErrInvalidPoint
	}
	return &ComPoint{p: p}, nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
