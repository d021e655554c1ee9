package arith

import "math/big"

// Modulus wraps an odd modulus so both the variable-time and constant-time
// exponentiation paths can reuse the precomputed representation.
type Modulus struct {
	n  *big.Int
	ct ctModulus
}

// NewModulus builds a Modulus from n. n must be odd and positive; the
// constant-time backend relies on Montgomery arithmetic, which requires an
// odd modulus.
func NewModulus(n *big.Int) *Modulus {
	if n == nil || n.Sign() <= 0 || n.Bit(0) == 0 {
		panic("arith: modulus must be an odd positive integer")
	}
	return &Modulus{
		n:  new(big.Int).Set(n),
		ct: newCTModulus(n),
	}
}

// Big returns a copy of the modulus value.
func (m *Modulus) Big() *big.Int {
	return new(big.Int).Set(m.n)
}

// BitLen returns the bit length of the modulus.
func (m *Modulus) BitLen() int {
	return m.n.BitLen()
}

// Exp computes x^e mod n in variable time. Only public operands may flow
// through this path.
func (m *Modulus) Exp(x, e *big.Int) *big.Int {
	return new(big.Int).Exp(x, e, m.n)
}

// Mul computes x*y mod n in variable time.
func (m *Modulus) Mul(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, y)
	return out.Mod(out, m.n)
}

// Mod reduces x modulo n.
func (m *Modulus) Mod(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, m.n)
}

// Inverse returns x^-1 mod n or ErrNotInvertible.
func (m *Modulus) Inverse(x *big.Int) (*big.Int, error) {
	return ModInverse(x, m.n)
}
