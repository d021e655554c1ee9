//go:build !arith_portable

package arith

import (
	"math/big"

	"github.com/cronokirby/saferith"
)

type ctModulus struct {
	m *saferith.Modulus
}

func newCTModulus(n *big.Int) ctModulus {
	return ctModulus{m: saferith.ModulusFromBytes(n.Bytes())}
}

// ExpSecret computes x^e mod n with an execution profile independent of the
// bit pattern of e. The exponent is padded to the modulus width so the
// saferith ladder always walks the same number of windows.
func (m *Modulus) ExpSecret(x, e *big.Int) *big.Int {
	base := new(saferith.Nat).SetBytes(new(big.Int).Mod(x, m.n).Bytes())
	exp := new(saferith.Nat).SetBytes(e.Bytes())
	exp.Resize(m.n.BitLen())
	out := new(saferith.Nat).Exp(base, exp, m.ct.m)
	return new(big.Int).SetBytes(out.Bytes())
}
