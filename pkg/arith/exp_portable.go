//go:build arith_portable

package arith

import "math/big"

type ctModulus struct{}

func newCTModulus(_ *big.Int) ctModulus { return ctModulus{} }

// ExpSecret computes x^e mod n on the portable backend. math/big makes no
// constant-time promise beyond its odd-modulus Montgomery path; this build
// is intended for platforms where the hardened backend cannot be linked.
func (m *Modulus) ExpSecret(x, e *big.Int) *big.Int {
	return new(big.Int).Exp(x, e, m.n)
}
