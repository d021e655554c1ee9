package paillier

import (
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/arith"
)

// Encrypt encrypts m under pk with an internally sampled randomizer.
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, error) {
	c, _, err := pk.EncryptAndNonce(m)
	return c, err
}

// EncryptAndNonce encrypts m and also returns the randomizer, which the
// zero-knowledge proofs over the ciphertext need as witness material.
func (pk *PublicKey) EncryptAndNonce(m *big.Int) (*big.Int, *big.Int, error) {
	r, err := arith.RandUnit(pk.N)
	if err != nil {
		return nil, nil, err
	}
	c, err := pk.EncryptWithNonce(m, r)
	if err != nil {
		return nil, nil, err
	}
	return c, r, nil
}

// EncryptWithNonce computes (1+n)^m * r^n mod n^2 using the identity
// (1+n)^m = 1 + m*n (mod n^2).
func (pk *PublicKey) EncryptWithNonce(m, r *big.Int) (*big.Int, error) {
	if m == nil || m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, ErrMessageTooLarge
	}
	if r == nil || !arith.IsUnit(r, pk.N) {
		return nil, ErrMalformedCiphertext
	}
	n2 := pk.NSquared()
	gm := new(big.Int).Mul(m, pk.N)
	gm.Add(gm, one)
	// The randomizer masks the plaintext, so its power runs on the
	// constant-time path.
	rn := n2.ExpSecret(r, pk.N)
	return n2.Mul(gm, rn), nil
}

// Decrypt recovers the plaintext of c. The ciphertext is validated before
// the secret exponentiation runs.
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	pk := sk.pk
	if err := pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	n2 := pk.NSquared()
	u := n2.ExpSecret(c, sk.phi)
	// L(u) = (u - 1) / n
	l := new(big.Int).Sub(u, one)
	l.Div(l, pk.N)
	m := l.Mul(l, sk.mu)
	return m.Mod(m, pk.N), nil
}

// Add homomorphically adds the plaintexts of two ciphertexts.
func (pk *PublicKey) Add(c1, c2 *big.Int) (*big.Int, error) {
	if err := pk.ValidateCiphertext(c1); err != nil {
		return nil, err
	}
	if err := pk.ValidateCiphertext(c2); err != nil {
		return nil, err
	}
	return pk.NSquared().Mul(c1, c2), nil
}

// MulScalar homomorphically multiplies the plaintext of c by the public
// scalar k. The scalar leaks through the exponentiation timing; callers
// holding a secret scalar must use MulScalarSecret instead.
func (pk *PublicKey) MulScalar(c, k *big.Int) (*big.Int, error) {
	if err := pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	if k == nil || k.Sign() < 0 || k.Cmp(pk.N) >= 0 {
		return nil, ErrMessageTooLarge
	}
	return pk.NSquared().Exp(c, k), nil
}

// MulScalarSecret is MulScalar with the exponentiation on the
// constant-time path, for scalars derived from key shares or nonces.
func (pk *PublicKey) MulScalarSecret(c, k *big.Int) (*big.Int, error) {
	if err := pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	if k == nil || k.Sign() < 0 || k.Cmp(pk.N) >= 0 {
		return nil, ErrMessageTooLarge
	}
	return pk.NSquared().ExpSecret(c, k), nil
}

// ValidateCiphertext checks that c lies in [0, n^2) and is a unit, the
// precondition for every homomorphic operation and for decryption.
func (pk *PublicKey) ValidateCiphertext(c *big.Int) error {
	if c == nil || c.Sign() <= 0 || c.Cmp(pk.NSquared().Big()) >= 0 {
		return ErrMalformedCiphertext
	}
	if !arith.IsUnit(c, pk.N) {
		return ErrMalformedCiphertext
	}
	return nil
}
