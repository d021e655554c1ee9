// Package paillier implements the additively homomorphic Paillier
// cryptosystem used to carry encrypted key and nonce shares between the
// two signing parties. Ciphertexts are big integers in [0, n^2);
// homomorphic addition multiplies ciphertexts and scalar multiplication
// exponentiates them.
package paillier

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"

	"github.com/avast/retry-go"

	"github.com/arcadia-exchange/mpc/pkg/arith"
)

const (
	// MinModulusBits is the smallest accepted modulus size.
	MinModulusBits = 1024

	// DefaultModulusBits is the production modulus size.
	DefaultModulusBits = 2048

	// primeAttempts bounds the prime search before keygen gives up.
	primeAttempts = 64
)

var (
	// ErrKeyTooSmall is returned when the requested modulus is below
	// MinModulusBits.
	ErrKeyTooSmall = errors.New("paillier: modulus too small")

	// ErrPrimeSearchExhausted is returned when no suitable prime pair was
	// found within the bounded retry count.
	ErrPrimeSearchExhausted = errors.New("paillier: prime search exhausted")

	// ErrMalformedCiphertext is returned when a ciphertext is outside
	// [0, n^2) or shares a factor with n.
	ErrMalformedCiphertext = errors.New("paillier: malformed ciphertext")

	// ErrMessageTooLarge is returned when a plaintext is negative or not
	// below n.
	ErrMessageTooLarge = errors.New("paillier: plaintext out of range")
)

var one = big.NewInt(1)

// PublicKey is a Paillier public key with generator n+1.
type PublicKey struct {
	N *big.Int

	cacheOnce sync.Once
	nSquared  *arith.Modulus
}

// PrivateKey holds the factorization witnesses. Zeroize must be called on
// every exit path once the key is no longer needed.
type PrivateKey struct {
	pk  *PublicKey
	p   *big.Int
	q   *big.Int
	phi *big.Int // (p-1)(q-1)
	mu  *big.Int // phi^-1 mod n
}

// GenerateKeyPair samples two distinct primes of bits/2 and derives
// n = p*q. The prime search is retried up to a bounded count before
// ErrPrimeSearchExhausted surfaces.
func GenerateKeyPair(bits int) (*PublicKey, *PrivateKey, error) {
	if bits < MinModulusBits {
		return nil, nil, ErrKeyTooSmall
	}

	var p, q *big.Int
	err := retry.Do(
		func() error {
			var err error
			if p, err = rand.Prime(rand.Reader, bits/2); err != nil {
				return err
			}
			if q, err = rand.Prime(rand.Reader, bits/2); err != nil {
				return err
			}
			if p.Cmp(q) == 0 {
				return errors.New("paillier: prime pair collided")
			}
			if new(big.Int).Mul(p, q).BitLen() != bits {
				return errors.New("paillier: modulus has short bit length")
			}
			return nil
		},
		retry.Attempts(primeAttempts),
		retry.Delay(0),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, nil, errors.Join(ErrPrimeSearchExhausted, err)
	}

	n := new(big.Int).Mul(p, q)
	pm1 := new(big.Int).Sub(p, one)
	qm1 := new(big.Int).Sub(q, one)
	phi := new(big.Int).Mul(pm1, qm1)
	mu, err := arith.ModInverse(phi, n)
	if err != nil {
		// gcd(n, phi) != 1 cannot happen for distinct odd primes.
		return nil, nil, err
	}

	pk := &PublicKey{N: n}
	sk := &PrivateKey{pk: pk, p: p, q: q, phi: phi, mu: mu}
	return pk, sk, nil
}

// NSquared returns the cached n^2 modulus.
func (pk *PublicKey) NSquared() *arith.Modulus {
	pk.cacheOnce.Do(func() {
		pk.nSquared = arith.NewModulus(new(big.Int).Mul(pk.N, pk.N))
	})
	return pk.nSquared
}

// Equal reports whether two public keys share the same modulus.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	return other != nil && pk.N.Cmp(other.N) == 0
}

// PublicKey returns the public half of the key pair.
func (sk *PrivateKey) PublicKey() *PublicKey {
	return sk.pk
}

// Totient returns a copy of phi(n). The value is secret material; callers
// must wipe it with arith.Zero when done.
func (sk *PrivateKey) Totient() *big.Int {
	return new(big.Int).Set(sk.phi)
}

// Zeroize wipes the factorization witnesses.
func (sk *PrivateKey) Zeroize() {
	arith.Zero(sk.p)
	arith.Zero(sk.q)
	arith.Zero(sk.phi)
	arith.Zero(sk.mu)
}
