// Package arith provides the big-integer arithmetic surface shared by the
// Paillier, proof, and protocol packages. All secret-exponent operations go
// through ExpSecret, which is backed by a constant-time implementation; the
// portable variable-time backend can be selected with the arith_portable
// build tag for platforms where the constant-time backend is unavailable.
package arith

import (
	"crypto/rand"
	"errors"
	"math/big"
)

var (
	// ErrNotInvertible is returned when a modular inverse is requested for
	// an operand that shares a factor with the modulus.
	ErrNotInvertible = errors.New("arith: operand not invertible modulo n")

	// ErrInvalidLimit is returned when a random sample is requested from an
	// empty or negative range.
	ErrInvalidLimit = errors.New("arith: sampling limit must be positive")
)

var one = big.NewInt(1)

// Rand samples a uniform integer in [0, limit).
func Rand(limit *big.Int) (*big.Int, error) {
	if limit == nil || limit.Sign() <= 0 {
		return nil, ErrInvalidLimit
	}
	return rand.Int(rand.Reader, limit)
}

// RandBits samples a uniform integer in [0, 2^bits).
func RandBits(bits uint) (*big.Int, error) {
	return Rand(new(big.Int).Lsh(one, bits))
}

// RandUnit samples a uniform unit of Z_n*, rejecting candidates that share
// a factor with n.
func RandUnit(n *big.Int) (*big.Int, error) {
	if n == nil || n.Sign() <= 0 {
		return nil, ErrInvalidLimit
	}
	gcd := new(big.Int)
	for {
		u, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, err
		}
		if u.Sign() == 0 {
			continue
		}
		if gcd.GCD(nil, nil, u, n).Cmp(one) == 0 {
			return u, nil
		}
	}
}

// ModInverse returns a^-1 mod n, or ErrNotInvertible when gcd(a, n) != 1.
func ModInverse(a, n *big.Int) (*big.Int, error) {
	inv := new(big.Int).ModInverse(a, n)
	if inv == nil {
		return nil, ErrNotInvertible
	}
	return inv, nil
}

// IsUnit reports whether a is invertible modulo n.
func IsUnit(a, n *big.Int) bool {
	return new(big.Int).GCD(nil, nil, new(big.Int).Mod(a, n), n).Cmp(one) == 0
}

// Zero wipes the limb array of x and resets it to zero. Every owner of a
// secret scalar calls this on all exit paths.
func Zero(x *big.Int) {
	if x == nil {
		return
	}
	bits := x.Bits()
	for i := range bits {
		bits[i] = 0
	}
	x.SetInt64(0)
}
