package zk

import (
	"fmt"
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

// modProofIters is the number of N-th-root responses. Each iteration a
// cheating prover whose modulus is not of the correct form survives with
// bounded probability, so the count sets the soundness level.
const modProofIters = 13

// ModProof proves that a Paillier modulus n was generated correctly:
// gcd(n, phi(n)) = 1 and n is square-free. The prover exhibits N-th roots
// of transcript-derived units, which only a party knowing a valid
// factorization can compute.
type ModProof struct {
	Ys [][]byte
}

// ProveMod builds the modulus-correctness proof for sk.
func ProveMod(sessionID string, sk *paillier.PrivateKey) (*ModProof, error) {
	pk := sk.PublicKey()
	phi := sk.Totient()
	defer arith.Zero(phi)

	// M = N^-1 mod phi(N); y = x^M is an N-th root of x.
	m, err := arith.ModInverse(pk.N, phi)
	if err != nil {
		return nil, err
	}
	defer arith.Zero(m)

	nMod := arith.NewModulus(pk.N)
	xs := modChallenges(sessionID, pk.N)
	ys := make([][]byte, modProofIters)
	for i, x := range xs {
		ys[i] = nMod.ExpSecret(x, m).Bytes()
	}
	return &ModProof{Ys: ys}, nil
}

// Verify checks the proof against pk. A modulus that is even, too small,
// or probably prime is rejected before any response is examined.
func (p *ModProof) Verify(sessionID string, pk *paillier.PublicKey) error {
	if p == nil || len(p.Ys) != modProofIters {
		return fmt.Errorf("%w: %s", ErrMalformedProof, KindMod)
	}
	n := pk.N
	if n.Sign() <= 0 || n.Bit(0) == 0 || n.BitLen() < paillier.MinModulusBits {
		return fmt.Errorf("%w: %s: unacceptable modulus", ErrVerificationFailed, KindMod)
	}
	if n.ProbablyPrime(30) {
		return fmt.Errorf("%w: %s: modulus is prime", ErrVerificationFailed, KindMod)
	}

	nMod := arith.NewModulus(n)
	xs := modChallenges(sessionID, n)
	for i, x := range xs {
		y := new(big.Int).SetBytes(p.Ys[i])
		if y.Sign() <= 0 || y.Cmp(n) >= 0 {
			return fmt.Errorf("%w: %s: response %d out of range", ErrMalformedProof, KindMod, i)
		}
		if nMod.Exp(y, n).Cmp(x) != 0 {
			return fmt.Errorf("%w: %s: iteration %d", ErrVerificationFailed, KindMod, i)
		}
	}
	return nil
}

// modChallenges derives the units of Z_n* both sides agree on.
func modChallenges(sessionID string, n *big.Int) []*big.Int {
	t := NewTranscript("paillier-mod")
	t.Append("session", []byte(sessionID))
	t.AppendInt("modulus", n)

	xs := make([]*big.Int, modProofIters)
	for i := range xs {
		for {
			x := t.ChallengeMod(fmt.Sprintf("x%d", i), n)
			if x.Sign() != 0 && arith.IsUnit(x, n) {
				xs[i] = x
				break
			}
		}
	}
	return xs
}
