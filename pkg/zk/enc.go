package zk

import (
	"fmt"
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

// EncProof proves knowledge of the plaintext and randomizer behind a
// Paillier ciphertext, and that the plaintext is roughly bounded: the
// response width limits it to WitnessBits plus the proof's slack.
type EncProof struct {
	A  []byte // ciphertext commitment
	Z1 []byte // integer response for the plaintext
	Z2 []byte // randomizer response mod n
}

// encZ1Bound caps the integer response: alpha < 2^(W+C+S) and
// e*m < 2^(W+C), so an honest z1 always fits.
var encZ1Bound = new(big.Int).Lsh(big.NewInt(1), WitnessBits+ChallengeBits+SlackBits+1)

// ProveEnc proves knowledge of (m, r) for c = Enc(m, r) under pk.
// m must be below 2^WitnessBits.
func ProveEnc(sessionID string, pk *paillier.PublicKey, c, m, r *big.Int) (*EncProof, error) {
	if m.Sign() < 0 || m.BitLen() > WitnessBits {
		return nil, fmt.Errorf("%w: %s: witness out of range", ErrMalformedProof, KindEnc)
	}
	alpha, err := arith.RandBits(WitnessBits + ChallengeBits + SlackBits)
	if err != nil {
		return nil, err
	}
	defer arith.Zero(alpha)
	beta, err := arith.RandUnit(pk.N)
	if err != nil {
		return nil, err
	}
	defer arith.Zero(beta)

	A, err := pk.EncryptWithNonce(new(big.Int).Mod(alpha, pk.N), beta)
	if err != nil {
		return nil, err
	}

	e := encChallenge(sessionID, pk, c, A)

	z1 := new(big.Int).Mul(e, m)
	z1.Add(z1, alpha)

	nMod := arith.NewModulus(pk.N)
	z2 := nMod.Mul(beta, nMod.ExpSecret(r, e))

	return &EncProof{A: A.Bytes(), Z1: z1.Bytes(), Z2: z2.Bytes()}, nil
}

// Verify checks the proof against (pk, c).
func (p *EncProof) Verify(sessionID string, pk *paillier.PublicKey, c *big.Int) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrMalformedProof, KindEnc)
	}
	A := new(big.Int).SetBytes(p.A)
	if err := pk.ValidateCiphertext(A); err != nil {
		return fmt.Errorf("%w: %s: commitment: %v", ErrMalformedProof, KindEnc, err)
	}
	z1 := new(big.Int).SetBytes(p.Z1)
	if z1.Cmp(encZ1Bound) >= 0 {
		return fmt.Errorf("%w: %s: response exceeds range bound", ErrVerificationFailed, KindEnc)
	}
	z2 := new(big.Int).SetBytes(p.Z2)
	if !arith.IsUnit(z2, pk.N) {
		return fmt.Errorf("%w: %s: randomizer response", ErrMalformedProof, KindEnc)
	}

	e := encChallenge(sessionID, pk, c, A)
	n2 := pk.NSquared()

	// (1+n)^z1 * z2^n == A * c^e  (mod n^2)
	lhs := new(big.Int).Mod(z1, pk.N)
	lhs.Mul(lhs, pk.N)
	lhs.Add(lhs, big.NewInt(1))
	lhs = n2.Mul(lhs, n2.Exp(z2, pk.N))

	rhs := n2.Mul(A, n2.Exp(c, e))

	if lhs.Cmp(rhs) != 0 {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, KindEnc)
	}
	return nil
}

func encChallenge(sessionID string, pk *paillier.PublicKey, c, A *big.Int) *big.Int {
	t := NewTranscript("paillier-enc")
	t.Append("session", []byte(sessionID))
	t.AppendInt("modulus", pk.N)
	t.AppendInt("ciphertext", c)
	t.AppendInt("commitment", A)
	return t.ChallengeInt("e", ChallengeBits)
}
