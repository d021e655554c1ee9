package zk

import (
	"fmt"
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

// ConsistencyStatement binds the three public views of one secret scalar
// x: a Paillier ciphertext c = Enc(x, r), the signing-curve point
// X = x*G, and a Pedersen commitment C = x*B + rho*H on the auxiliary
// group.
type ConsistencyStatement struct {
	PK         *paillier.PublicKey
	Ciphertext *big.Int
	Point      *curve.Point
	Commitment *curve.ComPoint
}

// ConsistencyProof is a Schnorr-style AND-composition with one shared
// integer response, proving the same value underlies all three parts of
// the statement.
type ConsistencyProof struct {
	A1 []byte // Paillier commitment
	A2 []byte // signing-curve commitment
	A3 []byte // auxiliary-group commitment
	Z  []byte // shared integer response
	Z2 []byte // Paillier randomizer response
	Z3 []byte // auxiliary blinding response
}

var consistencyZBound = new(big.Int).Lsh(big.NewInt(1), WitnessBits+ChallengeBits+SlackBits+1)

// ProveConsistency proves the statement for witness (x, r, rho).
func ProveConsistency(sessionID string, st ConsistencyStatement, x, r *big.Int, rho *curve.ComScalar) (*ConsistencyProof, error) {
	if x.Sign() < 0 || x.BitLen() > WitnessBits {
		return nil, fmt.Errorf("%w: %s: witness out of range", ErrMalformedProof, KindConsistency)
	}

	alpha, err := arith.RandBits(WitnessBits + ChallengeBits + SlackBits)
	if err != nil {
		return nil, err
	}
	defer arith.Zero(alpha)
	beta, err := arith.RandUnit(st.PK.N)
	if err != nil {
		return nil, err
	}
	defer arith.Zero(beta)
	sigma, err := curve.RandomComScalar()
	if err != nil {
		return nil, err
	}

	a1, err := st.PK.EncryptWithNonce(new(big.Int).Mod(alpha, st.PK.N), beta)
	if err != nil {
		return nil, err
	}
	a2, err := curve.BaseMulSecret(curve.NewScalar(alpha)).Encode()
	if err != nil {
		return nil, err
	}
	a3, err := pedersenEval(alpha, sigma)
	if err != nil {
		return nil, err
	}

	e, err := consistencyChallenge(sessionID, st, a1, a2, a3.Bytes())
	if err != nil {
		return nil, err
	}

	z := new(big.Int).Mul(e, x)
	z.Add(z, alpha)

	nMod := arith.NewModulus(st.PK.N)
	z2 := nMod.Mul(beta, nMod.ExpSecret(r, e))

	eCom, err := curve.ComScalarFromBig(e)
	if err != nil {
		return nil, err
	}
	z3 := sigma.Add(eCom.Mul(rho))

	return &ConsistencyProof{
		A1: a1.Bytes(),
		A2: a2,
		A3: a3.Bytes(),
		Z:  z.Bytes(),
		Z2: z2.Bytes(),
		Z3: z3.Bytes(),
	}, nil
}

// Verify checks the proof against the statement.
func (p *ConsistencyProof) Verify(sessionID string, st ConsistencyStatement) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrMalformedProof, KindConsistency)
	}
	a1 := new(big.Int).SetBytes(p.A1)
	if err := st.PK.ValidateCiphertext(a1); err != nil {
		return fmt.Errorf("%w: %s: paillier commitment: %v", ErrMalformedProof, KindConsistency, err)
	}
	a2, err := curve.DecodePoint(p.A2)
	if err != nil {
		return fmt.Errorf("%w: %s: curve commitment: %v", ErrMalformedProof, KindConsistency, err)
	}
	a3, err := curve.DecodeComPoint(p.A3)
	if err != nil {
		return fmt.Errorf("%w: %s: aux commitment: %v", ErrMalformedProof, KindConsistency, err)
	}
	z := new(big.Int).SetBytes(p.Z)
	if z.Cmp(consistencyZBound) >= 0 {
		return fmt.Errorf("%w: %s: response exceeds bound", ErrVerificationFailed, KindConsistency)
	}
	z2 := new(big.Int).SetBytes(p.Z2)
	if !arith.IsUnit(z2, st.PK.N) {
		return fmt.Errorf("%w: %s: randomizer response", ErrMalformedProof, KindConsistency)
	}
	z3, err := curve.ComScalarFromBytes(p.Z3)
	if err != nil {
		return fmt.Errorf("%w: %s: blinding response: %v", ErrMalformedProof, KindConsistency, err)
	}

	e, err := consistencyChallenge(sessionID, st, a1, p.A2, p.A3)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedProof, KindConsistency, err)
	}

	// Paillier: (1+n)^z * z2^n == A1 * c^e  (mod n^2)
	n2 := st.PK.NSquared()
	lhs := new(big.Int).Mod(z, st.PK.N)
	lhs.Mul(lhs, st.PK.N)
	lhs.Add(lhs, big.NewInt(1))
	lhs = n2.Mul(lhs, n2.Exp(z2, st.PK.N))
	rhs := n2.Mul(a1, n2.Exp(st.Ciphertext, e))
	if lhs.Cmp(rhs) != 0 {
		return fmt.Errorf("%w: %s: paillier equation", ErrVerificationFailed, KindConsistency)
	}

	// Signing curve: z*G == A2 + e*X
	eScalar := curve.NewScalar(e)
	if !curve.BaseMul(curve.NewScalar(z)).Equal(a2.Add(st.Point.Mul(eScalar))) {
		return fmt.Errorf("%w: %s: curve equation", ErrVerificationFailed, KindConsistency)
	}

	// Auxiliary group: z*B + z3*H == A3 + e*C
	eCom, err := curve.ComScalarFromBig(e)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedProof, KindConsistency, err)
	}
	lhs3, err := pedersenEval(z, z3)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedProof, KindConsistency, err)
	}
	if !lhs3.Equal(a3.Add(st.Commitment.Mul(eCom))) {
		return fmt.Errorf("%w: %s: aux equation", ErrVerificationFailed, KindConsistency)
	}
	return nil
}

func consistencyChallenge(sessionID string, st ConsistencyStatement, a1 *big.Int, a2, a3 []byte) (*big.Int, error) {
	pointBytes, err := st.Point.Encode()
	if err != nil {
		return nil, err
	}
	t := NewTranscript("consistency")
	t.Append("session", []byte(sessionID))
	t.AppendInt("modulus", st.PK.N)
	t.AppendInt("ciphertext", st.Ciphertext)
	t.Append("point", pointBytes)
	t.Append("pedersen", st.Commitment.Bytes())
	t.AppendInt("paillier-commitment", a1)
	t.Append("curve-commitment", a2)
	t.Append("aux-commitment", a3)
	return t.ChallengeInt("e", ChallengeBits), nil
}
