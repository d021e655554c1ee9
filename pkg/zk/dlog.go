package zk

import (
	"fmt"

	"github.com/arcadia-exchange/mpc/pkg/curve"
)

// DLogProof is a Schnorr proof of knowledge of x for X = x*G on the
// signing curve.
type DLogProof struct {
	A []byte // commitment point, compressed
	Z []byte // response scalar
}

// ProveDLog proves knowledge of the discrete log of X. The session ID is
// absorbed into the transcript so proofs cannot be replayed across
// sessions.
func ProveDLog(sessionID, tag string, x *curve.Scalar, X *curve.Point) (*DLogProof, error) {
	alpha, err := curve.RandomScalar()
	if err != nil {
		return nil, err
	}
	defer alpha.Zeroize()

	A := curve.BaseMulSecret(alpha)
	aBytes, err := A.Encode()
	if err != nil {
		return nil, err
	}
	xBytes, err := X.Encode()
	if err != nil {
		return nil, err
	}

	e := dlogChallenge(sessionID, tag, xBytes, aBytes)
	z := alpha.Add(e.Mul(x))
	return &DLogProof{A: aBytes, Z: z.Bytes()}, nil
}

// Verify checks the proof against X.
func (p *DLogProof) Verify(sessionID, tag string, X *curve.Point) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrMalformedProof, KindDLog)
	}
	A, err := curve.DecodePoint(p.A)
	if err != nil {
		return fmt.Errorf("%w: %s: commitment: %v", ErrMalformedProof, KindDLog, err)
	}
	z, err := curve.ScalarFromBytes(p.Z)
	if err != nil {
		return fmt.Errorf("%w: %s: response: %v", ErrMalformedProof, KindDLog, err)
	}
	xBytes, err := X.Encode()
	if err != nil {
		return fmt.Errorf("%w: %s: statement: %v", ErrMalformedProof, KindDLog, err)
	}

	e := dlogChallenge(sessionID, tag, xBytes, p.A)
	if !curve.BaseMul(z).Equal(A.Add(X.Mul(e))) {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, KindDLog)
	}
	return nil
}

func dlogChallenge(sessionID, tag string, xBytes, aBytes []byte) *curve.Scalar {
	t := NewTranscript("dlog")
	t.Append("session", []byte(sessionID))
	t.Append("tag", []byte(tag))
	t.Append("statement", xBytes)
	t.Append("commitment", aBytes)
	return curve.NewScalar(t.ChallengeMod("e", curve.Order()))
}
