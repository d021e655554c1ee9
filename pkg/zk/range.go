package zk

import (
	"fmt"
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
)

// RangeProof proves that the value inside a Pedersen commitment on the
// auxiliary group lies in [0, 2^WitnessBits) up to the proof's slack. It
// is a binary-challenge cut-and-choose: RangeRounds independent rounds,
// each surviving a cheating prover with probability 1/2.
type RangeProof struct {
	As [][]byte // per-round commitment points
	Zs [][]byte // per-round integer responses
	Zr [][]byte // per-round blinding responses
}

// rangeZBound caps each round's integer response.
var rangeZBound = new(big.Int).Lsh(big.NewInt(1), WitnessBits+SlackBits+1)

// ProveRange proves that commitment C opens to v with blinding rho and
// that v < 2^WitnessBits.
func ProveRange(sessionID string, C *curve.ComPoint, v *big.Int, rho *curve.ComScalar) (*RangeProof, error) {
	if v.Sign() < 0 || v.BitLen() > WitnessBits {
		return nil, fmt.Errorf("%w: %s: witness out of range", ErrMalformedProof, KindRange)
	}

	alphas := make([]*big.Int, RangeRounds)
	sigmas := make([]*curve.ComScalar, RangeRounds)
	as := make([][]byte, RangeRounds)
	defer func() {
		for _, a := range alphas {
			arith.Zero(a)
		}
	}()

	t := NewTranscript("range")
	t.Append("session", []byte(sessionID))
	t.Append("commitment", C.Bytes())
	for i := 0; i < RangeRounds; i++ {
		alpha, err := arith.RandBits(WitnessBits + SlackBits)
		if err != nil {
			return nil, err
		}
		sigma, err := curve.RandomComScalar()
		if err != nil {
			return nil, err
		}
		A, err := pedersenEval(alpha, sigma)
		if err != nil {
			return nil, err
		}
		alphas[i], sigmas[i], as[i] = alpha, sigma, A.Bytes()
		t.Append("round-commitment", as[i])
	}

	bits := t.ChallengeBits("e", RangeRounds)

	zs := make([][]byte, RangeRounds)
	zr := make([][]byte, RangeRounds)
	for i := 0; i < RangeRounds; i++ {
		z := new(big.Int).Set(alphas[i])
		zb := sigmas[i]
		if bits[i] {
			z.Add(z, v)
			zb = zb.Add(rho)
		}
		zs[i] = z.Bytes()
		zr[i] = zb.Bytes()
	}
	return &RangeProof{As: as, Zs: zs, Zr: zr}, nil
}

// Verify checks the proof against commitment C.
func (p *RangeProof) Verify(sessionID string, C *curve.ComPoint) error {
	if p == nil || len(p.As) != RangeRounds || len(p.Zs) != RangeRounds || len(p.Zr) != RangeRounds {
		return fmt.Errorf("%w: %s", ErrMalformedProof, KindRange)
	}

	t := NewTranscript("range")
	t.Append("session", []byte(sessionID))
	t.Append("commitment", C.Bytes())
	for i := 0; i < RangeRounds; i++ {
		t.Append("round-commitment", p.As[i])
	}
	bits := t.ChallengeBits("e", RangeRounds)

	for i := 0; i < RangeRounds; i++ {
		A, err := curve.DecodeComPoint(p.As[i])
		if err != nil {
			return fmt.Errorf("%w: %s: round %d commitment: %v", ErrMalformedProof, KindRange, i, err)
		}
		z := new(big.Int).SetBytes(p.Zs[i])
		if z.Cmp(rangeZBound) >= 0 {
			return fmt.Errorf("%w: %s: round %d response exceeds bound", ErrVerificationFailed, KindRange, i)
		}
		zb, err := curve.ComScalarFromBytes(p.Zr[i])
		if err != nil {
			return fmt.Errorf("%w: %s: round %d blinding: %v", ErrMalformedProof, KindRange, i, err)
		}

		lhs, err := pedersenEval(z, zb)
		if err != nil {
			return fmt.Errorf("%w: %s: round %d: %v", ErrMalformedProof, KindRange, i, err)
		}
		rhs := A
		if bits[i] {
			rhs = A.Add(C)
		}
		if !lhs.Equal(rhs) {
			return fmt.Errorf("%w: %s: round %d", ErrVerificationFailed, KindRange, i)
		}
	}
	return nil
}
