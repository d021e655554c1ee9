package zk

import (
	"fmt"
	"math/big"

	"github.com/arcadia-exchange/mpc/pkg/curve"
)

// pedersenH is the fixed second generator of the auxiliary group.
// Derivation is deterministic, so both parties agree on it without
// exchanging parameters.
var pedersenH = curve.ComAuxGenerator()

// PedersenCommit commits to a bounded value on the auxiliary group:
// C = v*B + rho*H. Returns the commitment and the blinding factor.
func PedersenCommit(v *big.Int) (*curve.ComPoint, *curve.ComScalar, error) {
	if v.Sign() < 0 || v.BitLen() > WitnessBits {
		return nil, nil, fmt.Errorf("%w: pedersen value out of range", ErrMalformedProof)
	}
	vs, err := curve.ComScalarFromBig(v)
	if err != nil {
		return nil, nil, err
	}
	rho, err := curve.RandomComScalar()
	if err != nil {
		return nil, nil, err
	}
	C := curve.ComBaseMul(vs).Add(pedersenH.Mul(rho))
	return C, rho, nil
}

// pedersenEval recomputes z*B + zr*H for verification equations whose
// integer response z may exceed the group order.
func pedersenEval(z *big.Int, zr *curve.ComScalar) (*curve.ComPoint, error) {
	zs, err := curve.ComScalarReduce(z)
	if err != nil {
		return nil, err
	}
	return curve.ComBaseMul(zs).Add(pedersenH.Mul(zr)), nil
}
