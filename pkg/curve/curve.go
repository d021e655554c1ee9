// Package curve provides the two algebraic domains used by the protocol:
// the secp256k1 signing curve (Scalar, Point) and the edwards25519
// auxiliary group (ComScalar, ComPoint) used only for commitments inside
// zero-knowledge proofs. The domains share no concrete types, so mixing
// them in one expression does not compile.
package curve

import "errors"

var (
	// ErrInvalidPoint is returned when an encoding does not describe a
	// valid point on the expected curve.
	ErrInvalidPoint = errors.New("curve: invalid point encoding")

	// ErrPointAtInfinity is returned when an operation that requires an
	// affine point receives the identity.
	ErrPointAtInfinity = errors.New("curve: point at infinity")

	// ErrInvalidScalar is returned when bytes do not encode a canonical
	// scalar for the target group.
	ErrInvalidScalar = errors.New("curve: invalid scalar encoding")

	// ErrZeroScalar is returned when inverting the zero scalar.
	ErrZeroScalar = errors.New("curve: scalar is zero")
)
