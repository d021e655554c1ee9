package protocol

import (
	"fmt"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/encoding"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

// PublicKeyPackage is the public outcome of key generation: the joint
// ECDSA public key and the auxiliary commitments both parties agreed on.
// It is immutable once a session reaches its final state.
type PublicKeyPackage struct {
	// JointPublic is the compressed joint ECDSA public key.
	JointPublic []byte

	// ShareCommitment is the auxiliary-group Pedersen commitment to the
	// client share, re-verified by later signing proofs.
	ShareCommitment []byte

	// PaillierModulus is the client's Paillier modulus, fixed for the
	// lifetime of the wallet.
	PaillierModulus []byte
}

// Point decodes the joint public key.
func (p *PublicKeyPackage) Point() (*curve.Point, error) {
	return curve.DecodePoint(p.JointPublic)
}

// Encode serializes the package.
func (p *PublicKeyPackage) Encode() ([]byte, error) {
	return encoding.Marshal(p)
}

// DecodePublicKeyPackage parses an encoded package, validating the joint
// key encoding.
func DecodePublicKeyPackage(data []byte) (*PublicKeyPackage, error) {
	var p PublicKeyPackage
	if err := encoding.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if _, err := curve.DecodePoint(p.JointPublic); err != nil {
		return nil, err
	}
	return &p, nil
}

// KeyShare is one party's persistent secret material. It never leaves the
// party that generated it; the keyvault package stores it encrypted.
type KeyShare struct {
	Role   Role
	Share  *curve.Scalar
	Public *PublicKeyPackage

	// PaillierSK is held by the client role only.
	PaillierSK *paillier.PrivateKey

	// PeerPaillierPK and CKey (the encrypted client share) are held by
	// the server role only.
	PeerPaillierPK *paillier.PublicKey
	CKey           *big.Int
}

type keyShareRaw struct {
	Role           Role
	Share          []byte
	Public         *PublicKeyPackage
	PaillierSK     *paillier.PrivateKey
	PeerPaillierPK *paillier.PublicKey
	CKey           []byte
}

// Encode serializes the share for party-local storage.
func (k *KeyShare) Encode() ([]byte, error) {
	raw := keyShareRaw{
		Role:           k.Role,
		Share:          k.Share.Bytes(),
		Public:         k.Public,
		PaillierSK:     k.PaillierSK,
		PeerPaillierPK: k.PeerPaillierPK,
	}
	if k.CKey != nil {
		raw.CKey = k.CKey.Bytes()
	}
	return encoding.Marshal(raw)
}

// DecodeKeyShare parses an encoded key share.
func DecodeKeyShare(data []byte) (*KeyShare, error) {
	var raw keyShareRaw
	if err := encoding.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	share, err := curve.ScalarFromBytes(raw.Share)
	if err != nil {
		return nil, err
	}
	k := &KeyShare{
		Role:           raw.Role,
		Share:          share,
		Public:         raw.Public,
		PaillierSK:     raw.PaillierSK,
		PeerPaillierPK: raw.PeerPaillierPK,
	}
	if len(raw.CKey) > 0 {
		k.CKey = new(big.Int).SetBytes(raw.CKey)
	}
	return k, nil
}

// Zeroize wipes the secret scalar and Paillier private key.
func (k *KeyShare) Zeroize() {
	if k.Share != nil {
		k.Share.Zeroize()
	}
	if k.PaillierSK != nil {
		k.PaillierSK.Zeroize()
	}
}

// SignatureSize is the byte length of an encoded signature.
const SignatureSize = 2 * curve.ScalarSize

// Signature is an ECDSA signature under the joint public key.
type Signature struct {
	R *big.Int
	S *big.Int
}

// Encode serializes r and s as fixed-width big-endian values.
func (s *Signature) Encode() []byte {
	out := make([]byte, SignatureSize)
	s.R.FillBytes(out[:curve.ScalarSize])
	s.S.FillBytes(out[curve.ScalarSize:])
	return out
}

// DecodeSignature parses a fixed-width signature encoding.
func DecodeSignature(data []byte) (*Signature, error) {
	if len(data) != SignatureSize {
		return nil, fmt.Errorf("%w: signature must be %d bytes", ErrMalformedMessage, SignatureSize)
	}
	return &Signature{
		R: new(big.Int).SetBytes(data[:curve.ScalarSize]),
		S: new(big.Int).SetBytes(data[curve.ScalarSize:]),
	}, nil
}

// Verify checks the signature against a compressed public key and a
// 32-byte message digest with standard ECDSA verification.
func (s *Signature) Verify(compressedPub, digest []byte) bool {
	if s.R == nil || s.S == nil || s.R.Sign() <= 0 || s.S.Sign() <= 0 {
		return false
	}
	q := curve.Order()
	if s.R.Cmp(q) >= 0 || s.S.Cmp(q) >= 0 {
		return false
	}
	pub, err := secp256k1.ParsePubKey(compressedPub)
	if err != nil {
		return false
	}
	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(s.R.FillBytes(make([]byte, curve.ScalarSize))); overflow {
		return false
	}
	if overflow := sc.SetByteSlice(s.S.FillBytes(make([]byte, curve.ScalarSize))); overflow {
		return false
	}
	return secpecdsa.NewSignature(&r, &sc).Verify(digest, pub)
}

// sampleShareScalar draws a secret share or nonce. The sampling bound
// keeps every secret inside the witness range the proofs can commit to.
func sampleShareScalar() (*curve.Scalar, *big.Int, error) {
	for {
		v, err := arith.RandBits(shareBits)
		if err != nil {
			return nil, nil, err
		}
		if v.Sign() != 0 {
			return curve.NewScalar(v), v, nil
		}
	}
}
