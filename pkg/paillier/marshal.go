package paillier

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR encodes the public key as its modulus bytes.
func (pk *PublicKey) MarshalCBOR() ([]byte, error) {
	if pk == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(pk.N.Bytes())
}

// UnmarshalCBOR decodes a public key, rejecting trivially invalid moduli.
func (pk *PublicKey) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	n := new(big.Int).SetBytes(raw)
	if n.BitLen() < MinModulusBits || n.Bit(0) == 0 {
		return ErrKeyTooSmall
	}
	pk.N = n
	return nil
}

type privateKeyRaw struct {
	P []byte
	Q []byte
}

// MarshalCBOR encodes the factorization witnesses. The encoding is for
// party-local storage only and must never cross the party boundary.
func (sk *PrivateKey) MarshalCBOR() ([]byte, error) {
	if sk == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(privateKeyRaw{P: sk.p.Bytes(), Q: sk.q.Bytes()})
}

// UnmarshalCBOR rebuilds the private key, rederiving the totient and its
// inverse from the stored primes.
func (sk *PrivateKey) UnmarshalCBOR(data []byte) error {
	var raw privateKeyRaw
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	p := new(big.Int).SetBytes(raw.P)
	q := new(big.Int).SetBytes(raw.Q)
	n := new(big.Int).Mul(p, q)
	if n.BitLen() < MinModulusBits {
		return ErrKeyTooSmall
	}
	phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
	mu := new(big.Int).ModInverse(phi, n)
	if mu == nil {
		return ErrKeyTooSmall
	}
	sk.pk = &PublicKey{N: n}
	sk.p = p
	sk.q = q
	sk.phi = phi
	sk.mu = mu
	return nil
}
