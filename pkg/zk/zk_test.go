package zk

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-exchange/mpc/pkg/arith"
	"github.com/arcadia-exchange/mpc/pkg/curve"
	"github.com/arcadia-exchange/mpc/pkg/paillier"
)

const testSession = "zk-test-session"

var (
	testPK *paillier.PublicKey
	testSK *paillier.PrivateKey
)

func TestMain(m *testing.M) {
	// One shared key pair; generation dominates test time otherwise.
	pk, sk, err := paillier.GenerateKeyPair(paillier.MinModulusBits)
	if err != nil {
		panic(err)
	}
	testPK, testSK = pk, sk
	m.Run()
}

func randomWitness(t *testing.T) *big.Int {
	t.Helper()
	v, err := arith.RandBits(WitnessBits)
	require.NoError(t, err)
	return v
}

func TestCommitRoundTrip(t *testing.T) {
	com, nonce, err := Commit("test", []byte("hello"), []byte("world"))
	require.NoError(t, err)
	assert.True(t, VerifyCommit(com, nonce, "test", []byte("hello"), []byte("world")))
	assert.False(t, VerifyCommit(com, nonce, "test", []byte("hello"), []byte("w0rld")))
	assert.False(t, VerifyCommit(com, nonce, "other", []byte("hello"), []byte("world")))

	flipped := append([]byte{}, com...)
	flipped[0] ^= 1
	assert.False(t, VerifyCommit(flipped, nonce, "test", []byte("hello"), []byte("world")))
}

func TestDLogProof(t *testing.T) {
	x, err := curve.RandomScalar()
	require.NoError(t, err)
	X := curve.BaseMul(x)

	proof, err := ProveDLog(testSession, "keygen", x, X)
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(testSession, "keygen", X))

	// wrong statement
	other := curve.BaseMul(x.Add(x))
	assert.Error(t, proof.Verify(testSession, "keygen", other))
	// wrong session binding
	assert.Error(t, proof.Verify("another-session", "keygen", X))
	// wrong tag
	assert.Error(t, proof.Verify(testSession, "signing", X))
}

func TestDLogProofTamper(t *testing.T) {
	x, err := curve.RandomScalar()
	require.NoError(t, err)
	X := curve.BaseMul(x)
	proof, err := ProveDLog(testSession, "keygen", x, X)
	require.NoError(t, err)

	for bit := 0; bit < len(proof.Z)*8; bit += 37 {
		mut := &DLogProof{A: proof.A, Z: append([]byte{}, proof.Z...)}
		mut.Z[bit/8] ^= 1 << (uint(bit) % 8)
		assert.Error(t, mut.Verify(testSession, "keygen", X), "flipped bit %d accepted", bit)
	}
}

func TestModProof(t *testing.T) {
	proof, err := ProveMod(testSession, testSK)
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(testSession, testPK))

	assert.Error(t, proof.Verify("other-session", testPK))
}

func TestModProofTamper(t *testing.T) {
	proof, err := ProveMod(testSession, testSK)
	require.NoError(t, err)

	mut := &ModProof{Ys: append([][]byte{}, proof.Ys...)}
	mut.Ys[4] = append([]byte{}, proof.Ys[4]...)
	mut.Ys[4][10] ^= 0x40
	err = mut.Verify(testSession, testPK)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	short := &ModProof{Ys: proof.Ys[:5]}
	assert.ErrorIs(t, short.Verify(testSession, testPK), ErrMalformedProof)
}

func TestModProofRejectsPrimeModulus(t *testing.T) {
	proof, err := ProveMod(testSession, testSK)
	require.NoError(t, err)

	p, ok := new(big.Int).SetString("1", 10)
	require.True(t, ok)
	p.Lsh(p, 1279)
	for !p.ProbablyPrime(30) {
		p.Add(p, big.NewInt(1))
	}
	assert.ErrorIs(t, proof.Verify(testSession, &paillier.PublicKey{N: p}), ErrVerificationFailed)
}

func TestEncProof(t *testing.T) {
	m := randomWitness(t)
	c, r, err := testPK.EncryptAndNonce(m)
	require.NoError(t, err)

	proof, err := ProveEnc(testSession, testPK, c, m, r)
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(testSession, testPK, c))

	// proof must not verify against a different ciphertext
	c2, _, err := testPK.EncryptAndNonce(m)
	require.NoError(t, err)
	assert.ErrorIs(t, proof.Verify(testSession, testPK, c2), ErrVerificationFailed)
}

func TestEncProofTamper(t *testing.T) {
	m := randomWitness(t)
	c, r, err := testPK.EncryptAndNonce(m)
	require.NoError(t, err)
	proof, err := ProveEnc(testSession, testPK, c, m, r)
	require.NoError(t, err)

	for _, mutate := range []func(p *EncProof){
		func(p *EncProof) { p.A[3] ^= 0x10 },
		func(p *EncProof) { p.Z1[7] ^= 0x01 },
		func(p *EncProof) { p.Z2[0] ^= 0x80 },
	} {
		mut := &EncProof{
			A:  append([]byte{}, proof.A...),
			Z1: append([]byte{}, proof.Z1...),
			Z2: append([]byte{}, proof.Z2...),
		}
		mutate(mut)
		assert.Error(t, mut.Verify(testSession, testPK, c))
	}
}

func TestEncProofRejectsOversizedWitness(t *testing.T) {
	m, err := arith.RandBits(WitnessBits + 8)
	require.NoError(t, err)
	m.SetBit(m, WitnessBits+4, 1)
	c, r, err := testPK.EncryptAndNonce(m)
	require.NoError(t, err)
	_, err = ProveEnc(testSession, testPK, c, m, r)
	assert.ErrorIs(t, err, ErrMalformedProof)
}

func TestRangeProof(t *testing.T) {
	v := randomWitness(t)
	C, rho, err := PedersenCommit(v)
	require.NoError(t, err)

	proof, err := ProveRange(testSession, C, v, rho)
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(testSession, C))

	// other commitment
	C2, _, err := PedersenCommit(v)
	require.NoError(t, err)
	assert.Error(t, proof.Verify(testSession, C2))
}

func TestRangeProofTamper(t *testing.T) {
	v := randomWitness(t)
	C, rho, err := PedersenCommit(v)
	require.NoError(t, err)
	proof, err := ProveRange(testSession, C, v, rho)
	require.NoError(t, err)

	mut := &RangeProof{
		As: append([][]byte{}, proof.As...),
		Zs: append([][]byte{}, proof.Zs...),
		Zr: append([][]byte{}, proof.Zr...),
	}
	mut.Zs[17] = append([]byte{}, proof.Zs[17]...)
	mut.Zs[17][0] ^= 0x04
	assert.Error(t, mut.Verify(testSession, C))

	truncated := &RangeProof{As: proof.As[:10], Zs: proof.Zs[:10], Zr: proof.Zr[:10]}
	assert.ErrorIs(t, truncated.Verify(testSession, C), ErrMalformedProof)
}

func TestConsistencyProof(t *testing.T) {
	x := randomWitness(t)
	c, r, err := testPK.EncryptAndNonce(x)
	require.NoError(t, err)
	X := curve.BaseMul(curve.NewScalar(x))
	C, rho, err := PedersenCommit(x)
	require.NoError(t, err)

	st := ConsistencyStatement{PK: testPK, Ciphertext: c, Point: X, Commitment: C}
	proof, err := ProveConsistency(testSession, st, x, r, rho)
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(testSession, st))
}

func TestConsistencyProofCatchesMismatchedPoint(t *testing.T) {
	x := randomWitness(t)
	c, r, err := testPK.EncryptAndNonce(x)
	require.NoError(t, err)
	C, rho, err := PedersenCommit(x)
	require.NoError(t, err)

	// point encodes a different value than the ciphertext
	y, err := curve.RandomScalar()
	require.NoError(t, err)
	st := ConsistencyStatement{PK: testPK, Ciphertext: c, Point: curve.BaseMul(y), Commitment: C}

	proof, err := ProveConsistency(testSession, st, x, r, rho)
	require.NoError(t, err)
	assert.ErrorIs(t, proof.Verify(testSession, st), ErrVerificationFailed)
}

func TestConsistencyProofTamper(t *testing.T) {
	x := randomWitness(t)
	c, r, err := testPK.EncryptAndNonce(x)
	require.NoError(t, err)
	X := curve.BaseMul(curve.NewScalar(x))
	C, rho, err := PedersenCommit(x)
	require.NoError(t, err)
	st := ConsistencyStatement{PK: testPK, Ciphertext: c, Point: X, Commitment: C}
	proof, err := ProveConsistency(testSession, st, x, r, rho)
	require.NoError(t, err)

	mut := &ConsistencyProof{
		A1: proof.A1, A2: proof.A2, A3: proof.A3,
		Z:  append([]byte{}, proof.Z...),
		Z2: proof.Z2, Z3: proof.Z3,
	}
	mut.Z[5] ^= 0x20
	assert.Error(t, mut.Verify(testSession, st))
}

func TestVerifyAll(t *testing.T) {
	ok := func() error { return nil }
	boom := errors.New("boom")
	fail := func() error { return boom }

	assert.NoError(t, VerifyAll(ok, ok, ok))
	assert.ErrorIs(t, VerifyAll(ok, fail, ok), boom)
	assert.NoError(t, VerifyAll())
}
