package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointEncodeRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		k, err := RandomScalar()
		require.NoError(t, err)
		p := BaseMul(k)

		enc, err := p.Encode()
		require.NoError(t, err)
		require.Len(t, enc, PointSize)

		dec, err := DecodePoint(enc)
		require.NoError(t, err)
		assert.True(t, p.Equal(dec))
	}
}

func TestDecodePointRejectsGarbage(t *testing.T) {
	_, err := DecodePoint(make([]byte, PointSize))
	assert.Error(t, err)

	k, _ := RandomScalar()
	enc, _ := BaseMul(k).Encode()

	bad := append([]byte{}, enc...)
	bad[0] = 0x05
	_, err = DecodePoint(bad)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = DecodePoint(enc[:16])
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestInfinityHasNoEncoding(t *testing.T) {
	_, err := Infinity().Encode()
	assert.ErrorIs(t, err, ErrPointAtInfinity)
	_, err = Infinity().X()
	assert.ErrorIs(t, err, ErrPointAtInfinity)
}

func TestAddInverseYieldsInfinity(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)
	p := BaseMul(k)
	q := BaseMul(k.Negate())
	assert.True(t, p.Add(q).IsInfinity())
}

func TestMulSecretMatchesMul(t *testing.T) {
	for i := 0; i < 8; i++ {
		k, err := RandomScalar()
		require.NoError(t, err)
		assert.True(t, BaseMul(k).Equal(BaseMulSecret(k)))

		p := BaseMul(k)
		s, err := RandomScalar()
		require.NoError(t, err)
		assert.True(t, p.Mul(s).Equal(p.MulSecret(s)))
	}
}

func TestScalarArithmetic(t *testing.T) {
	a, err := RandomScalar()
	require.NoError(t, err)
	b, err := RandomScalar()
	require.NoError(t, err)

	// (a+b)-b == a
	assert.True(t, a.Add(b).Sub(b).Equal(a))

	// a * a^-1 == 1
	inv, err := a.Invert()
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Mul(inv).Big().Int64())

	// group law: (a+b)G == aG + bG
	assert.True(t, BaseMul(a.Add(b)).Equal(BaseMul(a).Add(BaseMul(b))))
}

func TestScalarInvertZero(t *testing.T) {
	_, err := NewScalar(big.NewInt(0)).Invert()
	assert.ErrorIs(t, err, ErrZeroScalar)
}

func TestScalarZeroize(t *testing.T) {
	a, err := RandomScalar()
	require.NoError(t, err)
	a.Zeroize()
	assert.True(t, a.IsZero())
}

func TestScalarFromBytesRejectsOverflow(t *testing.T) {
	over := Order()
	b := make([]byte, ScalarSize)
	over.FillBytes(b)
	_, err := ScalarFromBytes(b)
	assert.ErrorIs(t, err, ErrInvalidScalar)
}
