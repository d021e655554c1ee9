package arith

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModInverse(t *testing.T) {
	n := big.NewInt(101) // prime
	for _, a := range []int64{1, 2, 50, 100} {
		inv, err := ModInverse(big.NewInt(a), n)
		require.NoError(t, err)
		prod := new(big.Int).Mul(big.NewInt(a), inv)
		assert.Equal(t, int64(1), prod.Mod(prod, n).Int64())
	}
}

func TestModInverseNotInvertible(t *testing.T) {
	_, err := ModInverse(big.NewInt(6), big.NewInt(9))
	assert.ErrorIs(t, err, ErrNotInvertible)
}

func TestExpSecretMatchesExp(t *testing.T) {
	n, ok := new(big.Int).SetString("c5f78f1344dd181d05f47ffb4ac78fba0f2dbde89e0b89d3fbf9d5bd0be9b5b1", 16)
	require.True(t, ok)
	if n.Bit(0) == 0 {
		n.Add(n, big.NewInt(1))
	}
	m := NewModulus(n)

	for i := 0; i < 16; i++ {
		x, err := Rand(n)
		require.NoError(t, err)
		e, err := Rand(n)
		require.NoError(t, err)
		assert.Equal(t, m.Exp(x, e), m.ExpSecret(x, e))
	}
}

func TestRandUnit(t *testing.T) {
	n := big.NewInt(35) // 5 * 7
	for i := 0; i < 32; i++ {
		u, err := RandUnit(n)
		require.NoError(t, err)
		assert.True(t, IsUnit(u, n))
	}
}

func TestRandRejectsBadLimit(t *testing.T) {
	_, err := Rand(big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = Rand(nil)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestZeroWipesLimbs(t *testing.T) {
	x, err := RandBits(512)
	require.NoError(t, err)
	backing := x.Bits()
	Zero(x)
	assert.Equal(t, 0, x.Sign())
	for _, w := range backing {
		assert.Zero(t, w)
	}
}
