package fixedfloat

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleRoundTrip(t *testing.T) {
	for _, d := range []uint8{0, 6, 8, 18} {
		v := big.NewInt(123456789)
		got := ScaleFrom18(ScaleTo18(v, d), d)
		assert.Equal(t, v.String(), got.String(), "decimals=%d", d)
	}
}

func TestScaleTo18UpAndDown(t *testing.T) {
	assert.Equal(t, "1000000000000", ScaleTo18(big.NewInt(1), 6).String())
	assert.Equal(t, "1", ScaleFrom18(big.NewInt(1000000000000), 6).String())
	assert.Equal(t, "5", ScaleTo18(big.NewInt(5), 18).String())
}

func TestCalculatePrice18(t *testing.T) {
	// 1 token in (6 decimals) -> 2 tokens out (18 decimals): price = 2e18
	price, err := CalculatePrice18(big.NewInt(1_000_000), big.NewInt(2_000_000_000_000_000_000), 6, 18)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", price.String())
}

func TestCalculatePrice18ZeroIn(t *testing.T) {
	_, err := CalculatePrice18(big.NewInt(0), big.NewInt(1), 18, 18)
	assert.Error(t, err)
}

func TestDecodeFloatInvalid(t *testing.T) {
	_, err := DecodeFloat("0x1234")
	assert.ErrorIs(t, err, ErrInvalidFloat)

	_, err = DecodeFloat("0x" + "zz" + "00000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrInvalidFloat)
}

func TestFloatEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		value    *big.Int
		decimals uint8
	}{
		{big.NewInt(0), 18},
		{big.NewInt(1), 0},
		{big.NewInt(123456789012345), 8},
		{new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1)), 0},
	}
	for _, c := range cases {
		enc, err := EncodeFloat(c.value, c.decimals)
		require.NoError(t, err)
		dec, err := DecodeFloat(enc)
		require.NoError(t, err)
		// Value() truncates below the units place, so read the float back
		// in the encoded decimals' own fixed-point scale.
		got := PackedFloat{Exponent: dec.Exponent + int32(c.decimals), Magnitude: dec.Magnitude}.Value()
		assert.Equal(t, c.value.String(), got.String())
	}
}

func TestDecodeFloatExponentSign(t *testing.T) {
	pf := PackedFloat{Exponent: -2, Magnitude: big.NewInt(12345)}
	enc := encodePackedFloat(pf)
	dec, err := DecodeFloat(enc)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), dec.Exponent)
	assert.Equal(t, "123", dec.Value().String())
}
