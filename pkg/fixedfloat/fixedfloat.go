// Package fixedfloat scales token amounts between native decimals and the
// solver's canonical 18-decimal fixed-point space, and encodes/decodes the
// orderbook protocol's opaque 32-byte packed float.
package fixedfloat

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Decimals18 is the canonical fixed-point basis all ratio math happens in.
const Decimals18 = 18

// ErrInvalidFloat is returned when a packed float hex string cannot be decoded.
var ErrInvalidFloat = fmt.Errorf("fixedfloat: invalid float")

var ten = big.NewInt(10)

// pow10 returns 10^n as a fresh big.Int.
func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// ScaleTo18 scales v, expressed in d decimals, up or down into 18-decimal space.
func ScaleTo18(v *big.Int, d uint8) *big.Int {
	return rescale(v, int(d), Decimals18)
}

// ScaleFrom18 scales v, expressed in 18 decimals, into d-decimal native space.
func ScaleFrom18(v *big.Int, d uint8) *big.Int {
	return rescale(v, Decimals18, int(d))
}

func rescale(v *big.Int, from, to int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(v)
	if to == from {
		return out
	}
	if to > from {
		return out.Mul(out, pow10(to-from))
	}
	return out.Div(out, pow10(from-to))
}

// CalculatePrice18 returns the 18-decimal price of amountOut/amountIn, each
// expressed in their own native decimals.
//
//	price_18 = scale_to_18(amount_out, d_out) * 1e18 / scale_to_18(amount_in, d_in)
func CalculatePrice18(amountIn, amountOut *big.Int, dIn, dOut uint8) (*big.Int, error) {
	in18 := ScaleTo18(amountIn, dIn)
	if in18.Sign() == 0 {
		return nil, fmt.Errorf("fixedfloat: zero amount_in")
	}
	out18 := ScaleTo18(amountOut, dOut)
	num := new(big.Int).Mul(out18, pow10(Decimals18))
	return num.Div(num, in18), nil
}

// PackedFloat is the protocol's opaque 32-byte value: a 4-byte signed
// exponent followed by a 28-byte unsigned magnitude, such that the encoded
// value equals magnitude * 10^exponent.
type PackedFloat struct {
	Exponent  int32
	Magnitude *big.Int
}

const packedFloatBytes = 32
const packedFloatHexLen = packedFloatBytes * 2

// DecodeFloat parses a 0x-prefixed (or bare) hex string into a PackedFloat.
// It fails with ErrInvalidFloat if the string is shorter than 64 nibbles or
// is not valid hex.
func DecodeFloat(hexStr string) (PackedFloat, error) {
	s := strings.TrimPrefix(hexStr, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s) < packedFloatHexLen {
		return PackedFloat{}, ErrInvalidFloat
	}
	raw, err := hex.DecodeString(s[:packedFloatHexLen])
	if err != nil {
		return PackedFloat{}, fmt.Errorf("%w: %s", ErrInvalidFloat, err)
	}
	expBytes := raw[:4]
	magBytes := raw[4:]

	expUnsigned := new(big.Int).SetBytes(expBytes)
	// 4-byte two's complement signed exponent.
	if expBytes[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 32)
		expUnsigned.Sub(expUnsigned, mod)
	}
	if !expUnsigned.IsInt64() {
		return PackedFloat{}, ErrInvalidFloat
	}

	return PackedFloat{
		Exponent:  int32(expUnsigned.Int64()),
		Magnitude: new(big.Int).SetBytes(magBytes),
	}, nil
}

// EncodeFloat packs a (value, decimals) pair into the protocol's 32-byte
// float by expressing value as magnitude*10^exponent with exponent chosen
// so magnitude stays within 28 bytes. A value above 2^224-1 is divided by
// ten, raising the exponent, until it fits; the dropped low digits are lost.
func EncodeFloat(value *big.Int, decimals uint8) (string, error) {
	if value == nil || value.Sign() < 0 {
		return "", fmt.Errorf("fixedfloat: negative or nil value")
	}
	maxMagnitude := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))
	magnitude := new(big.Int).Set(value)
	exponent := -int32(decimals)

	for magnitude.Cmp(maxMagnitude) > 0 {
		magnitude.Div(magnitude, ten)
		exponent++
	}

	return encodePackedFloat(PackedFloat{Exponent: exponent, Magnitude: magnitude}), nil
}

func encodePackedFloat(pf PackedFloat) string {
	expBytes := make([]byte, 4)
	expVal := uint32(pf.Exponent)
	expBytes[0] = byte(expVal >> 24)
	expBytes[1] = byte(expVal >> 16)
	expBytes[2] = byte(expVal >> 8)
	expBytes[3] = byte(expVal)

	magBytes := pf.Magnitude.Bytes()
	padded := make([]byte, 28)
	copy(padded[28-len(magBytes):], magBytes)

	out := append(expBytes, padded...)
	return "0x" + hex.EncodeToString(out)
}

// Value returns the plain integer value the packed float represents:
// magnitude * 10^exponent. Negative exponents divide (with truncation).
func (pf PackedFloat) Value() *big.Int {
	if pf.Magnitude == nil {
		return big.NewInt(0)
	}
	if pf.Exponent >= 0 {
		return new(big.Int).Mul(pf.Magnitude, pow10(int(pf.Exponent)))
	}
	return new(big.Int).Div(pf.Magnitude, pow10(int(-pf.Exponent)))
}
