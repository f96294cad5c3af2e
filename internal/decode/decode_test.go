package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/ordertype"
)

func encodeV3(t *testing.T) []byte {
	t.Helper()
	args := abi.Arguments{{Type: orderV3Type}}
	data, err := args.Pack(struct {
		Owner        gethcommon.Address
		Nonce        [32]byte
		Evaluable    abiEvaluable
		ValidInputs  []abiIOV3
		ValidOutputs []abiIOV3
	}{
		Owner: gethcommon.HexToAddress("0xABCDEF0000000000000000000000000000000001"),
		Nonce: [32]byte{1},
		Evaluable: abiEvaluable{
			Interpreter: gethcommon.HexToAddress("0x1"),
			Store:       gethcommon.HexToAddress("0x2"),
			Bytecode:    []byte{0xde, 0xad},
		},
		ValidInputs: []abiIOV3{
			{Token: gethcommon.HexToAddress("0xIN"), Decimals: 6, VaultId: big.NewInt(1)},
		},
		ValidOutputs: []abiIOV3{
			{Token: gethcommon.HexToAddress("0xOUT"), Decimals: 18, VaultId: big.NewInt(2)},
		},
	})
	require.NoError(t, err)
	return data
}

func TestDecodeV3RoundTrip(t *testing.T) {
	data := encodeV3(t)
	order, err := TryFromBytes(data, ordertype.OrderVersionV3)
	require.NoError(t, err)
	assert.Equal(t, ordertype.OrderVersionV3, order.Version)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", order.Owner)
	assert.Len(t, order.ValidInputsV3, 1)
	assert.Len(t, order.ValidOutputsV3, 1)
	assert.Equal(t, uint8(6), order.ValidInputsV3[0].Decimals)
}

func TestDecodeFailsOnGarbage(t *testing.T) {
	_, err := TryFromBytes([]byte{0x01, 0x02, 0x03}, ordertype.OrderVersionV3)
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestDecodeFallsBackToOtherVersion(t *testing.T) {
	data := encodeV3(t)
	// Hint says V5, but the bytes are V3-shaped; the decoder must fall back.
	order, err := TryFromBytes(data, ordertype.OrderVersionV5)
	require.NoError(t, err)
	assert.Equal(t, ordertype.OrderVersionV3, order.Version)
}
