// Package decode turns the opaque ABI-encoded order blob an indexer hands
// the solver into a tagged ordertype.Order. It is pure: it never touches the
// chain, and it never returns partial state on error.
package decode

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/rainsolver/solver/internal/ordertype"
)

// ErrDecodeFailed is returned when neither the V3 nor the V5 ABI shape
// decodes the given bytes.
var ErrDecodeFailed = fmt.Errorf("decode: malformed order bytes")

// VersionHint is the subgraph record's claim about which ABI produced the
// order bytes; the decoder trusts it first and falls back to the other
// shape only if the hinted decode fails.
type VersionHint = ordertype.OrderVersion

var (
	orderV3Type abi.Type
	orderV5Type abi.Type
)

func init() {
	var err error
	orderV3Type, err = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "nonce", Type: "bytes32"},
		{Name: "evaluable", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "interpreter", Type: "address"},
			{Name: "store", Type: "address"},
			{Name: "bytecode", Type: "bytes"},
		}},
		{Name: "validInputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
		{Name: "validOutputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
	})
	if err != nil {
		panic(fmt.Errorf("decode: order v3 type: %w", err))
	}

	orderV5Type, err = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "nonce", Type: "bytes32"},
		{Name: "evaluable", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "interpreter", Type: "address"},
			{Name: "store", Type: "address"},
			{Name: "bytecode", Type: "bytes"},
		}},
		{Name: "validInputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "vaultId", Type: "bytes32"},
		}},
		{Name: "validOutputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "vaultId", Type: "bytes32"},
		}},
	})
	if err != nil {
		panic(fmt.Errorf("decode: order v5 type: %w", err))
	}
}

// abi-side mirror structs; abi.ConvertType copies abi.Unpack's tuple values
// into them field by field in position order, and abi.Pack matches their
// exported fields by name, so both order and names must be kept in lockstep
// with the ArgumentMarshaling above.
type abiEvaluable struct {
	Interpreter gethcommon.Address
	Store       gethcommon.Address
	Bytecode    []byte
}

type abiIOV3 struct {
	Token    gethcommon.Address
	Decimals uint8
	VaultId  *big.Int
}

type abiIOV5 struct {
	Token   gethcommon.Address
	VaultId [32]byte
}

func TryFromBytes(data []byte, hint VersionHint) (ordertype.Order, error) {
	versions := orderedVersions(hint)
	var lastErr error
	for _, v := range versions {
		order, err := decodeVersion(data, v)
		if err == nil {
			return order, nil
		}
		lastErr = err
	}
	return ordertype.Order{}, fmt.Errorf("%w: %v", ErrDecodeFailed, lastErr)
}

func orderedVersions(hint VersionHint) []VersionHint {
	if hint == ordertype.OrderVersionV5 {
		return []VersionHint{ordertype.OrderVersionV5, ordertype.OrderVersionV3}
	}
	return []VersionHint{ordertype.OrderVersionV3, ordertype.OrderVersionV5}
}

func decodeVersion(data []byte, v VersionHint) (ordertype.Order, error) {
	if v == ordertype.OrderVersionV5 {
		return decodeV5(data)
	}
	return decodeV3(data)
}

func decodeV3(data []byte) (ordertype.Order, error) {
	args := abi.Arguments{{Type: orderV3Type}}
	values, err := args.Unpack(data)
	if err != nil || len(values) != 1 {
		return ordertype.Order{}, fmt.Errorf("decode v3: %w", err)
	}
	type orderV3 struct {
		Owner        gethcommon.Address
		Nonce        [32]byte
		Evaluable    abiEvaluable
		ValidInputs  []abiIOV3
		ValidOutputs []abiIOV3
	}
	raw := *abi.ConvertType(values[0], new(orderV3)).(*orderV3)

	order := ordertype.Order{
		Version: ordertype.OrderVersionV3,
		Owner:   strings.ToLower(raw.Owner.Hex()),
		Nonce:   raw.Nonce,
		Evaluable: ordertype.Evaluable{
			Interpreter: strings.ToLower(raw.Evaluable.Interpreter.Hex()),
			Store:       strings.ToLower(raw.Evaluable.Store.Hex()),
			Bytecode:    raw.Evaluable.Bytecode,
		},
	}
	for _, in := range raw.ValidInputs {
		order.ValidInputsV3 = append(order.ValidInputsV3, ordertype.IOV3{
			Token:    strings.ToLower(in.Token.Hex()),
			Decimals: in.Decimals,
			VaultID:  in.VaultId,
		})
	}
	for _, out := range raw.ValidOutputs {
		order.ValidOutputsV3 = append(order.ValidOutputsV3, ordertype.IOV3{
			Token:    strings.ToLower(out.Token.Hex()),
			Decimals: out.Decimals,
			VaultID:  out.VaultId,
		})
	}
	if len(order.ValidInputsV3) == 0 || len(order.ValidOutputsV3) == 0 {
		return ordertype.Order{}, fmt.Errorf("decode v3: empty io")
	}
	return order, nil
}

func decodeV5(data []byte) (ordertype.Order, error) {
	args := abi.Arguments{{Type: orderV5Type}}
	values, err := args.Unpack(data)
	if err != nil || len(values) != 1 {
		return ordertype.Order{}, fmt.Errorf("decode v5: %w", err)
	}
	// V3 bytes also unpack under the narrower V5 shape; only bytes that
	// re-encode to exactly the input are accepted as V5.
	if repacked, err := args.Pack(values[0]); err != nil || !bytes.Equal(repacked, data) {
		return ordertype.Order{}, fmt.Errorf("decode v5: bytes are not v5-shaped")
	}
	type orderV5 struct {
		Owner        gethcommon.Address
		Nonce        [32]byte
		Evaluable    abiEvaluable
		ValidInputs  []abiIOV5
		ValidOutputs []abiIOV5
	}
	raw := *abi.ConvertType(values[0], new(orderV5)).(*orderV5)

	order := ordertype.Order{
		Version: ordertype.OrderVersionV5,
		Owner:   strings.ToLower(raw.Owner.Hex()),
		Nonce:   raw.Nonce,
		Evaluable: ordertype.Evaluable{
			Interpreter: strings.ToLower(raw.Evaluable.Interpreter.Hex()),
			Store:       strings.ToLower(raw.Evaluable.Store.Hex()),
			Bytecode:    raw.Evaluable.Bytecode,
		},
	}
	for _, in := range raw.ValidInputs {
		order.ValidInputsV5 = append(order.ValidInputsV5, ordertype.IOV5{
			Token:   strings.ToLower(in.Token.Hex()),
			VaultID: in.VaultId,
		})
	}
	for _, out := range raw.ValidOutputs {
		order.ValidOutputsV5 = append(order.ValidOutputsV5, ordertype.IOV5{
			Token:   strings.ToLower(out.Token.Hex()),
			VaultID: out.VaultId,
		})
	}
	if len(order.ValidInputsV5) == 0 || len(order.ValidOutputsV5) == 0 {
		return ordertype.Order{}, fmt.Errorf("decode v5: empty io")
	}
	return order, nil
}
