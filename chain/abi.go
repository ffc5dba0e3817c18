package chain

import (
	"fmt"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	abiBytes32, _   = gethabi.NewType("bytes32", "", nil)
	abiUint256, _   = gethabi.NewType("uint256", "", nil)
	abiUint8, _     = gethabi.NewType("uint8", "", nil)
	abiAddress, _   = gethabi.NewType("address", "", nil)
	abiBytes, _     = gethabi.NewType("bytes", "", nil)
	abiUint256Arr, _ = gethabi.NewType("uint256[]", "", nil)
)

// structField is one ABI-typed value destined for a struct-hash encoding.
type structField struct {
	kind  string
	value interface{}
}

// Bytes32 wraps a fixed 32-byte value (already-hashed bytes, or a typeHash).
func Bytes32(b [32]byte) structField { return structField{"bytes32", b} }

// Uint256 wraps a *big.Int for uint256 encoding.
func Uint256(v *big.Int) structField { return structField{"uint256", v} }

// Uint8Field wraps a uint8 for encoding.
func Uint8Field(v uint8) structField { return structField{"uint8", v} }

// AddressField wraps an address for encoding.
func AddressField(a common.Address) structField { return structField{"address", a} }

// BytesField wraps a dynamic bytes value, to be packed as its keccak256 hash
// per EIP-712's rule for `bytes`/`string` struct fields.
func BytesField(b []byte) structField { return structField{"bytes-hashed", b} }

// Uint256ArrayField wraps a dynamic uint256[] value, to be packed as the
// keccak256 hash of the concatenated encoded elements per EIP-712.
func Uint256ArrayField(vs []*big.Int) structField { return structField{"uint256[]-hashed", vs} }

// EncodeStructHash ABI-encodes (typeHash, field1, ..., fieldN) and returns
// keccak256 of the packing, i.e. the EIP-712 struct hash for one level of
// nesting. Dynamic fields (bytes, arrays) are pre-hashed per spec before
// packing, matching the struct-hash rule in EIP-712 §Rationale.
func EncodeStructHash(typeHash [32]byte, fields ...structField) (common.Hash, error) {
	args := make(gethabi.Arguments, 0, len(fields)+1)
	values := make([]interface{}, 0, len(fields)+1)

	args = append(args, gethabi.Argument{Type: abiBytes32})
	values = append(values, typeHash)

	for _, f := range fields {
		switch f.kind {
		case "bytes32":
			args = append(args, gethabi.Argument{Type: abiBytes32})
			values = append(values, f.value)
		case "uint256":
			args = append(args, gethabi.Argument{Type: abiUint256})
			values = append(values, f.value)
		case "uint8":
			args = append(args, gethabi.Argument{Type: abiUint8})
			values = append(values, f.value)
		case "address":
			args = append(args, gethabi.Argument{Type: abiAddress})
			values = append(values, f.value)
		case "bytes-hashed":
			args = append(args, gethabi.Argument{Type: abiBytes32})
			values = append(values, crypto.Keccak256Hash(f.value.([]byte)))
		case "uint256[]-hashed":
			var packed []byte
			for _, v := range f.value.([]*big.Int) {
				enc, err := gethabi.Arguments{{Type: abiUint256}}.Pack(v)
				if err != nil {
					return common.Hash{}, fmt.Errorf("pack uint256[] element: %w", err)
				}
				packed = append(packed, enc...)
			}
			args = append(args, gethabi.Argument{Type: abiBytes32})
			values = append(values, crypto.Keccak256Hash(packed))
		default:
			return common.Hash{}, fmt.Errorf("unsupported abi field kind %q", f.kind)
		}
	}

	encoded, err := args.Pack(values...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack struct fields: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// EncodeDynamicBytes ABI-encodes a single dynamic `bytes` argument, used for
// MultiSend's `multiSend(bytes)` calldata.
func EncodeDynamicBytes(data []byte) ([]byte, error) {
	packed, err := gethabi.Arguments{{Type: abiBytes}}.Pack(data)
	if err != nil {
		return nil, fmt.Errorf("pack dynamic bytes: %w", err)
	}
	return packed, nil
}

// EncodeAddress ABI-encodes a single address argument padded to 32 bytes,
// used by the CREATE2 Safe-address derivation (`abi.encode(owner)`).
func EncodeAddress(a common.Address) ([]byte, error) {
	packed, err := gethabi.Arguments{{Type: abiAddress}}.Pack(a)
	if err != nil {
		return nil, fmt.Errorf("pack address: %w", err)
	}
	return packed, nil
}

// Selector returns the first 4 bytes of keccak256(signature), e.g. the
// function selector for "multiSend(bytes)".
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}
