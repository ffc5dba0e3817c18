package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Safe contract constants, published by the relayer deployment this client
// targets. They are the same across Polygon mainnet and the Amoy testnet.
const (
	SafeInitCodeHashHex = "0x2bce2127ff07fb632d16c8347c4ebf501f4841168bed00d9e6ef715ddb6fcecf"
	SafeFactoryHex       = "0xaacFeEa03eb1561C4e67d661e40682Bd20E3541b"
	SafeMultiSendHex     = "0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761"
)

// SafeFactoryAddress and SafeMultiSendAddress are the parsed forms of the
// published constants above, for callers that don't need to override them.
var (
	SafeFactoryAddress   = common.HexToAddress(SafeFactoryHex)
	SafeMultiSendAddress = common.HexToAddress(SafeMultiSendHex)
	SafeInitCodeHash     = common.HexToHash(SafeInitCodeHashHex)
)

// packMultiSendTx encodes one sub-transaction per the Gnosis Safe MultiSend
// layout: operation(1) ‖ to(20) ‖ value(32 BE) ‖ dataLen(32 BE) ‖ data.
func packMultiSendTx(tx SafeTransaction) []byte {
	out := make([]byte, 0, 1+20+32+32+len(tx.Data))
	out = append(out, byte(tx.Operation))

	toBytes := common.HexToAddress(tx.To).Bytes()
	out = append(out, toBytes...)

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	out = append(out, leftPad32(value.Bytes())...)

	dataLen := big.NewInt(int64(len(tx.Data)))
	out = append(out, leftPad32(dataLen.Bytes())...)

	out = append(out, tx.Data...)
	return out
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// AggregateTransactions returns txs[0] unchanged if there is exactly one
// transaction. Otherwise it packs every sub-transaction per the MultiSend
// layout and wraps them in a single outer transaction: to=multiSend,
// value=0, data=selector(multiSend(bytes)) ‖ abi.encode(bytes),
// operation=DelegateCall.
func AggregateTransactions(txs []SafeTransaction, multiSend common.Address) (SafeTransaction, error) {
	if len(txs) == 0 {
		return SafeTransaction{}, fmt.Errorf("chain: no transactions to aggregate")
	}
	if len(txs) == 1 {
		return txs[0], nil
	}

	var packed []byte
	for _, tx := range txs {
		packed = append(packed, packMultiSendTx(tx)...)
	}

	encodedBytes, err := EncodeDynamicBytes(packed)
	if err != nil {
		return SafeTransaction{}, fmt.Errorf("encode multisend payload: %w", err)
	}

	data := append(Selector("multiSend(bytes)"), encodedBytes...)

	return SafeTransaction{
		To:        multiSend.Hex(),
		Value:     big.NewInt(0),
		Data:      data,
		Operation: OperationDelegateCall,
	}, nil
}

// DeriveSafeAddress computes the CREATE2 address of a Safe proxy:
// last20(keccak256(0xff ‖ factory ‖ keccak256(abi.encode(owner)) ‖ initCodeHash)).
func DeriveSafeAddress(owner, factory common.Address, initCodeHash common.Hash) (common.Address, error) {
	ownerEncoded, err := EncodeAddress(owner)
	if err != nil {
		return common.Address{}, fmt.Errorf("encode owner: %w", err)
	}
	salt := Keccak256(ownerEncoded)

	preimage := make([]byte, 0, 1+20+32+32)
	preimage = append(preimage, 0xff)
	preimage = append(preimage, factory.Bytes()...)
	preimage = append(preimage, salt...)
	preimage = append(preimage, initCodeHash.Bytes()...)

	hash := Keccak256(preimage)
	return common.BytesToAddress(hash[12:]), nil
}

// SignatureMode selects which digest/prefix combination is signed to
// authorize a Safe transaction. Different relayer revisions expect
// different conventions.
type SignatureMode int

const (
	// Eip191Digest signs the EIP-191 personal-message hash of the digest.
	// It is the zero value and the first mode attempted by default.
	Eip191Digest SignatureMode = iota
	// Eip712Digest signs the raw EIP-712 digest with no additional prefix.
	Eip712Digest
	// Eip191StructHash signs the EIP-191 personal-message hash of the
	// struct hash alone (no domain separator folded in).
	Eip191StructHash
)

func (m SignatureMode) String() string {
	switch m {
	case Eip712Digest:
		return "eip712_digest"
	case Eip191Digest:
		return "eip191_digest"
	case Eip191StructHash:
		return "eip191_structhash"
	default:
		return "unknown"
	}
}

// DefaultSignatureModeRotation is the fixed retry order used when
// RELAYER_SIG_MODE=auto: 191-digest, then 712-digest, then 191-structhash.
var DefaultSignatureModeRotation = []SignatureMode{Eip191Digest, Eip712Digest, Eip191StructHash}

// PackSafeSignature renders (r, s, v) in the Safe contract's non-standard
// encoding: v is normalized {0→31, 1→32, 27→31, 28→32} and the signature is
// r(32B) ‖ s(32B) ‖ v'(1B).
func PackSafeSignature(sig RSV) []byte {
	v := sig.V
	switch v {
	case 0, 27:
		v = 31
	case 1, 28:
		v = 32
	}
	packed := RSV{R: sig.R, S: sig.S, V: v}
	return packed.Bytes65()
}

// SafeSigner composes the two signing capabilities the Safe signature modes
// need: a raw-digest signer (Eip712Digest) and a personal-message signer
// (Eip191Digest, Eip191StructHash).
type SafeSigner interface {
	DigestSigner
	PersonalMessageSigner
}

// SignSafeTransaction computes the SafeTx EIP-712 digest under the given
// chain/safe-address domain and signs it per mode, returning the packed
// 0x-prefixed 65-byte signature along with the digest and struct hash used
// (useful for debugging and for recomputing under a different mode without
// resigning from scratch).
func SignSafeTransaction(s SafeSigner, chainID *big.Int, safeAddress common.Address, tx SafeTransaction, nonce *big.Int, mode SignatureMode) (signatureHex string, digest common.Hash, structHash common.Hash, err error) {
	msg := SafeTxMessage{
		To:        common.HexToAddress(tx.To),
		Value:     tx.Value,
		Data:      tx.Data,
		Operation: uint8(tx.Operation),
		Nonce:     nonce,
	}
	structHash, err = msg.Hash()
	if err != nil {
		return "", common.Hash{}, common.Hash{}, fmt.Errorf("safe tx struct hash: %w", err)
	}

	domain := SafeDomain(chainID, safeAddress)
	digest = Digest(domain.Hash(), structHash)

	var sig RSV
	switch mode {
	case Eip712Digest:
		sig, err = s.SignDigest(digest.Bytes())
	case Eip191Digest:
		sig, err = s.SignPersonal(digest.Bytes())
	case Eip191StructHash:
		sig, err = s.SignPersonal(structHash.Bytes())
	default:
		return "", common.Hash{}, common.Hash{}, fmt.Errorf("chain: unknown signature mode %v", mode)
	}
	if err != nil {
		return "", common.Hash{}, common.Hash{}, fmt.Errorf("sign safe tx (%s): %w", mode, err)
	}

	packed := PackSafeSignature(sig)
	return "0x" + fmt.Sprintf("%x", packed), digest, structHash, nil
}

// SafeCreateDigest builds the digest for a proxy-deployment signature; nonce
// is always zero per the spec's SafeCreate schema.
func SafeCreateDigest(chainID *big.Int, factory common.Address, owner common.Address) (common.Hash, error) {
	msg := SafeCreateMessage{
		Owner:           owner,
		PaymentToken:    common.Address{},
		Payment:         big.NewInt(0),
		PaymentReceiver: common.Address{},
		Nonce:           big.NewInt(0),
	}
	structHash, err := msg.Hash()
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe create struct hash: %w", err)
	}
	domain := SafeDomain(chainID, factory)
	return Digest(domain.Hash(), structHash), nil
}
