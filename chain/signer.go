package chain

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// DigestSigner signs a raw 32-byte digest with no prefixing. Used for Safe
// transaction digests under the Eip712Digest signature mode.
type DigestSigner interface {
	SignDigest(digest []byte) (RSV, error)
}

// PersonalMessageSigner signs a 32-byte hash under the EIP-191
// "\x19Ethereum Signed Message:\n32" prefix.
type PersonalMessageSigner interface {
	SignPersonal(h []byte) (RSV, error)
}

// TypedDataSigner signs an already-assembled EIP-712 digest
// (keccak256(0x19 01 ‖ domainSeparator ‖ structHash)). The engine in
// eip712.go is responsible for building that digest; a TypedDataSigner only
// needs to sign 32 bytes.
type TypedDataSigner interface {
	SignTypedData(digest []byte) (RSV, error)
}

// AddressProvider exposes the signer's own address.
type AddressProvider interface {
	Address() string
}

// Signer composes all capabilities a production signer offers. Callers that
// only need one capability should depend on the narrower interface instead.
type Signer interface {
	AddressProvider
	DigestSigner
	PersonalMessageSigner
	TypedDataSigner
}

// PrivateKeySigner is an in-memory secp256k1 signer. It implements Signer
// deterministically from a private key and is suitable for both production
// use and tests.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewPrivateKeySigner derives the address from the key's uncompressed public
// key via keccak256(pubkey)[12:32], matching the standard Ethereum address
// derivation.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return &PrivateKeySigner{key: key, address: addr}
}

// NewPrivateKeySignerFromHex parses a hex-encoded (optionally 0x-prefixed)
// secp256k1 private key.
func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the 0x-prefixed, EIP-55 checksummed hex address.
func (s *PrivateKeySigner) Address() string {
	return s.address
}

// SignDigest signs a 32-byte digest with no prefix.
func (s *PrivateKeySigner) SignDigest(digest []byte) (RSV, error) {
	return SignDigestRSV(digest, s.key)
}

// SignPersonal signs h under the EIP-191 personal-message prefix.
func (s *PrivateKeySigner) SignPersonal(h []byte) (RSV, error) {
	return SignDigestRSV(PersonalMessageDigest(h), s.key)
}

// SignTypedData signs an already-built EIP-712 digest directly (no
// additional prefixing — the engine has already applied 0x19 01).
func (s *PrivateKeySigner) SignTypedData(digest []byte) (RSV, error) {
	return SignDigestRSV(digest, s.key)
}
