package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N = crypto.S256().Params().N

// secp256k1HalfN is the curve order's half, used for EIP-2 low-s normalization.
var secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)

// Keccak256 hashes the concatenation of data with keccak-256.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// RSV is a raw ECDSA signature split into its three components, with V
// already normalized to the Ethereum convention (27 or 28).
type RSV struct {
	R *big.Int
	S *big.Int
	V byte
}

// SignDigestRSV signs a 32-byte digest with the given key, normalizing s to
// the lower half of the curve order (EIP-2) and v to {27, 28}.
func SignDigestRSV(digest []byte, key *ecdsa.PrivateKey) (RSV, error) {
	if len(digest) != 32 {
		return RSV{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return RSV{}, fmt.Errorf("sign digest: %w", err)
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]

	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
		v ^= 1
	}

	return RSV{R: r, S: s, V: v + 27}, nil
}

// Bytes65 renders an RSV as the raw 65-byte signature r(32B) ‖ s(32B) ‖ v(1B);
// HexString gives the 0x-prefixed hex form.
func (sig RSV) Bytes65() []byte {
	out := make([]byte, 65)
	rBytes := sig.R.Bytes()
	sBytes := sig.S.Bytes()
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	out[64] = sig.V
	return out
}

// HexString renders the signature as "0x" + hex(r‖s‖v).
func (sig RSV) HexString() string {
	return "0x" + fmt.Sprintf("%x", sig.Bytes65())
}

// PersonalMessageDigest computes the EIP-191 digest of a 32-byte hash, i.e.
// keccak256("\x19Ethereum Signed Message:\n32" ‖ h).
func PersonalMessageDigest(h []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(h))
	return crypto.Keccak256([]byte(prefix), h)
}

// RecoverAddress recovers the signing address from a digest and a 65-byte
// r‖s‖v signature (v ∈ {27,28} or {0,1}).
func RecoverAddress(digest []byte, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return "", fmt.Errorf("recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
