package polyclob

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nullstride/polyclob-go/chain"
	"github.com/rs/zerolog/log"
)

// debugEnabled reports whether any of the masked debug streams are opted
// into via environment variables.
func debugEnabled() bool {
	return os.Getenv("CLOB_DEBUG_FULL") != "" || os.Getenv("CLOB_DEBUG_RAW") != "" || os.Getenv("CLOB_DEBUG_TYPED") != ""
}

// BuildL1Headers produces the EIP-712 login headers: POLY_ADDRESS,
// POLY_SIGNATURE, POLY_TIMESTAMP, POLY_NONCE. timestamp and nonce are
// threaded explicitly so the same values used to build the signature are
// the ones emitted on the wire.
func BuildL1Headers(s chain.TypedDataSigner, address string, chainID *big.Int, timestamp int64, nonce uint64) (map[string]string, error) {
	domain := chain.LoginDomain(chainID)
	msg := chain.LoginMessage{
		Address:   common.HexToAddress(address),
		Timestamp: strconv.FormatInt(timestamp, 10),
		Nonce:     nonce,
		Message:   chain.LoginMessageLiteral,
	}
	sig, err := chain.SignLoginTypedData(s, domain, msg)
	if err != nil {
		return nil, wrapError(KindInvalidSignature, err, "build L1 login signature")
	}

	if debugEnabled() {
		log.Debug().Str("address", address).Str("sig", maskSignature(sig)).Msg("l1 headers built")
	}

	return map[string]string{
		"POLY_ADDRESS":   address,
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatUint(nonce, 10),
	}, nil
}

// BuildL2Headers produces the HMAC request-signing headers: POLY_ADDRESS,
// POLY_SIGNATURE, POLY_TIMESTAMP, POLY_API_KEY, POLY_PASSPHRASE. message =
// timestamp ‖ method ‖ requestPath ‖ body; requestPath must include any
// path parameters exactly as sent on the wire and no query string.
func BuildL2Headers(address string, creds ApiKeyCreds, method, requestPath, body string, timestamp int64) (map[string]string, error) {
	message := fmt.Sprintf("%d%s%s%s", timestamp, method, requestPath, body)
	sig, err := hmacSHA256Base64URL(creds.Secret, message)
	if err != nil {
		return nil, wrapError(KindMissingAuth, err, "build L2 HMAC signature")
	}

	if debugEnabled() {
		log.Debug().
			Str("key", maskAPIKey(creds.Key)).
			Str("sig", maskSignature(sig)).
			Str("method", method).
			Str("path", requestPath).
			Msg("l2 headers built")
	}

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  strconv.FormatInt(timestamp, 10),
		"POLY_API_KEY":    creds.Key,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// BuildBuilderHeaders produces the relayer's Builder-HMAC headers, additive
// to L2: POLY_BUILDER_API_KEY, POLY_BUILDER_PASSPHRASE,
// POLY_BUILDER_SIGNATURE, POLY_BUILDER_TIMESTAMP. timestamp defaults to the
// current Unix time when zero.
func BuildBuilderHeaders(creds BuilderCreds, method, requestPath, body string, timestamp int64, now func() int64) (map[string]string, error) {
	if timestamp == 0 {
		timestamp = now()
	}
	message := fmt.Sprintf("%d%s%s%s", timestamp, method, requestPath, body)
	sig, err := hmacSHA256Base64URL(creds.Secret, message)
	if err != nil {
		return nil, wrapError(KindMissingAuth, err, "build builder HMAC signature")
	}

	if debugEnabled() {
		log.Debug().
			Str("key", maskAPIKey(creds.Key)).
			Str("sig", maskSignature(sig)).
			Msg("builder headers built")
	}

	return map[string]string{
		"POLY_BUILDER_API_KEY":    creds.Key,
		"POLY_BUILDER_PASSPHRASE": creds.Passphrase,
		"POLY_BUILDER_SIGNATURE":  sig,
		"POLY_BUILDER_TIMESTAMP":  strconv.FormatInt(timestamp, 10),
	}, nil
}
