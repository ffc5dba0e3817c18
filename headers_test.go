package polyclob

import (
	"math/big"
	"testing"

	"github.com/nullstride/polyclob-go/chain"
)

func TestBuildL1HeadersShape(t *testing.T) {
	s, err := chain.NewPrivateKeySignerFromHex(testHexKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	headers, err := BuildL1Headers(s, s.Address(), big.NewInt(137), 1700000000, 5)
	if err != nil {
		t.Fatalf("build l1 headers: %v", err)
	}
	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Errorf("missing header %s", key)
		}
	}
	if headers["POLY_ADDRESS"] != s.Address() {
		t.Errorf("POLY_ADDRESS = %s, want %s", headers["POLY_ADDRESS"], s.Address())
	}
	if headers["POLY_NONCE"] != "5" {
		t.Errorf("POLY_NONCE = %s, want 5", headers["POLY_NONCE"])
	}
	if headers["POLY_TIMESTAMP"] != "1700000000" {
		t.Errorf("POLY_TIMESTAMP = %s, want 1700000000", headers["POLY_TIMESTAMP"])
	}
}

func TestBuildL1HeadersRecoverable(t *testing.T) {
	s, _ := chain.NewPrivateKeySignerFromHex(testHexKey)
	headers, err := BuildL1Headers(s, s.Address(), big.NewInt(137), 1700000000, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	domain := chain.LoginDomain(big.NewInt(137))
	msg := chain.LoginMessage{
		Address:   commonAddr(s.Address()),
		Timestamp: "1700000000",
		Nonce:     1,
		Message:   chain.LoginMessageLiteral,
	}
	structHash, err := msg.Hash()
	if err != nil {
		t.Fatalf("struct hash: %v", err)
	}
	digest := chain.Digest(domain.Hash(), structHash)
	recovered, err := chain.RecoverAddress(digest.Bytes(), fromHex(headers["POLY_SIGNATURE"]))
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != s.Address() {
		t.Errorf("recovered %s, want %s", recovered, s.Address())
	}
}

func TestBuildL2HeadersDeterministicSignature(t *testing.T) {
	creds := ApiKeyCreds{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "pass-1"}
	h1, err := BuildL2Headers("0xabc", creds, "POST", "/order", `{"a":1}`, 1700000000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	h2, err := BuildL2Headers("0xabc", creds, "POST", "/order", `{"a":1}`, 1700000000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] {
		t.Error("L2 signature is not deterministic for identical inputs")
	}
	if h1["POLY_API_KEY"] != "key-1" || h1["POLY_PASSPHRASE"] != "pass-1" {
		t.Error("L2 headers did not carry through the credential fields")
	}
}

func TestBuildBuilderHeadersUsesSuppliedTimestamp(t *testing.T) {
	creds := BuilderCreds{Key: "bkey", Secret: "c2VjcmV0", Passphrase: "bpass"}
	headers, err := BuildBuilderHeaders(creds, "GET", "/transaction", "", 1700000123, func() int64 { return 0 })
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if headers["POLY_BUILDER_TIMESTAMP"] != "1700000123" {
		t.Errorf("timestamp = %s, want 1700000123", headers["POLY_BUILDER_TIMESTAMP"])
	}
	if headers["POLY_BUILDER_API_KEY"] != "bkey" {
		t.Errorf("api key = %s, want bkey", headers["POLY_BUILDER_API_KEY"])
	}
}

func TestBuildBuilderHeadersFallsBackToNowWhenZero(t *testing.T) {
	creds := BuilderCreds{Key: "bkey", Secret: "c2VjcmV0", Passphrase: "bpass"}
	headers, err := BuildBuilderHeaders(creds, "GET", "/transaction", "", 0, func() int64 { return 42 })
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if headers["POLY_BUILDER_TIMESTAMP"] != "42" {
		t.Errorf("timestamp = %s, want 42 from the injected clock", headers["POLY_BUILDER_TIMESTAMP"])
	}
}
