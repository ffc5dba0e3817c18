package polyclob

import (
	"encoding/json"
	"testing"

	"github.com/nullstride/polyclob-go/chain"
)

// TestNewOrderSaltIsBareNumber is part of P1: the salt must round-trip
// losslessly as a JSON number, not a quoted string.
func TestNewOrderSaltIsBareNumber(t *testing.T) {
	salt := NewOrderSalt{Value: "9007199254740991"} // 2^53 - 1
	b, err := json.Marshal(salt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "9007199254740991" {
		t.Errorf("marshaled salt = %s, want a bare number", string(b))
	}

	var back NewOrderSalt
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Value != salt.Value {
		t.Errorf("round trip mismatch: %s != %s", back.Value, salt.Value)
	}
}

func TestNewOrderSaltUnmarshalsQuotedString(t *testing.T) {
	var s NewOrderSalt
	if err := json.Unmarshal([]byte(`"12345"`), &s); err != nil {
		t.Fatalf("unmarshal quoted: %v", err)
	}
	if s.Value != "12345" {
		t.Errorf("value = %s, want 12345", s.Value)
	}
}

func TestNewOrderSaltMarshalEmptyIsZero(t *testing.T) {
	b, err := json.Marshal(NewOrderSalt{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "0" {
		t.Errorf("marshaled empty salt = %s, want 0", string(b))
	}
}

func TestToWireOrderCarriesAllFields(t *testing.T) {
	order := &chain.Order{
		Salt: "1", Maker: "0xaaa", Signer: "0xaaa", Taker: "0x0",
		TokenID: "7", MakerAmount: "100", TakerAmount: "200",
		Expiration: "0", Nonce: "0", FeeRateBps: "0",
		Side: chain.OrderSideSell, SignatureType: chain.SignatureTypeEOA,
	}
	so := &chain.SignedOrder{Order: order, Signature: "0xsig"}
	wire := ToWireOrder(so)

	if wire.Side != "SELL" {
		t.Errorf("side = %s, want SELL", wire.Side)
	}
	if wire.Signature != "0xsig" {
		t.Errorf("signature = %s, want 0xsig", wire.Signature)
	}
	if wire.SignatureType != int(chain.SignatureTypeEOA) {
		t.Errorf("signatureType = %d, want %d", wire.SignatureType, chain.SignatureTypeEOA)
	}
}

// TestOrderResponseHashAliasesFromOrderHashes covers the orderHashes/transactionsHashes
// alias requirement: whichever name the server emits, both accessors agree.
func TestOrderResponseHashAliasesFromOrderHashes(t *testing.T) {
	var resp OrderResponse
	raw := `{"success":true,"orderID":"1","orderHashes":["0xabc"]}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.OrderHashes) != 1 || resp.OrderHashes[0] != "0xabc" {
		t.Errorf("OrderHashes = %v", resp.OrderHashes)
	}
	if len(resp.TransactionsHashes) != 1 || resp.TransactionsHashes[0] != "0xabc" {
		t.Errorf("TransactionsHashes alias not populated: %v", resp.TransactionsHashes)
	}
}

func TestOrderResponseHashAliasesFromTransactionsHashes(t *testing.T) {
	var resp OrderResponse
	raw := `{"success":true,"transactionsHashes":["0xdef"]}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.OrderHashes) != 1 || resp.OrderHashes[0] != "0xdef" {
		t.Errorf("OrderHashes alias not populated: %v", resp.OrderHashes)
	}
}

func TestOrderResponseMarshalEmitsBothAliases(t *testing.T) {
	resp := OrderResponse{Success: true, OrderID: "1", OrderHashes: []string{"0x1"}, TransactionsHashes: []string{"0x1"}}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := raw["orderHashes"]; !ok {
		t.Error("marshaled response missing orderHashes")
	}
	if _, ok := raw["transactionsHashes"]; !ok {
		t.Error("marshaled response missing transactionsHashes")
	}
}

func TestMaybeWrappedAcceptsBareShape(t *testing.T) {
	var m MaybeWrapped[[]string]
	if err := json.Unmarshal([]byte(`["a","b"]`), &m); err != nil {
		t.Fatalf("unmarshal bare: %v", err)
	}
	if len(m.Value) != 2 || m.Value[0] != "a" {
		t.Errorf("value = %v", m.Value)
	}
}

func TestMaybeWrappedAcceptsDataWrapper(t *testing.T) {
	var m MaybeWrapped[[]string]
	if err := json.Unmarshal([]byte(`{"data":["a","b"]}`), &m); err != nil {
		t.Fatalf("unmarshal wrapped: %v", err)
	}
	if len(m.Value) != 2 || m.Value[1] != "b" {
		t.Errorf("value = %v", m.Value)
	}
}

func TestMaybeWrappedSingletonBothShapes(t *testing.T) {
	type obj struct {
		ID string `json:"id"`
	}
	var bare MaybeWrapped[obj]
	if err := json.Unmarshal([]byte(`{"id":"x"}`), &bare); err != nil {
		t.Fatalf("unmarshal bare singleton: %v", err)
	}
	if bare.Value.ID != "x" {
		t.Errorf("bare singleton id = %s, want x", bare.Value.ID)
	}

	var wrapped MaybeWrapped[obj]
	if err := json.Unmarshal([]byte(`{"data":{"id":"y"}}`), &wrapped); err != nil {
		t.Fatalf("unmarshal wrapped singleton: %v", err)
	}
	if wrapped.Value.ID != "y" {
		t.Errorf("wrapped singleton id = %s, want y", wrapped.Value.ID)
	}
}

func TestApiKeyCredsUnmarshalsServerWireShape(t *testing.T) {
	var creds ApiKeyCreds
	raw := `{"apiKey":"k1","secret":"s1","passphrase":"p1"}`
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if creds.Key != "k1" || creds.Secret != "s1" || creds.Passphrase != "p1" {
		t.Errorf("creds = %+v", creds)
	}
}
