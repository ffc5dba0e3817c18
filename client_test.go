package polyclob

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nullstride/polyclob-go/chain"
)

// fakeRequester is an in-memory Requester stand-in for tests: a caller
// registers a handler keyed by "METHOD path" and fakeRequester dispatches to
// it, recording every request it was asked to perform.
type fakeRequester struct {
	mu       sync.Mutex
	handlers map[string]func(Request) (Response, error)
	requests []Request
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{handlers: make(map[string]func(Request) (Response, error))}
}

func (f *fakeRequester) on(method, path string, h func(Request) (Response, error)) {
	f.handlers[method+" "+path] = h
}

func (f *fakeRequester) onJSON(method, path string, status int, body interface{}) {
	f.on(method, path, func(Request) (Response, error) {
		b, _ := json.Marshal(body)
		return Response{Status: status, Body: b}, nil
	})
}

func (f *fakeRequester) Do(req Request) (Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for key, h := range f.handlers {
		parts := strings.SplitN(key, " ", 2)
		method, path := parts[0], parts[1]
		if req.Method != method {
			continue
		}
		if req.URL == path || strings.HasSuffix(req.URL, path) {
			return h(req)
		}
	}
	return Response{}, fmt.Errorf("fakeRequester: no handler for %s %s", req.Method, req.URL)
}

func testClient(t *testing.T, fr *fakeRequester, signed bool) *Client {
	t.Helper()
	cfg := ClobConfig{
		Host:      "https://clob.test",
		ChainID:   ChainIDPolygon,
		Requester: fr,
	}
	if signed {
		s, err := chain.NewPrivateKeySignerFromHex(testHexKey)
		if err != nil {
			t.Fatalf("new signer: %v", err)
		}
		cfg.Signer = s
		cfg.SignerAddress = s.Address()
		cfg.L2Creds = &ApiKeyCreds{Key: "k1", Secret: "c2VjcmV0", Passphrase: "p1"}
	}
	return NewClient(cfg)
}

func TestGetTickSizeCachesAfterFirstFetch(t *testing.T) {
	fr := newFakeRequester()
	calls := 0
	fr.on("GET", "/tick-size", func(Request) (Response, error) {
		calls++
		return Response{Status: 200, Body: []byte(`{"minimum_tick_size":"0.01"}`)}, nil
	})
	c := testClient(t, fr, false)

	for i := 0; i < 3; i++ {
		tick, err := c.GetTickSize("123")
		if err != nil {
			t.Fatalf("GetTickSize: %v", err)
		}
		if tick != "0.01" {
			t.Errorf("tick = %s, want 0.01", tick)
		}
	}
	if calls != 1 {
		t.Errorf("expected exactly one network call, got %d", calls)
	}
}

func TestGetNegRiskCaches(t *testing.T) {
	fr := newFakeRequester()
	calls := 0
	fr.on("GET", "/neg-risk", func(Request) (Response, error) {
		calls++
		return Response{Status: 200, Body: []byte(`{"neg_risk":true}`)}, nil
	})
	c := testClient(t, fr, false)

	v1, err := c.GetNegRisk("123")
	if err != nil {
		t.Fatalf("GetNegRisk: %v", err)
	}
	v2, err := c.GetNegRisk("123")
	if err != nil {
		t.Fatalf("GetNegRisk: %v", err)
	}
	if !v1 || !v2 {
		t.Error("expected neg-risk true both times")
	}
	if calls != 1 {
		t.Errorf("expected one network call, got %d", calls)
	}
	if !c.negRiskCached("123") {
		t.Error("negRiskCached should reflect the warmed cache")
	}
}

func TestNegRiskCachedDefaultsFalseWithoutNetworkCall(t *testing.T) {
	fr := newFakeRequester()
	c := testClient(t, fr, false)
	if c.negRiskCached("unwarmed-token") {
		t.Error("expected default false for an unwarmed token")
	}
	if len(fr.requests) != 0 {
		t.Errorf("negRiskCached performed network I/O: %d requests", len(fr.requests))
	}
}

func TestCreateOrderRejectsPriceOutOfRange(t *testing.T) {
	fr := newFakeRequester()
	c := testClient(t, fr, true)

	_, err := c.CreateOrder(UserOrder{TokenID: "1", Price: "0", Size: "10", Side: Buy}, "0.01")
	if !IsKind(err, KindInvalidInput) {
		t.Errorf("expected KindInvalidInput for price=0, got %v", err)
	}

	_, err = c.CreateOrder(UserOrder{TokenID: "1", Price: "1", Size: "10", Side: Buy}, "0.01")
	if !IsKind(err, KindInvalidInput) {
		t.Errorf("expected KindInvalidInput for price=1, got %v", err)
	}
}

func TestCreateOrderRejectsUnknownTick(t *testing.T) {
	c := testClient(t, newFakeRequester(), true)
	_, err := c.CreateOrder(UserOrder{TokenID: "1", Price: "0.5", Size: "10", Side: Buy}, "0.05")
	if !IsKind(err, KindInvalidInput) {
		t.Errorf("expected KindInvalidInput for unsupported tick, got %v", err)
	}
}

func TestCreateOrderRequiresSigner(t *testing.T) {
	c := testClient(t, newFakeRequester(), false)
	_, err := c.CreateOrder(UserOrder{TokenID: "1", Price: "0.5", Size: "10", Side: Buy}, "0.01")
	if !IsKind(err, KindMissingAuth) {
		t.Errorf("expected KindMissingAuth, got %v", err)
	}
}

// TestCreateOrderS1 reproduces scenario S1 end-to-end through the client's
// CreateOrder API, including the scaled base-unit amounts.
func TestCreateOrderS1(t *testing.T) {
	c := testClient(t, newFakeRequester(), true)
	so, err := c.CreateOrder(UserOrder{TokenID: "123", Price: "0.5234", Size: "10.0", Side: Buy}, "0.01")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if so.Order.MakerAmount != "5200000" {
		t.Errorf("maker amount = %s, want 5200000", so.Order.MakerAmount)
	}
	if so.Order.TakerAmount != "10000000" {
		t.Errorf("taker amount = %s, want 10000000", so.Order.TakerAmount)
	}
	if so.Order.FeeRateBps != "0" {
		t.Errorf("fee rate bps = %s, want 0", so.Order.FeeRateBps)
	}
	if so.Signature == "" {
		t.Error("expected a non-empty signature")
	}
}

func TestPostOrderRequiresL2Creds(t *testing.T) {
	c := testClient(t, newFakeRequester(), false)
	so := &chain.SignedOrder{Order: &chain.Order{}, Signature: "0x"}
	_, err := c.PostOrder(so, OrderTypeGTC, false)
	if !IsKind(err, KindMissingAuth) {
		t.Errorf("expected KindMissingAuth, got %v", err)
	}
}

func TestPostOrderSendsOwnerAsL2Key(t *testing.T) {
	fr := newFakeRequester()
	var captured NewOrder
	fr.on("POST", "/order", func(req Request) (Response, error) {
		b, _ := json.Marshal(req.Body)
		json.Unmarshal(b, &captured)
		return Response{Status: 200, Body: []byte(`{"success":true,"orderID":"oid-1"}`)}, nil
	})
	c := testClient(t, fr, true)
	so := &chain.SignedOrder{Order: &chain.Order{Salt: "1", Maker: "0xaaa", Signer: "0xaaa", Taker: "0x0", TokenID: "1", MakerAmount: "1", TakerAmount: "1", Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: chain.OrderSideBuy}, Signature: "0xsig"}

	resp, err := c.PostOrder(so, OrderTypeGTC, false)
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	if !resp.Success || resp.OrderID != "oid-1" {
		t.Errorf("resp = %+v", resp)
	}
	if captured.Owner != "k1" {
		t.Errorf("owner = %s, want the L2 api key k1", captured.Owner)
	}
}

func TestCancelOrdersUsesPostCancelWithArrayBody(t *testing.T) {
	fr := newFakeRequester()
	var capturedBody []byte
	fr.on("POST", "/cancel", func(req Request) (Response, error) {
		capturedBody, _ = json.Marshal(req.Body)
		return Response{Status: 200, Body: []byte(`{"success":true}`)}, nil
	})
	c := testClient(t, fr, true)

	_, err := c.CancelOrders([]string{"a", "b"})
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if string(capturedBody) != `["a","b"]` {
		t.Errorf("body = %s, want a bare JSON array", string(capturedBody))
	}
}

func TestGetOrderUsesOrdersPath(t *testing.T) {
	fr := newFakeRequester()
	fr.on("GET", "/orders/abc", func(req Request) (Response, error) {
		return Response{Status: 200, Body: []byte(`{"orderID":"abc","status":"LIVE"}`)}, nil
	})
	c := testClient(t, fr, true)

	status, err := c.GetOrder("abc")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if status.OrderID != "abc" || status.Status != "LIVE" {
		t.Errorf("status = %+v", status)
	}
}

func TestGetTradesDefaultsToInitialCursor(t *testing.T) {
	fr := newFakeRequester()
	var sawCursor string
	fr.on("GET", "/data/trades", func(req Request) (Response, error) {
		sawCursor = req.Params["next_cursor"]
		return Response{Status: 200, Body: []byte(`{"trades":[],"next_cursor":"LTE="}`)}, nil
	})
	c := testClient(t, fr, true)

	trades, cursor, err := c.GetTrades("")
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if sawCursor != cursorInitial {
		t.Errorf("cursor sent = %s, want %s", sawCursor, cursorInitial)
	}
	if cursor != cursorTerminal {
		t.Errorf("returned cursor = %s, want terminal", cursor)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

func TestLoginUsesL1HeadersAndReturnsCreds(t *testing.T) {
	fr := newFakeRequester()
	fr.on("POST", "/auth/api-key", func(req Request) (Response, error) {
		for _, h := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
			if req.Headers[h] == "" {
				t.Errorf("missing header %s on login request", h)
			}
		}
		return Response{Status: 200, Body: []byte(`{"apiKey":"new-key","secret":"c2VjcmV0","passphrase":"np"}`)}, nil
	})
	c := testClient(t, fr, true)

	creds, err := c.Login(1)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.Key != "new-key" {
		t.Errorf("key = %s, want new-key", creds.Key)
	}
}

func TestParseOrderBookLevelsSkipsUnparsable(t *testing.T) {
	levels := []OrderBookLevel{
		{Price: "0.5", Size: "10"},
		{Price: "garbage", Size: "10"},
		{Price: "0.6", Size: "garbage"},
	}
	out := ParseOrderBookLevels(levels)
	if len(out) != 1 {
		t.Fatalf("expected 1 parsable level, got %d", len(out))
	}
	if out[0].Price.String() != "0.5" {
		t.Errorf("price = %s, want 0.5", out[0].Price.String())
	}
}
