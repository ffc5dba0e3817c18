package polyclob

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nullstride/polyclob-go/chain"
	"github.com/shopspring/decimal"
)

// chainIDBig converts a ChainID to the *big.Int the EIP-712 domain needs.
func chainIDBig(id ChainID) *big.Int {
	return big.NewInt(int64(id))
}

// Client is the CLOB REST gateway: order building/signing, order submission
// and cancellation, and public/private reads. A zero-value Requester is
// never used directly; NewClient installs the net/http default when cfg
// doesn't supply one.
type Client struct {
	cfg       ClobConfig
	requester Requester

	mu           sync.RWMutex
	tickCache    map[string]string
	negRiskCache map[string]bool
	feeRateCache map[string]string
}

// NewClient builds a Client from cfg. Public reads work with a zero-value
// Signer/L2Creds; order building and private operations require them.
func NewClient(cfg ClobConfig) *Client {
	req := cfg.Requester
	if req == nil {
		req = NewHTTPRequester()
	}
	return &Client{
		cfg:          cfg,
		requester:    req,
		tickCache:    make(map[string]string),
		negRiskCache: make(map[string]bool),
		feeRateCache: make(map[string]string),
	}
}

func (c *Client) url(path string) string {
	return c.cfg.Host + path
}

// publicGet issues an unauthenticated GET.
func (c *Client) publicGet(path string, params map[string]string) (Response, error) {
	resp, err := c.requester.Do(Request{Method: "GET", URL: c.url(path), Params: params})
	if err != nil {
		return Response{}, wrapError(KindTransport, err, "GET %s", path)
	}
	if err := checkStatus(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// l2Timestamp resolves the Unix timestamp used to build L2/Builder HMAC
// headers: the server clock when cfg.UseServerTime is set, else the local
// clock.
func (c *Client) l2Timestamp() (int64, error) {
	if !c.cfg.UseServerTime {
		return time.Now().Unix(), nil
	}
	return c.GetServerTime()
}

// bodyForHMAC renders body the same way it will be sent on the wire (compact
// JSON), since the HMAC message must be computed over the exact request
// body. Returns "" for a nil body.
func bodyForHMAC(body interface{}) (string, error) {
	if body == nil {
		return "", nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body for HMAC: %w", err)
	}
	return string(b), nil
}

// l2Request issues an L2-authenticated request. path must match the
// request's signed path exactly as sent on the wire (any path parameters
// inlined, no query string); query parameters are passed separately via
// params and excluded from the signed message per the HMAC construction.
func (c *Client) l2Request(method, path string, params map[string]string, body interface{}) (Response, error) {
	if c.cfg.L2Creds == nil {
		return Response{}, newError(KindMissingAuth, "operation requires L2 credentials")
	}
	ts, err := c.l2Timestamp()
	if err != nil {
		return Response{}, err
	}
	bodyStr, err := bodyForHMAC(body)
	if err != nil {
		return Response{}, wrapError(KindInvalidInput, err, "build request body")
	}
	headers, err := BuildL2Headers(c.cfg.SignerAddress, *c.cfg.L2Creds, method, path, bodyStr, ts)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.requester.Do(Request{
		Method:  method,
		URL:     c.url(path),
		Headers: headers,
		Params:  params,
		Body:    body,
	})
	if err != nil {
		return Response{}, wrapError(KindTransport, err, "%s %s", method, path)
	}
	if err := checkStatus(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// GetServerTime returns the server's Unix timestamp from GET /time.
func (c *Client) GetServerTime() (int64, error) {
	resp, err := c.publicGet("/time", nil)
	if err != nil {
		return 0, err
	}
	var t int64
	if err := decodeJSON(resp, &t); err != nil {
		return 0, err
	}
	return t, nil
}

// GetTickSize returns the tick size for tokenID, consulting the in-memory
// cache before issuing GET /tick-size.
func (c *Client) GetTickSize(tokenID string) (string, error) {
	c.mu.RLock()
	if tick, ok := c.tickCache[tokenID]; ok {
		c.mu.RUnlock()
		return tick, nil
	}
	c.mu.RUnlock()

	resp, err := c.publicGet("/tick-size", map[string]string{"token_id": tokenID})
	if err != nil {
		return "", err
	}
	var out struct {
		MinimumTickSize string `json:"minimum_tick_size"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tickCache[tokenID] = out.MinimumTickSize
	c.mu.Unlock()
	return out.MinimumTickSize, nil
}

// GetNegRisk returns whether tokenID belongs to a neg-risk market,
// consulting the in-memory cache before issuing GET /neg-risk.
func (c *Client) GetNegRisk(tokenID string) (bool, error) {
	c.mu.RLock()
	if v, ok := c.negRiskCache[tokenID]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	resp, err := c.publicGet("/neg-risk", map[string]string{"token_id": tokenID})
	if err != nil {
		return false, err
	}
	var out struct {
		NegRisk bool `json:"neg_risk"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.negRiskCache[tokenID] = out.NegRisk
	c.mu.Unlock()
	return out.NegRisk, nil
}

// GetFeeRateBps returns the fee rate (in basis points, as a decimal string)
// for tokenID, consulting the in-memory cache before issuing GET
// /fee-rate-bps.
func (c *Client) GetFeeRateBps(tokenID string) (string, error) {
	c.mu.RLock()
	if v, ok := c.feeRateCache[tokenID]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	resp, err := c.publicGet("/fee-rate-bps", map[string]string{"token_id": tokenID})
	if err != nil {
		return "", err
	}
	var out struct {
		FeeRateBps string `json:"fee_rate_bps"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.feeRateCache[tokenID] = out.FeeRateBps
	c.mu.Unlock()
	return out.FeeRateBps, nil
}

// negRiskCached returns the cached neg-risk flag for tokenID, defaulting to
// false (the production exchange) when the cache hasn't been warmed. Order
// building never issues a hidden network request; callers that care about
// neg-risk markets call GetNegRisk first to warm the cache.
func (c *Client) negRiskCached(tokenID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.negRiskCache[tokenID]
}

// GetBook returns the order book for tokenID.
func (c *Client) GetBook(tokenID string) (bids []OrderBookLevel, asks []OrderBookLevel, err error) {
	resp, err := c.publicGet("/book", map[string]string{"token_id": tokenID})
	if err != nil {
		return nil, nil, err
	}
	var out struct {
		Bids []OrderBookLevel `json:"bids"`
		Asks []OrderBookLevel `json:"asks"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, nil, err
	}
	return out.Bids, out.Asks, nil
}

// GetMidpoint returns the midpoint price for tokenID.
func (c *Client) GetMidpoint(tokenID string) (string, error) {
	resp, err := c.publicGet("/midpoint", map[string]string{"token_id": tokenID})
	if err != nil {
		return "", err
	}
	var out struct {
		Mid string `json:"mid"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.Mid, nil
}

// ParseOrderBookLevels converts wire-shaped levels to the decimal-typed form
// chain.ComputeMarketPrice consumes, skipping any level with an unparsable
// price or size.
func ParseOrderBookLevels(levels []OrderBookLevel) []chain.OrderBookLevel {
	out := make([]chain.OrderBookLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			continue
		}
		out = append(out, chain.OrderBookLevel{Price: price, Size: size})
	}
	return out
}

// CreateOrder builds and signs a limit order from a UserOrder. tick must be
// one of chain.TickConfigs' keys. No network I/O is performed: tokenID's
// neg-risk flag is read from cache (defaulting to false) and the exchange
// address resolved locally.
func (c *Client) CreateOrder(order UserOrder, tick string) (*chain.SignedOrder, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "order building requires a signer")
	}
	roundCfg, ok := chain.TickConfigs[tick]
	if !ok {
		return nil, newError(KindInvalidInput, "unsupported tick size %q", tick)
	}
	price, err := decimal.NewFromString(order.Price)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "unparsable price %q", order.Price)
	}
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, newError(KindInvalidInput, "price %q must lie in (0, 1)", order.Price)
	}
	size, err := decimal.NewFromString(order.Size)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "unparsable size %q", order.Size)
	}

	raw := chain.LimitOrderRawAmounts(roundCfg, order.Side, price, size)
	return c.buildSignedOrder(order.TokenID, order.Maker, order.Taker, order.Side,
		order.FeeRateBps, order.Nonce, order.Expiration, order.SignatureType, raw)
}

// CreateMarketOrder builds and signs a market order from a UserMarketOrder.
// Price must already be resolved by the caller, typically via
// chain.ComputeMarketPrice over a GetBook snapshot.
func (c *Client) CreateMarketOrder(order UserMarketOrder, tick string) (*chain.SignedOrder, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "order building requires a signer")
	}
	roundCfg, ok := chain.TickConfigs[tick]
	if !ok {
		return nil, newError(KindInvalidInput, "unsupported tick size %q", tick)
	}
	price, err := decimal.NewFromString(order.Price)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "unparsable price %q", order.Price)
	}
	amount, err := decimal.NewFromString(order.Amount)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "unparsable amount %q", order.Amount)
	}

	raw := chain.MarketOrderRawAmounts(roundCfg, order.Side, price, amount)
	return c.buildSignedOrder(order.TokenID, order.Maker, order.Taker, order.Side,
		order.FeeRateBps, order.Nonce, order.Expiration, order.SignatureType, raw)
}

func (c *Client) buildSignedOrder(tokenID, maker, taker string, side chain.OrderSide,
	feeRateBps, nonce string, expiration int64, sigType chain.SignatureType, raw chain.RawAmounts) (*chain.SignedOrder, error) {

	if maker == "" {
		maker = c.cfg.SignerAddress
	}
	if feeRateBps == "" {
		feeRateBps = "0"
	}
	if nonce == "" {
		nonce = "0"
	}
	expirationStr := "0"
	if expiration != 0 {
		expirationStr = fmt.Sprintf("%d", expiration)
	}

	negRisk := c.negRiskCached(tokenID)
	exchangeAddr := chain.ResolveExchangeAddress(chain.ChainIDInt(c.cfg.ChainID), negRisk)
	builder := chain.NewOrderBuilder(exchangeAddr, int64(c.cfg.ChainID), c.cfg.Signer)

	data := &chain.OrderData{
		Maker:         maker,
		Taker:         taker,
		TokenID:       tokenID,
		MakerAmount:   chain.ScaleToBaseUnits(raw.Maker),
		TakerAmount:   chain.ScaleToBaseUnits(raw.Taker),
		Side:          side,
		FeeRateBps:    feeRateBps,
		Nonce:         nonce,
		Signer:        c.cfg.SignerAddress,
		Expiration:    expirationStr,
		SignatureType: sigType,
	}
	return builder.BuildSignedOrder(data)
}

// PostOrder submits a signed order to POST /order.
func (c *Client) PostOrder(so *chain.SignedOrder, orderType OrderType, deferExec bool) (*OrderResponse, error) {
	if c.cfg.L2Creds == nil {
		return nil, newError(KindMissingAuth, "order submission requires L2 credentials")
	}
	body := NewOrder{
		Order:     ToWireOrder(so),
		Owner:     c.cfg.L2Creds.Key,
		OrderType: orderType,
		DeferExec: deferExec,
	}
	resp, err := c.l2Request("POST", "/order", nil, body)
	if err != nil {
		return nil, err
	}
	var out OrderResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels a single order by id via DELETE /order.
func (c *Client) CancelOrder(orderID string) (*OrderResponse, error) {
	resp, err := c.l2Request("DELETE", "/order", nil, map[string]string{"orderID": orderID})
	if err != nil {
		return nil, err
	}
	var out OrderResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrders cancels multiple orders via POST /cancel with a JSON array
// body of order ids.
func (c *Client) CancelOrders(orderIDs []string) (*OrderResponse, error) {
	resp, err := c.l2Request("POST", "/cancel", nil, orderIDs)
	if err != nil {
		return nil, err
	}
	var out OrderResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAll cancels every open order for the authenticated account via
// DELETE /cancel-all.
func (c *Client) CancelAll() (*OrderResponse, error) {
	resp, err := c.l2Request("DELETE", "/cancel-all", nil, nil)
	if err != nil {
		return nil, err
	}
	var out OrderResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderStatus is the server's view of one order, as returned by
// GET /orders/{id}.
type OrderStatus struct {
	OrderID string    `json:"orderID"`
	Status  string    `json:"status"`
	Order   WireOrder `json:"order"`
}

// GetOrder fetches a single order's current status via GET /orders/{id};
// the path including the id is what the L2 HMAC signs.
func (c *Client) GetOrder(orderID string) (*OrderStatus, error) {
	path := "/orders/" + orderID
	resp, err := c.l2Request("GET", path, nil, nil)
	if err != nil {
		return nil, err
	}
	var wrapped MaybeWrapped[OrderStatus]
	if err := decodeJSON(resp, &wrapped); err != nil {
		return nil, err
	}
	return &wrapped.Value, nil
}

// GetOpenOrders lists the authenticated account's orders via GET
// /data/orders.
func (c *Client) GetOpenOrders() ([]OrderStatus, error) {
	resp, err := c.l2Request("GET", "/data/orders", nil, nil)
	if err != nil {
		return nil, err
	}
	var wrapped MaybeWrapped[[]OrderStatus]
	if err := decodeJSON(resp, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Value, nil
}

// Trade is one fill record returned by GET /data/trades.
type Trade struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderID,omitempty"`
	TokenID   string `json:"tokenId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// tradesPage is the cursor-paginated envelope GET /data/trades returns.
type tradesPage struct {
	Trades []Trade `json:"trades"`
	Cursor string  `json:"next_cursor"`
}

// cursorInitial and cursorTerminal are the pagination sentinels: the first
// page is requested with cursorInitial, and a response cursor equal to
// cursorTerminal means there is nothing more to fetch.
const (
	cursorInitial  = "MA=="
	cursorTerminal = "LTE="
)

// GetTrades fetches one page of the authenticated account's trade history
// via GET /data/trades, starting from cursorInitial when cursor is "".
// Returns the page's trades and the cursor to pass on the next call; the
// caller stops iterating once the returned cursor equals cursorTerminal.
func (c *Client) GetTrades(cursor string) ([]Trade, string, error) {
	if cursor == "" {
		cursor = cursorInitial
	}
	resp, err := c.l2Request("GET", "/data/trades", map[string]string{"next_cursor": cursor}, nil)
	if err != nil {
		return nil, "", err
	}
	var page tradesPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, "", err
	}
	return page.Trades, page.Cursor, nil
}

// Login performs L1 EIP-712 login against POST /auth/api-key, returning the
// API key credentials the server issues for this wallet/nonce pair.
func (c *Client) Login(nonce uint64) (*ApiKeyCreds, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "login requires a signer")
	}
	ts := time.Now().Unix()
	headers, err := BuildL1Headers(c.cfg.Signer, c.cfg.SignerAddress, chainIDBig(c.cfg.ChainID), ts, nonce)
	if err != nil {
		return nil, err
	}
	resp, err := c.requester.Do(Request{Method: "POST", URL: c.url("/auth/api-key"), Headers: headers})
	if err != nil {
		return nil, wrapError(KindTransport, err, "POST /auth/api-key")
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var wrapped MaybeWrapped[ApiKeyCreds]
	if err := decodeJSON(resp, &wrapped); err != nil {
		return nil, err
	}
	return &wrapped.Value, nil
}

// DeriveAPIKey re-derives existing API key credentials deterministically
// from the wallet signature via GET /auth/derive-api-key, for wallets that
// already completed Login once.
func (c *Client) DeriveAPIKey(nonce uint64) (*ApiKeyCreds, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "derive requires a signer")
	}
	ts := time.Now().Unix()
	headers, err := BuildL1Headers(c.cfg.Signer, c.cfg.SignerAddress, chainIDBig(c.cfg.ChainID), ts, nonce)
	if err != nil {
		return nil, err
	}
	resp, err := c.requester.Do(Request{Method: "GET", URL: c.url("/auth/derive-api-key"), Headers: headers})
	if err != nil {
		return nil, wrapError(KindTransport, err, "GET /auth/derive-api-key")
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var wrapped MaybeWrapped[ApiKeyCreds]
	if err := decodeJSON(resp, &wrapped); err != nil {
		return nil, err
	}
	return &wrapped.Value, nil
}
