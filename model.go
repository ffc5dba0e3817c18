// Package polyclob is a client-side gateway for placing, cancelling, and
// querying orders on a prediction-market central limit order book, and for
// submitting Safe meta-transactions through a relayer. It implements the
// signing and authentication schemes the server and relayer require
// byte-for-byte: EIP-712 typed-data signing, HMAC request signing, and the
// Safe contract's non-standard signature packing.
package polyclob

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nullstride/polyclob-go/chain"
)

// Side re-exports chain.OrderSide at the package boundary callers use.
type Side = chain.OrderSide

const (
	Buy  = chain.OrderSideBuy
	Sell = chain.OrderSideSell
)

// OrderType is the order's time-in-force/matching policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // good-til-cancelled, the limit-order default
	OrderTypeGTD OrderType = "GTD" // good-til-date
	OrderTypeFOK OrderType = "FOK" // fill-or-kill, the market-order default
	OrderTypeFAK OrderType = "FAK" // fill-and-kill (partial fill allowed)
)

// SignatureType re-exports chain.SignatureType.
type SignatureType = chain.SignatureType

const (
	SigEOA            = chain.SignatureTypeEOA
	SigPolyProxy      = chain.SignatureTypePolyProxy
	SigPolyGnosisSafe = chain.SignatureTypePolyGnosisSafe
)

// OperationType re-exports chain.OperationType.
type OperationType = chain.OperationType

const (
	OperationCall         = chain.OperationCall
	OperationDelegateCall = chain.OperationDelegateCall
)

// RelayerTransactionState is the lifecycle state of a submitted relayer
// transaction. CONFIRMED is the canonical success terminal; FAILED and
// INVALID are terminal failures. Callers decide which states count as
// "success" for their own poll, since some deployments treat MINED as
// sufficient.
type RelayerTransactionState string

const (
	RelayerStateNew       RelayerTransactionState = "NEW"
	RelayerStateExecuted  RelayerTransactionState = "EXECUTED"
	RelayerStateMined     RelayerTransactionState = "MINED"
	RelayerStateConfirmed RelayerTransactionState = "CONFIRMED"
	RelayerStateFailed    RelayerTransactionState = "FAILED"
	RelayerStateInvalid   RelayerTransactionState = "INVALID"
)

// UserOrder is the caller-facing input to the limit-order builder. Price and
// size are fractional decimal strings; the builder rounds and scales them
// per the tick size's RoundConfig.
type UserOrder struct {
	TokenID     string
	Price       string
	Size        string
	Side        Side
	FeeRateBps  string
	Nonce       string
	Expiration  int64  // unix seconds, 0 = none
	Taker       string // explicit counterparty for a private match, "" = public
	SignatureType SignatureType
	Maker       string // funder/wallet address; defaults to the signer's address
}

// UserMarketOrder is the caller-facing input to the market-order builder.
// Amount is quote-currency for BUY, base-currency for SELL. Price must be
// precomputed from an order-book snapshot via chain.ComputeMarketPrice.
type UserMarketOrder struct {
	TokenID       string
	Amount        string
	Price         string
	Side          Side
	OrderType     OrderType // FOK or FAK
	FeeRateBps    string
	Nonce         string
	Expiration    int64
	Taker         string
	SignatureType SignatureType
	Maker         string
}

// NewOrderSalt carries an order's salt so it can be marshaled as a bare JSON
// number (the server rejects a quoted string here). Generation is
// constrained to [0, 2^53-1] precisely so this round-trips without loss.
type NewOrderSalt struct {
	Value string // decimal string form, as produced by chain.GenerateSalt
}

// MarshalJSON emits the salt as a JSON number literal, not a string.
func (s NewOrderSalt) MarshalJSON() ([]byte, error) {
	if s.Value == "" {
		return []byte("0"), nil
	}
	return []byte(s.Value), nil
}

// UnmarshalJSON accepts either a JSON number or a JSON string, storing the
// literal digits either way.
func (s *NewOrderSalt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(data, `"`)
	s.Value = string(trimmed)
	return nil
}

// WireOrder is the JSON shape of a signed order as sent to the CLOB, with
// salt re-serialized as a number per NewOrderSalt.
type WireOrder struct {
	Salt          NewOrderSalt `json:"salt"`
	Maker         string       `json:"maker"`
	Signer        string       `json:"signer"`
	Taker         string       `json:"taker"`
	TokenID       string       `json:"tokenId"`
	MakerAmount   string       `json:"makerAmount"`
	TakerAmount   string       `json:"takerAmount"`
	Expiration    string       `json:"expiration"`
	Nonce         string       `json:"nonce"`
	FeeRateBps    string       `json:"feeRateBps"`
	Side          string       `json:"side"`
	SignatureType int          `json:"signatureType"`
	Signature     string       `json:"signature"`
}

// ToWireOrder converts a signed chain order into its wire representation.
func ToWireOrder(so *chain.SignedOrder) WireOrder {
	return WireOrder{
		Salt:          NewOrderSalt{Value: so.Order.Salt},
		Maker:         so.Order.Maker,
		Signer:        so.Order.Signer,
		Taker:         so.Order.Taker,
		TokenID:       so.Order.TokenID,
		MakerAmount:   so.Order.MakerAmount,
		TakerAmount:   so.Order.TakerAmount,
		Expiration:    so.Order.Expiration,
		Nonce:         so.Order.Nonce,
		FeeRateBps:    so.Order.FeeRateBps,
		Side:          so.Order.Side.String(),
		SignatureType: int(so.Order.SignatureType),
		Signature:     so.Signature,
	}
}

// NewOrder is the POST /order submission envelope. owner is the L2 API key,
// not the wallet address — load-bearing per the server's order-ownership
// model.
type NewOrder struct {
	Order     WireOrder `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
	DeferExec bool      `json:"deferExec"`
}

// OrderResponse is the server's response to an order submission.
// OrderHashes and TransactionsHashes alias the same field: some server
// revisions emit one name, some the other; both are populated after
// unmarshaling.
type OrderResponse struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg,omitempty"`
	OrderID            string   `json:"orderID,omitempty"`
	OrderHashes        []string `json:"-"`
	TransactionsHashes []string `json:"-"`
}

type orderResponseWire struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg,omitempty"`
	OrderID            string   `json:"orderID,omitempty"`
	OrderHashes        []string `json:"orderHashes,omitempty"`
	TransactionsHashes []string `json:"transactionsHashes,omitempty"`
}

// UnmarshalJSON merges the orderHashes/transactionsHashes aliases into both
// fields, so callers can read whichever name they expect.
func (r *OrderResponse) UnmarshalJSON(data []byte) error {
	var w orderResponseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	hashes := w.OrderHashes
	if len(hashes) == 0 {
		hashes = w.TransactionsHashes
	}
	r.Success = w.Success
	r.ErrorMsg = w.ErrorMsg
	r.OrderID = w.OrderID
	r.OrderHashes = hashes
	r.TransactionsHashes = hashes
	return nil
}

// MarshalJSON emits both alias fields so older and newer consumers of this
// client's own serialized state agree.
func (r OrderResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderResponseWire{
		Success:            r.Success,
		ErrorMsg:           r.ErrorMsg,
		OrderID:            r.OrderID,
		OrderHashes:        r.OrderHashes,
		TransactionsHashes: r.TransactionsHashes,
	})
}

// MaybeWrapped deserializes from either a bare JSON value or a
// `{"data": <value>}` wrapper, exposing the unwrapped value through Value.
// This tolerates the server's inconsistent list/singleton response shapes
// without building a type hierarchy for it.
type MaybeWrapped[T any] struct {
	Value T
}

type wrappedEnvelope[T any] struct {
	Data T `json:"data"`
}

// UnmarshalJSON first tries the bare shape; if that fails (e.g. the payload
// is an object carrying a "data" key instead of being the value itself) it
// falls back to the wrapped shape. The bare attempt rejects unknown fields
// so a `{"data": ...}` payload targeting a struct T doesn't silently decode
// into a zero-valued bare T instead of being recognized as wrapped.
func (m *MaybeWrapped[T]) UnmarshalJSON(data []byte) error {
	var bare T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bare); err == nil {
		m.Value = bare
		return nil
	}
	var wrapped wrappedEnvelope[T]
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("polyclob: response matched neither bare nor wrapped shape: %w", err)
	}
	m.Value = wrapped.Data
	return nil
}

// MarshalJSON always emits the bare shape.
func (m MaybeWrapped[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Value)
}

// ApiKeyCreds are the L2 HMAC credentials issued once a wallet has
// completed L1 login. The server's wire shape names the key field
// "apiKey"; Key is the name used at this package's boundary.
type ApiKeyCreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// BuilderCreds are the relayer's secondary attribution credentials, HMAC'd
// the same way as ApiKeyCreds but emitted under POLY_BUILDER_* headers.
type BuilderCreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// SafeTransaction is one leg of a (possibly batched) relayer execution.
type SafeTransaction = chain.SafeTransaction

// RelayerTransaction is the server's view of a submitted relayer
// transaction, as returned by GET /transaction?id=.
type RelayerTransaction struct {
	ID        string                  `json:"id"`
	State     RelayerTransactionState `json:"state"`
	TxHash    string                  `json:"transactionHash,omitempty"`
	SafeTxHash string                 `json:"safeTxHash,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// OrderBookLevel mirrors chain.OrderBookLevel for callers that only need
// the wire-facing string form; ParseOrderBookLevels converts to the
// decimal-typed form chain.ComputeMarketPrice consumes.
type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
