package chain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Order-builder errors.
var (
	ErrInvalidTickSize  = errors.New("chain: invalid tick size")
	ErrMakerSignerMismatch = errors.New("chain: maker/signer mismatch without funder")
	ErrUnparsableAmount = errors.New("chain: unparsable numeric field")
	ErrNoMatch          = errors.New("chain: market order cannot be filled from the given snapshot")
)

// RoundConfig is the rounding configuration for one tick size.
type RoundConfig struct {
	PriceDecimals  int32
	SizeDecimals   int32
	AmountDecimals int32
}

// TickConfigs maps each supported tick size to its rounding configuration.
var TickConfigs = map[string]RoundConfig{
	"0.1":    {PriceDecimals: 1, SizeDecimals: 2, AmountDecimals: 3},
	"0.01":   {PriceDecimals: 2, SizeDecimals: 2, AmountDecimals: 4},
	"0.001":  {PriceDecimals: 3, SizeDecimals: 2, AmountDecimals: 5},
	"0.0001": {PriceDecimals: 4, SizeDecimals: 2, AmountDecimals: 6},
}

// Chain IDs supported by the verifying-contract resolution table.
const (
	ChainIDPolygon ChainIDInt = 137
	ChainIDAmoy    ChainIDInt = 80002
)

// ChainIDInt is a plain chain id, kept distinct from *big.Int call sites.
type ChainIDInt int64

// Exchange addresses, resolved by (chainId, negRisk). Unknown chains fall
// back to the production exchange.
const (
	exchangePolygonStandard = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	exchangePolygonNegRisk  = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	exchangeAmoyStandard    = "0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"
	exchangeAmoyNegRisk     = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

// ResolveExchangeAddress implements the verifying-contract resolution table:
// (137,false)->standard, (137,true)->neg-risk, (80002,false)->testnet
// standard, (80002,true)->neg-risk, anything else falls back to the
// production standard exchange.
func ResolveExchangeAddress(chainID ChainIDInt, negRisk bool) common.Address {
	switch {
	case chainID == ChainIDPolygon && !negRisk:
		return common.HexToAddress(exchangePolygonStandard)
	case chainID == ChainIDPolygon && negRisk:
		return common.HexToAddress(exchangePolygonNegRisk)
	case chainID == ChainIDAmoy && !negRisk:
		return common.HexToAddress(exchangeAmoyStandard)
	case chainID == ChainIDAmoy && negRisk:
		return common.HexToAddress(exchangeAmoyNegRisk)
	default:
		return common.HexToAddress(exchangePolygonStandard)
	}
}

// decimalPlaces counts the number of digits after the decimal point in d's
// canonical string form, mirroring a string-split implementation rather
// than inspecting the internal exponent, so trailing zeros introduced by
// arithmetic don't distort the count.
func decimalPlaces(d decimal.Decimal) int32 {
	s := d.String()
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return int32(len(s) - idx - 1)
}

func roundNormal(d decimal.Decimal, places int32) decimal.Decimal {
	if decimalPlaces(d) <= places {
		return d
	}
	return d.Round(places)
}

func roundDown(d decimal.Decimal, places int32) decimal.Decimal {
	if decimalPlaces(d) <= places {
		return d
	}
	return d.RoundFloor(places)
}

func roundUp(d decimal.Decimal, places int32) decimal.Decimal {
	if decimalPlaces(d) <= places {
		return d
	}
	return d.RoundCeil(places)
}

// reconcile applies the spec's "round up to amountDec+4 then round down to
// amountDec" fixup whenever a computed (multiplied/divided) raw amount
// carries more decimal places than the tick's amount budget allows.
func reconcile(raw decimal.Decimal, amountDec int32) decimal.Decimal {
	if decimalPlaces(raw) > amountDec {
		raw = roundUp(raw, amountDec+4)
		raw = roundDown(raw, amountDec)
	}
	return raw
}

// RawAmounts is the pair of raw (pre-scaling) maker/taker amounts.
type RawAmounts struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// LimitOrderRawAmounts implements §4.3's limit-order raw-amount rules.
func LimitOrderRawAmounts(cfg RoundConfig, side OrderSide, price, size decimal.Decimal) RawAmounts {
	roundedPrice := roundNormal(price, cfg.PriceDecimals)
	roundedSize := roundDown(size, cfg.SizeDecimals)
	computed := reconcile(roundedSize.Mul(roundedPrice), cfg.AmountDecimals)

	if side == OrderSideSell {
		return RawAmounts{Maker: roundedSize, Taker: computed}
	}
	return RawAmounts{Maker: computed, Taker: roundedSize}
}

// MarketOrderRawAmounts implements §4.3's market-order raw-amount rules.
// amount is quote-currency for BUY, base-currency for SELL.
func MarketOrderRawAmounts(cfg RoundConfig, side OrderSide, price, amount decimal.Decimal) RawAmounts {
	roundedPrice := roundDown(price, cfg.PriceDecimals)
	roundedAmount := roundDown(amount, cfg.AmountDecimals)

	if side == OrderSideSell {
		taker := reconcile(roundedAmount.Mul(roundedPrice), cfg.AmountDecimals)
		return RawAmounts{Maker: roundedAmount, Taker: taker}
	}
	taker := reconcile(roundedAmount.Div(roundedPrice), cfg.AmountDecimals)
	return RawAmounts{Maker: roundedAmount, Taker: taker}
}

// collateralDecimals is the fixed number of base-unit decimals used to scale
// raw amounts into the integer strings the contract expects.
const collateralDecimals = 6

// ScaleToBaseUnits floors raw × 10^collateralDecimals and renders it as a
// plain integer decimal string (no leading zeros, no scientific notation).
func ScaleToBaseUnits(raw decimal.Decimal) string {
	scale := decimal.New(1, collateralDecimals)
	scaled := raw.Mul(scale).Floor()
	return scaled.String()
}

// GenerateSalt returns a cryptographically random integer uniform on
// [0, 2^53-1] so that it round-trips losslessly through a JSON number.
func GenerateSalt() (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 53) // 2^53, exclusive upper bound
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return n.String(), nil
}

// OrderBookLevel is one price/size level of an order-book snapshot.
type OrderBookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ComputeMarketPrice walks an order-book snapshot from the best level,
// accumulating size×price for BUY or size for SELL, and returns the price
// at the first level where the accumulator reaches the target amount. levels
// must already be ordered best-first by the caller. If the book is
// exhausted without reaching amount and orderType is FOK, it returns
// ErrNoMatch; otherwise it returns the best available price. An empty
// levels slice yields ErrNoMatch whether or not fok is set.
func ComputeMarketPrice(levels []OrderBookLevel, amount decimal.Decimal, side OrderSide, fok bool) (decimal.Decimal, error) {
	if len(levels) == 0 {
		return decimal.Zero, ErrNoMatch
	}

	acc := decimal.Zero
	for _, lvl := range levels {
		if side == OrderSideBuy {
			acc = acc.Add(lvl.Size.Mul(lvl.Price))
		} else {
			acc = acc.Add(lvl.Size)
		}
		if acc.GreaterThanOrEqual(amount) {
			return lvl.Price, nil
		}
	}

	if fok {
		return decimal.Zero, ErrNoMatch
	}
	return levels[0].Price, nil
}

// OrderBuilder assembles OrderData into a salted Order and signs it via the
// EIP-712 order schema.
type OrderBuilder struct {
	exchangeAddr common.Address
	chainID      *big.Int
	signer       TypedDataSigner
}

// NewOrderBuilder creates an OrderBuilder bound to one exchange contract and
// chain id, signing with s.
func NewOrderBuilder(exchangeAddr common.Address, chainID int64, s TypedDataSigner) *OrderBuilder {
	return &OrderBuilder{
		exchangeAddr: exchangeAddr,
		chainID:      big.NewInt(chainID),
		signer:       s,
	}
}

// BuildOrder validates data, generates a salt, and assembles an Order.
func (ob *OrderBuilder) BuildOrder(data *OrderData) (*Order, error) {
	if err := validateOrderData(data); err != nil {
		return nil, err
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	signer := data.Signer
	if signer == "" {
		signer = data.Maker
	}
	expiration := data.Expiration
	if expiration == "" {
		expiration = "0"
	}

	return &Order{
		Salt:          salt,
		Maker:         common.HexToAddress(data.Maker).Hex(),
		Signer:        common.HexToAddress(signer).Hex(),
		Taker:         common.HexToAddress(data.Taker).Hex(),
		TokenID:       data.TokenID,
		MakerAmount:   data.MakerAmount,
		TakerAmount:   data.TakerAmount,
		Expiration:    expiration,
		Nonce:         data.Nonce,
		FeeRateBps:    data.FeeRateBps,
		Side:          data.Side,
		SignatureType: data.SignatureType,
	}, nil
}

// BuildSignedOrder builds and signs an order under this builder's exchange
// domain.
func (ob *OrderBuilder) BuildSignedOrder(data *OrderData) (*SignedOrder, error) {
	order, err := ob.BuildOrder(data)
	if err != nil {
		return nil, err
	}

	msg, err := orderToMessage(order)
	if err != nil {
		return nil, err
	}

	domain := OrderDomain(ob.chainID, ob.exchangeAddr)
	sig, err := SignOrderTypedData(ob.signer, domain, msg)
	if err != nil {
		return nil, err
	}

	return &SignedOrder{Order: order, Signature: sig}, nil
}

func validateOrderData(data *OrderData) error {
	if data.Maker == "" {
		return fmt.Errorf("%w: maker is required", ErrUnparsableAmount)
	}
	if data.TokenID == "" {
		return fmt.Errorf("%w: tokenId is required", ErrUnparsableAmount)
	}
	if data.MakerAmount == "" || data.TakerAmount == "" {
		return fmt.Errorf("%w: maker/taker amount is required", ErrUnparsableAmount)
	}
	if data.Side != OrderSideBuy && data.Side != OrderSideSell {
		return fmt.Errorf("%w: invalid side", ErrUnparsableAmount)
	}
	if data.Signer != "" && data.SignatureType == SignatureTypeEOA &&
		!strings.EqualFold(data.Signer, data.Maker) {
		return ErrMakerSignerMismatch
	}
	return nil
}

func orderToMessage(order *Order) (OrderMessage, error) {
	parse := func(s string) (*big.Int, error) {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnparsableAmount, s)
		}
		return v, nil
	}

	salt, err := parse(order.Salt)
	if err != nil {
		return OrderMessage{}, err
	}
	tokenID, err := parse(order.TokenID)
	if err != nil {
		return OrderMessage{}, err
	}
	makerAmount, err := parse(order.MakerAmount)
	if err != nil {
		return OrderMessage{}, err
	}
	takerAmount, err := parse(order.TakerAmount)
	if err != nil {
		return OrderMessage{}, err
	}
	expiration, ok := new(big.Int).SetString(order.Expiration, 10)
	if !ok {
		expiration = big.NewInt(0)
	}
	nonce, ok := new(big.Int).SetString(order.Nonce, 10)
	if !ok {
		nonce = big.NewInt(0)
	}
	feeRateBps, ok := new(big.Int).SetString(order.FeeRateBps, 10)
	if !ok {
		feeRateBps = big.NewInt(0)
	}

	return OrderMessage{
		Salt:          salt,
		Maker:         common.HexToAddress(order.Maker),
		Signer:        common.HexToAddress(order.Signer),
		Taker:         common.HexToAddress(order.Taker),
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expiration,
		Nonce:         nonce,
		FeeRateBps:    feeRateBps,
		Side:          order.Side.Uint8(),
		SignatureType: uint8(order.SignatureType),
	}, nil
}
