package polyclob

import (
	"encoding/hex"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nullstride/polyclob-go/chain"
	"github.com/rs/zerolog/log"
)

// RelayerClient submits Safe meta-transactions through a relayer and polls
// submitted transactions to a terminal state. Submissions and transaction
// queries carry Builder-HMAC headers; GetNonce and IsDeployed are sent
// without authentication headers.
type RelayerClient struct {
	cfg       RelayerConfig
	requester Requester
	sigMode   chain.SignatureMode
}

// NewRelayerClient builds a RelayerClient from cfg. InitialSigMode defaults
// to chain.Eip191Digest when unset; the RELAYER_SIG_MODE environment
// variable (auto|digest|eip191_digest|structhash) overrides it when it
// names one of those four values. "auto" and "eip191_digest" both resolve
// to chain.Eip191Digest, the rotation's starting mode.
func NewRelayerClient(cfg RelayerConfig) *RelayerClient {
	req := cfg.Requester
	if req == nil {
		req = NewHTTPRequester()
	}
	mode := cfg.InitialSigMode
	if envMode, ok := sigModeFromEnv(os.Getenv("RELAYER_SIG_MODE")); ok {
		mode = envMode
	}
	return &RelayerClient{cfg: cfg, requester: req, sigMode: mode}
}

// sigModeFromEnv maps the RELAYER_SIG_MODE values to a chain.SignatureMode.
func sigModeFromEnv(v string) (chain.SignatureMode, bool) {
	switch v {
	case "auto", "eip191_digest":
		return chain.Eip191Digest, true
	case "digest":
		return chain.Eip712Digest, true
	case "structhash":
		return chain.Eip191StructHash, true
	default:
		return 0, false
	}
}

func (c *RelayerClient) url(path string) string {
	return c.cfg.Host + path
}

func (c *RelayerClient) safeFactory() common.Address {
	if c.cfg.SafeFactory != "" {
		return common.HexToAddress(c.cfg.SafeFactory)
	}
	return chain.SafeFactoryAddress
}

func (c *RelayerClient) safeMultiSend() common.Address {
	if c.cfg.SafeMultiSend != "" {
		return common.HexToAddress(c.cfg.SafeMultiSend)
	}
	return chain.SafeMultiSendAddress
}

// safeAddress returns the explicit override if configured, else the CREATE2
// derivation from the signing EOA and the configured Safe factory.
func (c *RelayerClient) safeAddress() (common.Address, error) {
	if c.cfg.SafeAddress != "" {
		return common.HexToAddress(c.cfg.SafeAddress), nil
	}
	owner := common.HexToAddress(c.cfg.SignerAddress)
	return chain.DeriveSafeAddress(owner, c.safeFactory(), chain.SafeInitCodeHash)
}

// builderRequest issues a Builder-HMAC-authenticated request. path is both
// the URL path and the exact string the HMAC signs (no query string).
func (c *RelayerClient) builderRequest(method, path string, params map[string]string, body interface{}) (Response, error) {
	bodyStr, err := bodyForHMAC(body)
	if err != nil {
		return Response{}, wrapError(KindInvalidInput, err, "build request body")
	}
	headers, err := BuildBuilderHeaders(c.cfg.BuilderCreds, method, path, bodyStr, 0, func() int64 { return time.Now().Unix() })
	if err != nil {
		return Response{}, err
	}
	resp, err := c.requester.Do(Request{Method: method, URL: c.url(path), Headers: headers, Params: params, Body: body})
	if err != nil {
		return Response{}, wrapError(KindTransport, err, "%s %s", method, path)
	}
	if err := checkStatus(resp); err != nil {
		if isInvalidSignatureBody(resp.Body) {
			return resp, &Error{Kind: KindInvalidSignature, Message: "relayer rejected signature", Status: resp.Status, Body: string(resp.Body)}
		}
		return resp, err
	}
	return resp, nil
}

// isInvalidSignatureBody reports whether a non-2xx body matches the
// relayer's "invalid signature"/"validation error" rejection text.
func isInvalidSignatureBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "invalid signature") || strings.Contains(s, "validation error")
}

// GetNonce fetches the relayer nonce for address typed "SAFE" via GET
// /nonce?address=&type=SAFE. Per the prevailing relayer behaviour, the
// signing EOA's own address is used here even when submissions target a
// separate Safe address.
func (c *RelayerClient) GetNonce(address string) (*big.Int, error) {
	resp, err := c.requester.Do(Request{
		Method: "GET",
		URL:    c.url("/nonce"),
		Params: map[string]string{"address": address, "type": "SAFE"},
	})
	if err != nil {
		return nil, wrapError(KindTransport, err, "GET /nonce")
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	nonce, ok := new(big.Int).SetString(out.Nonce, 10)
	if !ok {
		return nil, newError(KindTransport, "unparsable nonce %q", out.Nonce)
	}
	return nonce, nil
}

// IsDeployed reports whether address is a deployed Safe via GET
// /deployed?address=.
func (c *RelayerClient) IsDeployed(address string) (bool, error) {
	resp, err := c.requester.Do(Request{
		Method: "GET",
		URL:    c.url("/deployed"),
		Params: map[string]string{"address": address},
	})
	if err != nil {
		return false, wrapError(KindTransport, err, "GET /deployed")
	}
	if err := checkStatus(resp); err != nil {
		return false, err
	}
	var out struct {
		Deployed bool `json:"deployed"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return false, err
	}
	return out.Deployed, nil
}

// signatureParams is the relayer's auxiliary field block, carrying either
// the zeroed gas/operation fields of a SAFE submission or the zeroed
// payment fields of a SAFE-CREATE submission.
type signatureParams struct {
	GasPrice        string `json:"gasPrice,omitempty"`
	Operation       string `json:"operation,omitempty"`
	SafeTxnGas      string `json:"safeTxnGas,omitempty"`
	BaseGas         string `json:"baseGas,omitempty"`
	GasToken        string `json:"gasToken,omitempty"`
	RefundReceiver  string `json:"refundReceiver,omitempty"`
	PaymentToken    string `json:"paymentToken,omitempty"`
	Payment         string `json:"payment,omitempty"`
	PaymentReceiver string `json:"paymentReceiver,omitempty"`
}

// transactionRequest is the POST /submit body for both SAFE and SAFE-CREATE
// transaction types.
type transactionRequest struct {
	Type            string          `json:"type"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	ProxyWallet     string          `json:"proxyWallet,omitempty"`
	Data            string          `json:"data"`
	Nonce           string          `json:"nonce,omitempty"`
	Signature       string          `json:"signature"`
	SignatureParams signatureParams `json:"signatureParams"`
	Metadata        string          `json:"metadata,omitempty"`
}

// relayerTransactionWire is the server's representation of one submitted
// transaction, as returned by both POST /submit and GET /transaction?id=.
type relayerTransactionWire struct {
	TransactionID   string `json:"transaction_id"`
	TransactionHash string `json:"transaction_hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ProxyAddress    string `json:"proxy_address"`
	Nonce           string `json:"nonce"`
	Value           string `json:"value"`
	State           string `json:"state"`
	Type            string `json:"type"`
}

func (w relayerTransactionWire) toModel() RelayerTransaction {
	return RelayerTransaction{
		ID:     w.TransactionID,
		State:  RelayerTransactionState(w.State),
		TxHash: w.TransactionHash,
	}
}

// Execute aggregates txs (via MultiSend when there's more than one) and
// submits them through the Safe path, rotating signature modes up to three
// attempts on an "invalid signature"/"validation error" rejection. metadata
// is an opaque caller-supplied string the relayer stores alongside the
// transaction.
func (c *RelayerClient) Execute(txs []chain.SafeTransaction, metadata string) (*RelayerTransaction, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "execute requires a signer")
	}
	if len(txs) == 0 {
		return nil, newError(KindInvalidInput, "no transactions to execute")
	}

	nonce, err := c.GetNonce(c.cfg.SignerAddress)
	if err != nil {
		return nil, err
	}
	aggregated, err := chain.AggregateTransactions(txs, c.safeMultiSend())
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "aggregate transactions")
	}
	safeAddr, err := c.safeAddress()
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "resolve safe address")
	}

	modes := signatureModeAttempts(c.sigMode)
	var lastErr error
	for attempt, mode := range modes {
		req, err := c.buildSafeTransactionRequest(aggregated, safeAddr, nonce, mode, metadata)
		if err != nil {
			return nil, err
		}
		resp, err := c.builderRequest("POST", "/submit", nil, req)
		if err == nil {
			var wire relayerTransactionWire
			if err := decodeJSON(resp, &wire); err != nil {
				return nil, err
			}
			model := wire.toModel()
			return &model, nil
		}
		lastErr = err
		if !IsKind(err, KindInvalidSignature) {
			return nil, err
		}
		log.Debug().Int("attempt", attempt+1).Str("mode", mode.String()).Msg("relayer rejected signature, rotating mode")
	}
	return nil, lastErr
}

// signatureModeAttempts returns the up-to-three-mode attempt sequence
// starting at initial and proceeding through chain.DefaultSignatureModeRotation,
// skipping the repeat of initial.
func signatureModeAttempts(initial chain.SignatureMode) []chain.SignatureMode {
	attempts := []chain.SignatureMode{initial}
	for _, m := range chain.DefaultSignatureModeRotation {
		if m == initial {
			continue
		}
		attempts = append(attempts, m)
	}
	return attempts[:3]
}

func (c *RelayerClient) buildSafeTransactionRequest(tx chain.SafeTransaction, safeAddr common.Address, nonce *big.Int, mode chain.SignatureMode, metadata string) (*transactionRequest, error) {
	sig, _, _, err := chain.SignSafeTransaction(c.cfg.Signer, chainIDBig(c.cfg.ChainID), safeAddr, tx, nonce, mode)
	if err != nil {
		return nil, wrapError(KindInvalidSignature, err, "sign safe transaction")
	}

	zero := "0x0000000000000000000000000000000000000000"
	return &transactionRequest{
		Type:        "SAFE",
		From:        c.cfg.SignerAddress,
		To:          tx.To,
		ProxyWallet: safeAddr.Hex(),
		Data:        "0x" + hex.EncodeToString(tx.Data),
		Nonce:       nonce.String(),
		Signature:   sig,
		SignatureParams: signatureParams{
			GasPrice:       "0",
			Operation:      strconv.Itoa(int(tx.Operation)),
			SafeTxnGas:     "0",
			BaseGas:        "0",
			GasToken:       zero,
			RefundReceiver: zero,
		},
		Metadata: metadata,
	}, nil
}

// Deploy submits a Safe-create transaction for the signer's derived Safe.
// Returns KindAlreadyDeployed if the Safe is already on-chain.
func (c *RelayerClient) Deploy() (*RelayerTransaction, error) {
	if c.cfg.Signer == nil {
		return nil, newError(KindMissingAuth, "deploy requires a signer")
	}
	safeAddr, err := c.safeAddress()
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "resolve safe address")
	}
	deployed, err := c.IsDeployed(safeAddr.Hex())
	if err != nil {
		return nil, err
	}
	if deployed {
		return nil, newError(KindAlreadyDeployed, "safe %s is already deployed", safeAddr.Hex())
	}

	digest, err := chain.SafeCreateDigest(chainIDBig(c.cfg.ChainID), c.safeFactory(), common.HexToAddress(c.cfg.SignerAddress))
	if err != nil {
		return nil, wrapError(KindInvalidSignature, err, "build safe-create digest")
	}
	sig, err := c.cfg.Signer.SignDigest(digest.Bytes())
	if err != nil {
		return nil, wrapError(KindInvalidSignature, err, "sign safe-create digest")
	}
	packed := chain.PackSafeSignature(sig)

	zero := "0x0000000000000000000000000000000000000000"
	req := &transactionRequest{
		Type:        "SAFE-CREATE",
		From:        c.cfg.SignerAddress,
		To:          c.safeFactory().Hex(),
		ProxyWallet: safeAddr.Hex(),
		Data:        "0x",
		Signature:   "0x" + hex.EncodeToString(packed),
		SignatureParams: signatureParams{
			PaymentToken:    zero,
			Payment:         "0",
			PaymentReceiver: zero,
		},
	}

	resp, err := c.builderRequest("POST", "/submit", nil, req)
	if err != nil {
		return nil, err
	}
	var wire relayerTransactionWire
	if err := decodeJSON(resp, &wire); err != nil {
		return nil, err
	}
	model := wire.toModel()
	return &model, nil
}

// GetTransaction fetches a submitted transaction's current record via GET
// /transaction?id=.
func (c *RelayerClient) GetTransaction(id string) (*RelayerTransaction, error) {
	resp, err := c.builderRequest("GET", "/transaction", map[string]string{"id": id}, nil)
	if err != nil {
		return nil, err
	}
	var wires []relayerTransactionWire
	if err := decodeJSON(resp, &wires); err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, nil
	}
	model := wires[0].toModel()
	return &model, nil
}

// GetTransactions lists the authenticated account's submitted transactions
// via GET /transactions.
func (c *RelayerClient) GetTransactions() ([]RelayerTransaction, error) {
	resp, err := c.builderRequest("GET", "/transactions", nil, nil)
	if err != nil {
		return nil, err
	}
	var wires []relayerTransactionWire
	if err := decodeJSON(resp, &wires); err != nil {
		return nil, err
	}
	out := make([]RelayerTransaction, len(wires))
	for i, w := range wires {
		out[i] = w.toModel()
	}
	return out, nil
}

// PollOutcome is the three-way result of PollUntilState: exactly one of its
// fields is meaningful on any given return.
type PollOutcome struct {
	// Transaction is set on success: the record reached a state in the
	// caller's success set.
	Transaction *RelayerTransaction
	// Failed is true if the record reached the configured fail state.
	Failed bool
	// TimedOut is true if max_polls ticks elapsed without reaching either
	// a success or the fail state.
	TimedOut bool
}

// PollUntilState implements the polling state machine: on each tick it
// fetches the transaction record; if its state is in successStates it
// returns the record; if it equals failState it returns Failed; otherwise it
// sleeps interval and ticks again, up to maxPolls times before returning
// TimedOut. The three outcomes are always mutually exclusive and exactly
// one is set.
func (c *RelayerClient) PollUntilState(id string, successStates []RelayerTransactionState, failState *RelayerTransactionState, maxPolls int, interval time.Duration) (PollOutcome, error) {
	inSet := func(state RelayerTransactionState, set []RelayerTransactionState) bool {
		for _, s := range set {
			if s == state {
				return true
			}
		}
		return false
	}

	for tick := 0; tick < maxPolls; tick++ {
		tx, err := c.GetTransaction(id)
		if err != nil {
			return PollOutcome{}, err
		}
		if tx != nil {
			if inSet(tx.State, successStates) {
				return PollOutcome{Transaction: tx}, nil
			}
			if failState != nil && tx.State == *failState {
				return PollOutcome{Failed: true}, nil
			}
		}
		time.Sleep(interval)
	}
	return PollOutcome{TimedOut: true}, nil
}
