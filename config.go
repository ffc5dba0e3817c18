package polyclob

import "github.com/nullstride/polyclob-go/chain"

// ChainID is a supported blockchain chain id.
type ChainID int64

const (
	ChainIDPolygon ChainID = 137
	ChainIDAmoy    ChainID = 80002 // testnet
)

// SupportedChainIDs lists the chain ids the verifying-contract resolution
// table covers explicitly. Other chain ids still work: chain.ResolveExchangeAddress
// falls back to the production exchange address per spec.
var SupportedChainIDs = []ChainID{ChainIDPolygon, ChainIDAmoy}

// ClobConfig configures a Client.
type ClobConfig struct {
	// Host is the CLOB REST base URL, e.g. "https://clob.example.com".
	Host string
	// ChainID selects the verifying-contract resolution table and is
	// embedded in every EIP-712 domain this client builds.
	ChainID ChainID
	// Signer, if set, enables L1 login and order signing
	// (create_order/post_signed_order). Nil is valid for a client that
	// only performs public reads.
	Signer chain.TypedDataSigner
	// SignerAddress is required alongside Signer; kept separate because
	// TypedDataSigner doesn't itself expose an address.
	SignerAddress string
	// L2Creds, if set, enables L2-authenticated operations
	// (post_signed_order, cancel*, get_order, private data endpoints).
	L2Creds *ApiKeyCreds
	// Requester overrides the HTTP transport. Defaults to a
	// net/http-based implementation with a 30s timeout.
	Requester Requester
	// UseServerTime, when true, resolves the timestamp used for L2
	// headers from GET /time instead of the local clock.
	UseServerTime bool
}

// RelayerConfig configures a RelayerClient.
type RelayerConfig struct {
	// Host is the relayer REST base URL.
	Host string
	// ChainID selects the Safe domain's chainId field.
	ChainID ChainID
	// Signer must support both digest and personal-message signing: the
	// three Safe signature modes need both capabilities.
	Signer chain.SafeSigner
	// SignerAddress is the EOA address corresponding to Signer.
	SignerAddress string
	// BuilderCreds sign the relayer's submit and transaction-query calls
	// with Builder-HMAC headers; GetNonce and IsDeployed are sent without
	// them.
	BuilderCreds BuilderCreds
	// SafeFactory and SafeMultiSend override the published constants;
	// zero values fall back to chain.SafeFactoryAddress/SafeMultiSendAddress.
	SafeFactory   string
	SafeMultiSend string
	// SafeAddress, if set, is used directly instead of the CREATE2
	// derivation from SignerAddress.
	SafeAddress string
	// InitialSigMode is the first signature mode attempted. Defaults to
	// chain.Eip191Digest. Overridden by the RELAYER_SIG_MODE env var
	// when it is auto, digest, eip191_digest or structhash ("auto" selects
	// chain.Eip191Digest).
	InitialSigMode chain.SignatureMode
	// Requester overrides the HTTP transport.
	Requester Requester
}
