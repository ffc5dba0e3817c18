package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LoginMessageLiteral is the fixed message signed for CLOB L1 login.
const LoginMessageLiteral = "This message attests that I control the given wallet"

// Domain is a general EIP-712 domain separator. Unlike a single hardcoded
// schema, fields are optional: which ones are set determines the domain's
// type string, matching the asymmetry this system's four schemas require
// (the login domain has no verifyingContract; the Safe domains have no
// name/version).
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract *common.Address
}

// TypeString returns the EIP-712 type string for this domain, including
// only the fields that are actually set, in the canonical
// name/version/chainId/verifyingContract order.
func (d Domain) TypeString() string {
	var parts []string
	if d.Name != "" {
		parts = append(parts, "string name")
	}
	if d.Version != "" {
		parts = append(parts, "string version")
	}
	if d.ChainID != nil {
		parts = append(parts, "uint256 chainId")
	}
	if d.VerifyingContract != nil {
		parts = append(parts, "address verifyingContract")
	}
	return "EIP712Domain(" + strings.Join(parts, ",") + ")"
}

// Hash computes the domain separator: keccak256 of the ABI-packed
// (typeHash, field1, ..., fieldN) for the fields that are set.
func (d Domain) Hash() common.Hash {
	typeHash := crypto.Keccak256Hash([]byte(d.TypeString()))
	var fields []structField
	if d.Name != "" {
		fields = append(fields, BytesField([]byte(d.Name)))
	}
	if d.Version != "" {
		fields = append(fields, BytesField([]byte(d.Version)))
	}
	if d.ChainID != nil {
		fields = append(fields, Uint256(d.ChainID))
	}
	if d.VerifyingContract != nil {
		fields = append(fields, AddressField(*d.VerifyingContract))
	}
	h, err := EncodeStructHash(typeHash, fields...)
	if err != nil {
		// Domain fields are always well-typed constants at call sites;
		// a failure here means a programming error, not bad input.
		panic("eip712: domain hash encoding: " + err.Error())
	}
	return h
}

// LoginDomain builds the CLOB L1-auth domain. It deliberately has no
// verifyingContract and its `types` section (constructed by callers) must
// omit any EIP712Domain entry — including one changes the primary-type
// hashing in some libraries and the server rejects the signature.
func LoginDomain(chainID *big.Int) Domain {
	return Domain{Name: "ClobAuthDomain", Version: "1", ChainID: chainID}
}

// OrderDomain builds the exchange order-signing domain.
func OrderDomain(chainID *big.Int, verifyingContract common.Address) Domain {
	return Domain{Name: "Polymarket CTF Exchange", Version: "1", ChainID: chainID, VerifyingContract: &verifyingContract}
}

// SafeDomain builds the domain used for both Safe-tx and Safe-create
// signing: chainId + verifyingContract only, no name/version.
func SafeDomain(chainID *big.Int, verifyingContract common.Address) Domain {
	return Domain{ChainID: chainID, VerifyingContract: &verifyingContract}
}

// Pre-computed primary type hashes for the four schemas.
var (
	loginTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)",
	))
	safeTxTypeHash = crypto.Keccak256Hash([]byte(
		"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)",
	))
	safeCreateTypeHash = crypto.Keccak256Hash([]byte(
		"SafeCreate(address owner,address paymentToken,uint256 payment,address paymentReceiver,uint256 nonce)",
	))
)

// LoginMessage is the struct signed for CLOB L1 authentication.
type LoginMessage struct {
	Address   common.Address
	Timestamp string
	Nonce     uint64
	Message   string
}

// Hash computes the ClobAuth struct hash.
func (m LoginMessage) Hash() (common.Hash, error) {
	return EncodeStructHash(loginTypeHash,
		AddressField(m.Address),
		BytesField([]byte(m.Timestamp)),
		Uint256(new(big.Int).SetUint64(m.Nonce)),
		BytesField([]byte(m.Message)),
	)
}

// OrderMessage is the struct signed for order placement.
type OrderMessage struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// Hash computes the Order struct hash.
func (m OrderMessage) Hash() (common.Hash, error) {
	return EncodeStructHash(orderTypeHash,
		Uint256(m.Salt),
		AddressField(m.Maker),
		AddressField(m.Signer),
		AddressField(m.Taker),
		Uint256(m.TokenID),
		Uint256(m.MakerAmount),
		Uint256(m.TakerAmount),
		Uint256(m.Expiration),
		Uint256(m.Nonce),
		Uint256(m.FeeRateBps),
		Uint8Field(m.Side),
		Uint8Field(m.SignatureType),
	)
}

// SafeTxMessage is the struct signed to authorize a Safe transaction. Gas
// fields and the refund receiver are always zero: this builder never
// delegates gas sponsorship to the Safe contract itself, the relayer covers
// that out of band.
type SafeTxMessage struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// Hash computes the SafeTx struct hash.
func (m SafeTxMessage) Hash() (common.Hash, error) {
	zero := big.NewInt(0)
	gas := func(v *big.Int) *big.Int {
		if v == nil {
			return zero
		}
		return v
	}
	return EncodeStructHash(safeTxTypeHash,
		AddressField(m.To),
		Uint256(m.Value),
		BytesField(m.Data),
		Uint8Field(m.Operation),
		Uint256(gas(m.SafeTxGas)),
		Uint256(gas(m.BaseGas)),
		Uint256(gas(m.GasPrice)),
		AddressField(m.GasToken),
		AddressField(m.RefundReceiver),
		Uint256(m.Nonce),
	)
}

// SafeCreateMessage is the struct signed to authorize proxy deployment.
type SafeCreateMessage struct {
	Owner           common.Address
	PaymentToken    common.Address
	Payment         *big.Int
	PaymentReceiver common.Address
	Nonce           *big.Int
}

// Hash computes the SafeCreate struct hash.
func (m SafeCreateMessage) Hash() (common.Hash, error) {
	payment := m.Payment
	if payment == nil {
		payment = big.NewInt(0)
	}
	nonce := m.Nonce
	if nonce == nil {
		nonce = big.NewInt(0)
	}
	return EncodeStructHash(safeCreateTypeHash,
		AddressField(m.Owner),
		AddressField(m.PaymentToken),
		Uint256(payment),
		AddressField(m.PaymentReceiver),
		Uint256(nonce),
	)
}

// Digest assembles the final EIP-712 signing digest:
// keccak256(0x19 01 ‖ domainSeparator ‖ structHash).
func Digest(domainSeparator, structHash common.Hash) common.Hash {
	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, structHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}

// SignOrderTypedData builds the order digest under the given domain and
// signs it with s, returning the 65-byte signature hex string.
func SignOrderTypedData(s TypedDataSigner, domain Domain, msg OrderMessage) (string, error) {
	structHash, err := msg.Hash()
	if err != nil {
		return "", fmt.Errorf("order struct hash: %w", err)
	}
	digest := Digest(domain.Hash(), structHash)
	sig, err := s.SignTypedData(digest.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign order digest: %w", err)
	}
	return sig.HexString(), nil
}

// SignLoginTypedData builds the L1-auth digest and signs it with s.
func SignLoginTypedData(s TypedDataSigner, domain Domain, msg LoginMessage) (string, error) {
	structHash, err := msg.Hash()
	if err != nil {
		return "", fmt.Errorf("login struct hash: %w", err)
	}
	digest := Digest(domain.Hash(), structHash)
	sig, err := s.SignTypedData(digest.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign login digest: %w", err)
	}
	return sig.HexString(), nil
}
