package polyclob

import "github.com/ethereum/go-ethereum/common"

// testHexKey is a fixed, non-production secp256k1 private key shared across
// this package's tests so signatures are reproducible.
const testHexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func commonAddr(hexAddr string) common.Address {
	return common.HexToAddress(hexAddr)
}

func fromHex(hexStr string) []byte {
	return common.FromHex(hexStr)
}
