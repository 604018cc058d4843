package siwe

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SigningDigest returns the EIP-191 personal_sign hash a wallet would sign for
// message, hex encoded with a 0x prefix.
func SigningDigest(message string) string {
	return hexutil.Encode(accounts.TextHash([]byte(message)))
}
