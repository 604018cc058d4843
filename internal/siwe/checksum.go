package siwe

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress reports whether s is 0x followed by 40 hex digits.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ChecksumAddress returns the EIP-55 mixed-case form of a syntactically valid
// address. It is the single checksum routine used by validation, AutoFixer and
// targeted replacement.
func ChecksumAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// ChecksumStatus classifies the letter casing of a valid address.
type ChecksumStatus int

const (
	ChecksumValid ChecksumStatus = iota
	ChecksumMissing
	ChecksumMismatch
)

// CheckChecksum compares addr to its EIP-55 form. Single-case addresses are
// ChecksumMissing; mixed-case addresses that disagree are ChecksumMismatch.
func CheckChecksum(addr string) ChecksumStatus {
	if ChecksumAddress(addr) == addr {
		return ChecksumValid
	}
	hex := addr[2:]
	if hex == strings.ToLower(hex) || hex == strings.ToUpper(hex) {
		return ChecksumMissing
	}
	return ChecksumMismatch
}

// RepairAddress tries to turn a malformed address into a valid checksummed
// one. Only cosmetic defects are repaired: surrounding whitespace, a missing
// or upper-case 0x prefix. Anything else reports false.
func RepairAddress(addr string) (string, bool) {
	s := strings.TrimSpace(addr)
	switch {
	case strings.HasPrefix(s, "0X"):
		s = "0x" + s[2:]
	case !strings.HasPrefix(s, "0x"):
		s = "0x" + s
	}
	if !IsAddress(s) {
		return "", false
	}
	return ChecksumAddress(s), true
}
