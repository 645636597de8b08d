// Package evm implements the EVM-side signing for both settlement paths: the
// EIP-3009 TransferWithAuthorization used by the exact scheme and the Permit2
// PermitWitnessTransferFrom used by the escrow scheme.
package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the EIP-55 checksummed form of an address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// IsHexAddress reports whether s is a well-formed 20-byte hex address.
func IsHexAddress(s string) bool {
	return common.IsHexAddress(s)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// CreateNonce returns a random 32-byte nonce as a 0x-prefixed hex string,
// as required by EIP-3009.
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(nonce), nil
}

// CreatePermit2Nonce returns a random uint256 nonce as a decimal string.
// Permit2 nonces are unordered; any unused value is acceptable.
func CreatePermit2Nonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return new(big.Int).SetBytes(buf).String(), nil
}

// CreateValidityWindow returns validAfter/validBefore bounds for an exact
// authorization: valid immediately, expiring after the given duration.
func CreateValidityWindow(validity time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	return big.NewInt(0), big.NewInt(now + int64(validity.Seconds()))
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes a 0x-prefixed hex string.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// MaxUint256 returns 2^256-1, used for unlimited ERC-20 approvals.
func MaxUint256() *big.Int {
	one := big.NewInt(1)
	return new(big.Int).Sub(new(big.Int).Lsh(one, 256), one)
}
