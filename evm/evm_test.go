package evm

import (
	"math/big"
	"strings"
	"testing"
	"time"
)

func TestNormalizeAddress(t *testing.T) {
	lower := "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	want := "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	if got := NormalizeAddress(lower); got != want {
		t.Errorf("NormalizeAddress(%s) = %s, want %s", lower, got, want)
	}
}

func TestSameAddress(t *testing.T) {
	if !SameAddress("0xABCdef0000000000000000000000000000000001", "0xabcDEF0000000000000000000000000000000001") {
		t.Error("case difference should not break address equality")
	}
	if SameAddress("0x0000000000000000000000000000000000000001", "0x0000000000000000000000000000000000000002") {
		t.Error("different addresses compared equal")
	}
}

func TestCreateNonce(t *testing.T) {
	nonce, err := CreateNonce()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(nonce, "0x") || len(nonce) != 66 {
		t.Errorf("nonce %q is not 32 bytes of hex", nonce)
	}

	other, err := CreateNonce()
	if err != nil {
		t.Fatal(err)
	}
	if nonce == other {
		t.Error("nonces must not repeat")
	}
}

func TestCreatePermit2Nonce(t *testing.T) {
	nonce, err := CreatePermit2Nonce()
	if err != nil {
		t.Fatal(err)
	}
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		t.Fatalf("nonce %q is not a decimal integer", nonce)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		t.Errorf("nonce %s out of uint256 range", nonce)
	}
}

func TestCreateValidityWindow(t *testing.T) {
	validAfter, validBefore := CreateValidityWindow(time.Hour)

	now := big.NewInt(time.Now().Unix())
	if validAfter.Cmp(now) >= 0 {
		t.Error("validAfter should be backdated against clock skew")
	}
	if validBefore.Cmp(now) <= 0 {
		t.Error("validBefore must be in the future")
	}
	window := new(big.Int).Sub(validBefore, validAfter)
	if window.Int64() < 3600 {
		t.Errorf("window too short: %s seconds", window)
	}
}

func TestGetNetworkConfig(t *testing.T) {
	config, ok := GetNetworkConfig("eip155:8453")
	if !ok {
		t.Fatal("base mainnet should be configured")
	}
	if config.ChainID.Int64() != 8453 {
		t.Errorf("chain id = %s", config.ChainID)
	}
	if config.USDC.Address != "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" {
		t.Errorf("unexpected USDC address: %s", config.USDC.Address)
	}

	if _, ok := GetNetworkConfig("eip155:1"); ok {
		t.Error("unconfigured network should not resolve")
	}
	if IsSupportedNetwork("eip155:84532") != true {
		t.Error("base sepolia should be supported")
	}
}
