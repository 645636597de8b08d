package quotes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tips "github.com/Agentokratia/tips-app"
)

const (
	wethAddress  = "0x4200000000000000000000000000000000000006"
	cbbtcAddress = "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf"
)

func testEscrowContracts() map[tips.Network]EscrowContracts {
	return map[tips.Network]EscrowContracts{
		testNetwork: {
			EscrowContract: "0x1111111111111111111111111111111111111111",
			TokenCollector: "0x2222222222222222222222222222222222222222",
			Facilitator:    "0x3333333333333333333333333333333333333333",
		},
	}
}

func newTestEscrowSource(baseURL string, tokens []InputToken) *EscrowSource {
	return NewEscrowSource(EscrowConfig{
		BaseURL:     baseURL,
		InputTokens: map[tips.Network][]InputToken{testNetwork: tokens},
		Contracts:   testEscrowContracts(),
	})
}

func TestEscrowSourceBuildsQuotePerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputToken := r.URL.Query().Get("inputToken")
		if r.URL.Query().Get("outputAmount") != "1500000" {
			t.Errorf("unexpected outputAmount: %s", r.URL.Query().Get("outputAmount"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputToken":     inputToken,
			"outputToken":    r.URL.Query().Get("outputToken"),
			"outputAmount":   "1500000",
			"maxInputAmount": "999999999",
			"aggregator":     "test-agg",
			"callData":       "0x12aa3caf" + strings.Repeat("00", 512),
		})
	}))
	defer server.Close()

	source := newTestEscrowSource(server.URL, []InputToken{
		{Address: wethAddress, Symbol: "WETH", Decimals: 18},
		{Address: cbbtcAddress, Symbol: "cbBTC", Decimals: 8},
	})

	accepts, err := source.Build(t.Context(), testTipRequest(t))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(accepts) != 2 {
		t.Fatalf("expected one requirement per token, got %d", len(accepts))
	}

	// Token order is stable regardless of quote completion order.
	first := tips.SwapDataFromExtra(accepts[0].Extra)
	second := tips.SwapDataFromExtra(accepts[1].Extra)
	if first == nil || second == nil {
		t.Fatal("requirements missing swap data")
	}
	if first.InputToken != wethAddress || second.InputToken != cbbtcAddress {
		t.Errorf("token order not preserved: %s, %s", first.InputToken, second.InputToken)
	}

	if !tips.IsCompressedCallData(first.CallData) {
		t.Error("swap calldata was not compressed for the header")
	}
	if accepts[0].Extra["escrowContract"] != "0x1111111111111111111111111111111111111111" {
		t.Errorf("escrow contract missing from extra: %+v", accepts[0].Extra)
	}
	for _, key := range []string{"tokenCollector", "facilitator"} {
		if addr, _ := accepts[0].Extra[key].(string); addr == "" {
			t.Errorf("extra missing %s: %+v", key, accepts[0].Extra)
		}
	}
}

func TestEscrowSourceNormalizesNestedPriceShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputToken":     wethAddress,
			"maxInputAmount": "500000000000000000",
			"aggregator":     "test-agg",
			"callData":       "0xdeadbeef",
			"price": map[string]string{
				"asset":  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				"amount": "1500000",
			},
		})
	}))
	defer server.Close()

	source := newTestEscrowSource(server.URL, []InputToken{{Address: wethAddress, Symbol: "WETH"}})
	accepts, err := source.Build(t.Context(), testTipRequest(t))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if accepts[0].Amount != "1500000" {
		t.Errorf("nested price amount not flattened: %s", accepts[0].Amount)
	}
}

func TestEscrowSourceToleratesPerTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.URL.Query().Get("inputToken"), cbbtcAddress) {
			http.Error(w, "no route", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputToken":     wethAddress,
			"outputAmount":   "1500000",
			"maxInputAmount": "999",
			"callData":       "0xdeadbeef",
		})
	}))
	defer server.Close()

	source := newTestEscrowSource(server.URL, []InputToken{
		{Address: wethAddress, Symbol: "WETH"},
		{Address: cbbtcAddress, Symbol: "cbBTC"},
	})

	accepts, err := source.Build(t.Context(), testTipRequest(t))
	if err != nil {
		t.Fatalf("build failed despite one good quote: %v", err)
	}
	if len(accepts) != 1 {
		t.Fatalf("expected the surviving quote only, got %d", len(accepts))
	}
}

func TestEscrowSourceFailsWhenAllQuotesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "aggregator down", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := newTestEscrowSource(server.URL, []InputToken{{Address: wethAddress, Symbol: "WETH"}})
	if _, err := source.Build(t.Context(), testTipRequest(t)); err == nil {
		t.Error("expected error when every quote fails")
	}
}

func TestEscrowSourceRequiresContracts(t *testing.T) {
	source := NewEscrowSource(EscrowConfig{
		BaseURL:     "http://unused",
		InputTokens: map[tips.Network][]InputToken{testNetwork: {{Address: wethAddress}}},
	})
	if _, err := source.Build(t.Context(), testTipRequest(t)); err == nil {
		t.Fatal("expected error without an escrow contract set")
	}

	source.SetContracts(testNetwork, testEscrowContracts()[testNetwork])
	// Now only the (unreachable) aggregator stands in the way.
	if _, err := source.Build(t.Context(), testTipRequest(t)); err == nil {
		t.Fatal("expected aggregator error")
	}
}
