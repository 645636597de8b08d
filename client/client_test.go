package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// Well-known throwaway development key.
const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigner(t *testing.T) evm.Signer {
	t.Helper()
	signer, err := evm.NewPrivateKeySigner(testPrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func challengeBody() tips.PaymentRequired {
	return tips.PaymentRequired{
		ProtocolVersion: tips.ProtocolVersion,
		Error:           "payment required",
		Resource:        &tips.ResourceInfo{URL: "https://tips.example/api/tip?to=0xabc&amount=1.50"},
		Accepts: []tips.PaymentRequirements{{
			Scheme:            tips.SchemeExact,
			Network:           "eip155:8453",
			Asset:             usdcAddress,
			Amount:            "1500000",
			PayTo:             "0x857b06519E91e3A54538791bDbb0E22373e36b66",
			MaxTimeoutSeconds: 300,
			Extra:             map[string]interface{}{"name": "USD Coin", "version": "2"},
		}},
	}
}

func TestSendTip(t *testing.T) {
	var sawPayload *tips.PaymentPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(tips.HeaderPaymentSignature)
		if header == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(challengeBody())
			return
		}

		payload, err := tips.DecodePaymentHeader(header)
		if err != nil {
			t.Errorf("server could not decode payment header: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sawPayload = payload

		result := tips.PaymentResult{
			Success:     true,
			Transaction: "0xsettled",
			Network:     payload.Accepted.Network,
			Payer:       payload.Accepted.PayTo,
		}
		if encoded, err := tips.EncodeResultHeader(result); err == nil {
			w.Header().Set(tips.HeaderPaymentResponse, encoded)
		}
		json.NewEncoder(w).Encode(result)
	}))
	defer server.Close()

	payer := New(testSigner(t))
	result, err := payer.SendTip(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("SendTip failed: %v", err)
	}
	if !result.Success || result.Transaction != "0xsettled" {
		t.Errorf("unexpected result: %+v", result)
	}

	if sawPayload == nil {
		t.Fatal("server never received the signed payload")
	}
	if sawPayload.ProtocolVersion != tips.ProtocolVersion {
		t.Errorf("payload protocol version = %d", sawPayload.ProtocolVersion)
	}
	if sawPayload.Accepted.Scheme != tips.SchemeExact {
		t.Errorf("accepted scheme = %s", sawPayload.Accepted.Scheme)
	}
	if sawPayload.Resource == nil {
		t.Error("resource descriptor was not echoed back")
	}
	if sig, _ := sawPayload.Payload["signature"].(string); len(sig) < 4 {
		t.Errorf("payload carries no signature: %+v", sawPayload.Payload)
	}
}

func TestSendTipRefusesWithoutChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := New(testSigner(t)).SendTip(t.Context(), server.URL); err == nil {
		t.Error("expected error when the server never challenges")
	}
}

func TestCreatePayloadCanceledIsUserRejection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payer := New(testSigner(t))
	_, err := payer.CreatePayload(ctx, challengeBody().Accepts, nil)
	if err == nil {
		t.Fatal("expected error from canceled signing")
	}
	if code := tips.ErrorCode(err); code != tips.ErrCodeUserRejected {
		t.Errorf("code = %s, want %s", code, tips.ErrCodeUserRejected)
	}
}

// fakeReader answers the ERC-20 allowance read with a fixed value.
type fakeReader struct {
	allowance *big.Int
}

func (f *fakeReader) ReadContract(context.Context, string, []byte, string, ...interface{}) (interface{}, error) {
	return f.allowance, nil
}

func escrowAccepts() []tips.PaymentRequirements {
	return []tips.PaymentRequirements{{
		Scheme:            tips.SchemeEscrow,
		Network:           "eip155:8453",
		Asset:             usdcAddress,
		Amount:            "1500000",
		PayTo:             "0x857b06519E91e3A54538791bDbb0E22373e36b66",
		MaxTimeoutSeconds: 300,
		Extra: map[string]interface{}{
			"swapData": tips.SwapData{
				InputToken:     wethAddress,
				OutputToken:    usdcAddress,
				OutputAmount:   "1500000",
				MaxInputAmount: "500000000000000000",
				CallData:       "0xdeadbeef",
			}.ToMap(),
			"escrowContract": "0x1111111111111111111111111111111111111111",
		},
	}}
}

func TestCreatePayloadAllowanceGate(t *testing.T) {
	short := &fakeReader{allowance: big.NewInt(1)}
	payer := New(testSigner(t), WithContractReader(short))

	_, err := payer.CreatePayload(t.Context(), escrowAccepts(), nil)
	if err == nil {
		t.Fatal("expected allowance error")
	}
	if code := tips.ErrorCode(err); code != tips.ErrCodeAllowanceRequired {
		t.Errorf("code = %s, want %s", code, tips.ErrCodeAllowanceRequired)
	}

	var pe *tips.PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PaymentError, got %T", err)
	}
	if pe.Details["spender"] != evm.PERMIT2Address {
		t.Errorf("details should name the Permit2 spender: %+v", pe.Details)
	}
	callData, _ := pe.Details["approvalCallData"].(string)
	if !strings.HasPrefix(callData, "0x095ea7b3") {
		t.Errorf("details should carry approve calldata, got %q", callData)
	}

	// Sufficient allowance passes the gate and signs.
	enough := &fakeReader{allowance: new(big.Int).Lsh(big.NewInt(1), 128)}
	payer = New(testSigner(t), WithContractReader(enough))
	payload, err := payer.CreatePayload(t.Context(), escrowAccepts(), nil)
	if err != nil {
		t.Fatalf("CreatePayload failed: %v", err)
	}
	if payload.Accepted.Scheme != tips.SchemeEscrow {
		t.Errorf("accepted scheme = %s", payload.Accepted.Scheme)
	}
}

func TestCreatePayloadUnmatchedToken(t *testing.T) {
	payer := New(testSigner(t), WithToken(wethAddress))
	_, err := payer.CreatePayload(t.Context(), challengeBody().Accepts, nil)
	if err == nil {
		t.Fatal("expected error for unmatched token")
	}
	if code := tips.ErrorCode(err); code != tips.ErrCodeNoMatchingOption {
		t.Errorf("code = %s, want %s", code, tips.ErrCodeNoMatchingOption)
	}
}
