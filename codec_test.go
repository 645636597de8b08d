package tips

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestRequirementsHeaderRoundTrip(t *testing.T) {
	accepts := []PaymentRequirements{
		{
			Scheme:            SchemeExact,
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Amount:            "1500000",
			PayTo:             "0x857b06519E91e3A54538791bDbb0E22373e36b66",
			MaxTimeoutSeconds: 300,
		},
		{
			Scheme:  SchemeEscrow,
			Network: "eip155:8453",
			Asset:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Amount:  "1500000",
			PayTo:   "0x857b06519E91e3A54538791bDbb0E22373e36b66",
			Extra: map[string]interface{}{
				"swapData": SwapData{
					InputToken:   "0x4200000000000000000000000000000000000006",
					OutputAmount: "1500000",
					CallData:     "0xdeadbeef",
				}.ToMap(),
			},
		},
	}

	header, err := EncodeRequirementsHeader(accepts)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeRequirementsHeader(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(decoded))
	}
	if decoded[0].Scheme != SchemeExact || decoded[1].Scheme != SchemeEscrow {
		t.Errorf("scheme order not preserved: %s, %s", decoded[0].Scheme, decoded[1].Scheme)
	}
	swap := SwapDataFromExtra(decoded[1].Extra)
	if swap == nil || swap.InputToken != "0x4200000000000000000000000000000000000006" {
		t.Errorf("swap data lost in round trip: %+v", swap)
	}
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	payload := PaymentPayload{
		ProtocolVersion: ProtocolVersion,
		Accepted: PaymentRequirements{
			Scheme:  SchemeExact,
			Network: "eip155:8453",
			Asset:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Amount:  "1000000",
			PayTo:   "0x857b06519E91e3A54538791bDbb0E22373e36b66",
		},
		Payload: map[string]interface{}{
			"signature": "0xabc",
		},
		Resource: &ResourceInfo{URL: "https://tips.example/api/tip"},
	}

	header, err := EncodePaymentHeader(payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodePaymentHeader(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %d, want %d", decoded.ProtocolVersion, ProtocolVersion)
	}
	if decoded.Accepted.Scheme != SchemeExact {
		t.Errorf("accepted scheme = %s, want %s", decoded.Accepted.Scheme, SchemeExact)
	}
	if decoded.Resource == nil || decoded.Resource.URL != "https://tips.example/api/tip" {
		t.Errorf("resource lost in round trip: %+v", decoded.Resource)
	}
}

func TestDecodePaymentHeaderMalformed(t *testing.T) {
	b64 := func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"empty", "", "empty"},
		{"not base64", "not-valid-base64!!!", "not valid base64"},
		{"not json", b64("not json at all"), "not valid JSON"},
		{"missing accepted", b64(`{"payload":{}}`), "accepted"},
		{"accepted not object", b64(`{"accepted":"nope","payload":{}}`), "accepted must be an object"},
		{"missing payload", b64(`{"accepted":{}}`), "payload"},
		{"payload not object", b64(`{"accepted":{},"payload":[1]}`), "payload must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePaymentHeader(tt.header)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var pe *PaymentError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PaymentError, got %T", err)
			}
			if pe.Code != ErrCodeMalformedPayload {
				t.Errorf("code = %s, want %s", pe.Code, ErrCodeMalformedPayload)
			}
			if !strings.Contains(pe.Message, tt.wantMsg) {
				t.Errorf("message %q does not mention %q", pe.Message, tt.wantMsg)
			}
		})
	}
}

func TestResultHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		result PaymentResult
	}{
		{
			name: "success",
			result: PaymentResult{
				Success:     true,
				Transaction: "0x1234",
				Network:     "eip155:8453",
				Payer:       "0x857b06519E91e3A54538791bDbb0E22373e36b66",
			},
		},
		{
			name: "failure",
			result: PaymentResult{
				Success:     false,
				Network:     "eip155:84532",
				ErrorReason: "insufficient_funds",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header, err := EncodeResultHeader(tc.result)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			decoded, err := DecodeResultHeader(header)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded != tc.result {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded, tc.result)
			}
		})
	}
}
