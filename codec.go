package tips

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
)

// The header codec is a strict pair: encode Struct -> base64 string, decode
// base64 string -> Result. Both the challenge and response paths use it, so
// transport (headers vs. body fallback) stays swappable without touching
// business logic.

var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// EncodeRequirementsHeader encodes an accepts list for the
// PAYMENT-REQUIRED header.
func EncodeRequirementsHeader(accepts []PaymentRequirements) (string, error) {
	data, err := json.Marshal(accepts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeRequirementsHeader decodes a PAYMENT-REQUIRED header value.
func DecodeRequirementsHeader(header string) ([]PaymentRequirements, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var accepts []PaymentRequirements
	if err := json.Unmarshal(data, &accepts); err != nil {
		return nil, fmt.Errorf("invalid requirements JSON: %w", err)
	}
	return accepts, nil
}

// EncodePaymentHeader encodes a signed payload for the PAYMENT-SIGNATURE
// header.
func EncodePaymentHeader(payload PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader validates and decodes a PAYMENT-SIGNATURE header value.
// It checks the base64 format, the JSON structure, and the presence and shape
// of the accepted and payload fields before unmarshaling into the typed
// payload. All failures carry the malformed_payload code.
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	if header == "" {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "payment header is empty", nil)
	}

	if !base64Regex.MatchString(header) {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "payment header is not valid base64", nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "payment header base64 decoding failed", nil)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "payment header is not valid JSON", nil)
	}

	if _, exists := raw["accepted"]; !exists {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "missing required field: accepted", nil)
	}
	if _, ok := raw["accepted"].(map[string]interface{}); !ok {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "invalid field type: accepted must be an object", nil)
	}

	if _, exists := raw["payload"]; !exists {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "missing required field: payload", nil)
	}
	if _, ok := raw["payload"].(map[string]interface{}); !ok {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "invalid field type: payload must be an object", nil)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayload, fmt.Sprintf("failed to parse payment payload: %v", err), nil)
	}

	return &payload, nil
}

// EncodeResultHeader encodes a settlement result for the PAYMENT-RESPONSE
// header. The same JSON is mirrored into the response body.
func EncodeResultHeader(result PaymentResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeResultHeader decodes a PAYMENT-RESPONSE header value.
func DecodeResultHeader(header string) (PaymentResult, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var result PaymentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return PaymentResult{}, fmt.Errorf("invalid payment result JSON: %w", err)
	}
	return result, nil
}
