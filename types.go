// Package tips implements the payment core of the tipping service: the wire
// types and header codecs for the x402 challenge/response protocol, shared by
// the requirements builder, the paying client, and the settlement route.
package tips

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is the x402 protocol version spoken on the wire.
const ProtocolVersion = 2

// Scheme identifiers for the two settlement paths.
const (
	SchemeExact  = "exact"
	SchemeEscrow = "escrow"
)

// Header names used by the challenge/response transport.
const (
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"
)

// Network is a blockchain network identifier in CAIP-2 format,
// namespace:reference (e.g. "eip155:8453" for Base mainnet).
type Network string

// Parse splits the network into namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks whether this network matches a pattern. Patterns may carry a
// trailing wildcard ("eip155:*"), and matching is bidirectional so a wildcard
// on either side matches the other.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// PaymentRequirements describes one acceptable way to pay a tip. Every
// requirement in an accepts list targets the same network, recipient, and
// USDC amount; only the accepted input path differs.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// SwapData is the escrow-scheme quote embedded in a requirement's extra bag.
// CallData is opaque aggregator calldata; on the wire it may be carried in
// the compressed form produced by CompressCallData.
type SwapData struct {
	InputToken     string `json:"inputToken"`
	OutputToken    string `json:"outputToken"`
	OutputAmount   string `json:"outputAmount"`
	MaxInputAmount string `json:"maxInputAmount"`
	Aggregator     string `json:"aggregator"`
	CallData       string `json:"callData"`
}

// ToMap converts the swap data for embedding in PaymentRequirements.Extra.
func (s SwapData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"inputToken":     s.InputToken,
		"outputToken":    s.OutputToken,
		"outputAmount":   s.OutputAmount,
		"maxInputAmount": s.MaxInputAmount,
		"aggregator":     s.Aggregator,
		"callData":       s.CallData,
	}
}

// SwapDataFromExtra extracts swap data from a requirement's extra bag.
// Returns nil if the requirement carries no swapData entry.
func SwapDataFromExtra(extra map[string]interface{}) *SwapData {
	if extra == nil {
		return nil
	}
	raw, ok := extra["swapData"]
	if !ok {
		return nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		// Built in-process rather than decoded from JSON.
		if sd, ok := raw.(SwapData); ok {
			return &sd
		}
		return nil
	}

	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}
	return &SwapData{
		InputToken:     str("inputToken"),
		OutputToken:    str("outputToken"),
		OutputAmount:   str("outputAmount"),
		MaxInputAmount: str("maxInputAmount"),
		Aggregator:     str("aggregator"),
		CallData:       str("callData"),
	}
}

// ResourceInfo describes the resource a payment is bound to. The settlement
// route reconstructs it when verifying, so a signature for one tip cannot be
// replayed against another.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// PaymentRequired is the body shape of a 402 challenge.
type PaymentRequired struct {
	ProtocolVersion int                   `json:"protocolVersion"`
	Error           string                `json:"error,omitempty"`
	Resource        *ResourceInfo         `json:"resource,omitempty"`
	Accepts         []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is a signed instruction to execute one specific requirement.
// It is immutable once created and single-use; replay rejection is the
// facilitator's responsibility.
type PaymentPayload struct {
	ProtocolVersion int                    `json:"protocolVersion"`
	Accepted        PaymentRequirements    `json:"accepted"`
	Payload         map[string]interface{} `json:"payload"`
	Resource        *ResourceInfo          `json:"resource,omitempty"`
}

// VerifyResponse is the facilitator's verdict on a payment payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// PaymentResult is the terminal outcome of a settlement attempt. It is
// returned to the caller and never stored server-side.
type PaymentResult struct {
	Success     bool    `json:"success"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	ErrorReason string  `json:"errorReason,omitempty"`
}

// SupportedKind is one payment configuration a facilitator can settle.
type SupportedKind struct {
	Scheme  string                 `json:"scheme"`
	Network Network                `json:"network"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what a facilitator supports. The service's
// network allow-list is derived from it rather than hardcoded.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Networks returns the distinct networks in the supported set, in first-seen
// order. The first entry is the default network for requests that omit one.
func (s SupportedResponse) Networks() []Network {
	seen := make(map[Network]bool)
	var networks []Network
	for _, kind := range s.Kinds {
		if !seen[kind.Network] {
			seen[kind.Network] = true
			networks = append(networks, kind.Network)
		}
	}
	return networks
}

// ValidatePaymentRequirements performs basic sanity checks on a requirement.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.Amount == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// ValidatePaymentPayload performs basic sanity checks on a signed payload.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version: %d", p.ProtocolVersion)
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return ValidatePaymentRequirements(p.Accepted)
}

// DeepEqual compares two values by their normalized JSON encodings.
func DeepEqual(a, b interface{}) bool {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aNorm, bNorm interface{}
	if err := json.Unmarshal(aJSON, &aNorm); err != nil {
		return false
	}
	if err := json.Unmarshal(bJSON, &bNorm); err != nil {
		return false
	}

	aNormJSON, _ := json.Marshal(aNorm)
	bNormJSON, _ := json.Marshal(bNorm)

	return string(aNormJSON) == string(bNormJSON)
}
