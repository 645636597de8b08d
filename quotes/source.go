// Package quotes builds the accepts list for a 402 challenge. Two sources
// contribute: the exact source prices a direct USDC transfer from local
// network constants, and the escrow source fetches per-token swap quotes
// from the DEX aggregator. The builder fans both out concurrently and
// tolerates either one failing.
package quotes

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// DefaultMaxTimeoutSeconds is the validity window advertised on built
// requirements.
const DefaultMaxTimeoutSeconds = 300

// TipRequest is a validated request for payment requirements.
type TipRequest struct {
	// PayTo is the resolved, checksummed recipient address.
	PayTo string

	// AmountUSD is the tip amount in whole USD.
	AmountUSD decimal.Decimal

	// Network is the CAIP-2 target network.
	Network tips.Network
}

// USDCAmount converts the USD amount to USDC base units as an integer
// string. USDC is dollar-pegged, so the conversion is a decimal shift.
func (r TipRequest) USDCAmount() string {
	return r.AmountUSD.Shift(evm.USDCDecimals).Truncate(0).String()
}

// CacheKey returns the requirements-cache key for this request.
func (r TipRequest) CacheKey() tips.RequirementsCacheKey {
	return tips.RequirementsCacheKey{
		Network:   r.Network,
		AmountUSD: r.AmountUSD.String(),
		Recipient: r.PayTo,
	}
}

// ParseTipRequest validates raw inputs and produces a TipRequest. No network
// calls are made; every failure is a validation_error naming the bad field.
func ParseTipRequest(payTo, amountUSD string, network tips.Network, allowed []tips.Network) (TipRequest, error) {
	if payTo == "" {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, "Missing recipient", nil)
	}
	if !evm.IsHexAddress(payTo) {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, fmt.Sprintf("Invalid recipient address: %s", payTo), nil)
	}

	if amountUSD == "" {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, "Missing amount", nil)
	}
	amount, err := decimal.NewFromString(amountUSD)
	if err != nil {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, fmt.Sprintf("Invalid amount: %s", amountUSD), nil)
	}
	if !amount.IsPositive() {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, fmt.Sprintf("Invalid amount: %s", amountUSD), nil)
	}

	if _, _, err := network.Parse(); err != nil {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeValidation, fmt.Sprintf("Invalid network: %s", network), nil)
	}
	supported := false
	for _, n := range allowed {
		if network == n {
			supported = true
			break
		}
	}
	if !supported {
		return TipRequest{}, tips.NewPaymentError(tips.ErrCodeUnsupportedNetwork,
			fmt.Sprintf("Unsupported network: %s", network),
			map[string]interface{}{"supported": allowed})
	}

	return TipRequest{
		PayTo:     evm.NormalizeAddress(payTo),
		AmountUSD: amount,
		Network:   network,
	}, nil
}

// Source produces the requirements for one settlement scheme.
type Source interface {
	Scheme() string
	Build(ctx context.Context, req TipRequest) ([]tips.PaymentRequirements, error)
}
