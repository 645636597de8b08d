// Package client implements the paying side of the tip flow: choosing a
// payment option from a 402 challenge, signing it, and resubmitting the
// request with the signed payload attached.
package client

import (
	"strings"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// FilterByToken narrows an accepts list to the requirements payable with the
// given token. Exact requirements match on the asset itself; escrow
// requirements match on the quote's input token, falling back to the asset
// when the requirement carries no swap data. An empty token matches
// everything.
func FilterByToken(accepts []tips.PaymentRequirements, token string) []tips.PaymentRequirements {
	if strings.TrimSpace(token) == "" {
		return accepts
	}

	var matched []tips.PaymentRequirements
	for _, req := range accepts {
		if requirementToken(req) != "" && evm.SameAddress(requirementToken(req), token) {
			matched = append(matched, req)
		}
	}
	return matched
}

// requirementToken returns the token the payer spends to satisfy a
// requirement.
func requirementToken(req tips.PaymentRequirements) string {
	if req.Scheme == tips.SchemeEscrow {
		if swap := tips.SwapDataFromExtra(req.Extra); swap != nil && swap.InputToken != "" {
			return swap.InputToken
		}
	}
	return req.Asset
}

// SelectRequirement picks the requirement to pay from a filtered accepts
// list. Exact requirements win over escrow because they settle without a
// swap; among escrow options the first (the server's preferred quote) is
// taken. Returns a no_matching_requirement error when nothing is payable.
func SelectRequirement(accepts []tips.PaymentRequirements, token string) (*tips.PaymentRequirements, error) {
	candidates := FilterByToken(accepts, token)
	if len(candidates) == 0 {
		return nil, tips.NewPaymentError(
			tips.ErrCodeNoMatchingOption,
			"none of the offered payment options match the selected token",
			map[string]interface{}{"token": token, "offered": len(accepts)},
		)
	}

	for i := range candidates {
		if candidates[i].Scheme == tips.SchemeExact {
			return &candidates[i], nil
		}
	}
	return &candidates[0], nil
}
