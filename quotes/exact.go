package quotes

import (
	"context"
	"fmt"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// ExactSource prices a direct ERC-3009 USDC transfer. The terms come from
// local network constants, so building them involves no I/O.
type ExactSource struct {
	// MaxTimeoutSeconds overrides the default validity window when set.
	MaxTimeoutSeconds int
}

// Scheme returns the exact scheme identifier.
func (s *ExactSource) Scheme() string {
	return tips.SchemeExact
}

// Build returns the single exact requirement for the request's network.
func (s *ExactSource) Build(_ context.Context, req TipRequest) ([]tips.PaymentRequirements, error) {
	config, ok := evm.GetNetworkConfig(string(req.Network))
	if !ok {
		return nil, fmt.Errorf("no USDC deployment configured for %s", req.Network)
	}

	timeout := s.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	return []tips.PaymentRequirements{{
		Scheme:            tips.SchemeExact,
		Network:           req.Network,
		Asset:             config.USDC.Address,
		Amount:            req.USDCAmount(),
		PayTo:             req.PayTo,
		MaxTimeoutSeconds: timeout,
		Extra: map[string]interface{}{
			// EIP-712 domain parameters for the token's
			// TransferWithAuthorization signature.
			"name":    config.USDC.Name,
			"version": config.USDC.Version,
		},
	}}, nil
}
