// Package config loads the tip server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds everything the tip server needs at startup.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// FacilitatorURL is the base URL of the x402 facilitator.
	FacilitatorURL string

	// FacilitatorAPIKey authenticates verify/settle calls. Optional for
	// facilitators that accept anonymous traffic.
	FacilitatorAPIKey string

	// SwapAPIURL is the base URL of the DEX aggregator quote service.
	SwapAPIURL string

	// EthRPCURL is an Ethereum mainnet RPC endpoint, used for ENS lookups.
	EthRPCURL string

	// BaseRPCURL is a Base RPC endpoint, used for Basename lookups.
	BaseRPCURL string

	// RequestTimeout bounds one tip request end to end.
	RequestTimeout time.Duration

	// TipDescription appears in the resource descriptor payments bind to.
	TipDescription string
}

// Load reads configuration from the environment, applying defaults where a
// variable is unset. FACILITATOR_URL and SWAP_API_URL are required.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FacilitatorURL:    os.Getenv("FACILITATOR_URL"),
		FacilitatorAPIKey: os.Getenv("FACILITATOR_API_KEY"),
		SwapAPIURL:        os.Getenv("SWAP_API_URL"),
		EthRPCURL:         os.Getenv("ETH_RPC_URL"),
		BaseRPCURL:        os.Getenv("BASE_RPC_URL"),
		TipDescription:    getEnv("TIP_DESCRIPTION", "Tip payment"),
	}

	if cfg.FacilitatorURL == "" {
		return nil, fmt.Errorf("FACILITATOR_URL is required")
	}
	if cfg.SwapAPIURL == "" {
		return nil, fmt.Errorf("SWAP_API_URL is required")
	}

	timeout := getEnv("REQUEST_TIMEOUT", "2m")
	parsed, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", timeout, err)
	}
	cfg.RequestTimeout = parsed

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
