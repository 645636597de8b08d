// Command tipserver runs the tip payment service: it answers tip requests
// with x402 challenges and settles signed payments through the facilitator.
package main

import (
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/facilitator"
	"github.com/Agentokratia/tips-app/httpapi"
	"github.com/Agentokratia/tips-app/pkg/config"
	"github.com/Agentokratia/tips-app/quotes"
	"github.com/Agentokratia/tips-app/resolver"
)

// defaultInputTokens lists the tokens the escrow path accepts as payment.
// WETH is canonical at the same address on every OP-stack chain.
var defaultInputTokens = map[tips.Network][]quotes.InputToken{
	"eip155:8453": {
		{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18},
		{Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", Symbol: "cbBTC", Decimals: 8},
	},
	"eip155:84532": {
		{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18},
	},
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	var authProvider facilitator.AuthProvider
	if cfg.FacilitatorAPIKey != "" {
		authProvider = facilitator.APIKeyAuth(cfg.FacilitatorAPIKey)
	}
	facilitatorClient := facilitator.New(&facilitator.Config{
		URL:          cfg.FacilitatorURL,
		AuthProvider: authProvider,
	})

	escrowSource := quotes.NewEscrowSource(quotes.EscrowConfig{
		BaseURL:     cfg.SwapAPIURL,
		InputTokens: defaultInputTokens,
	})
	builder := quotes.NewBuilder(
		[]quotes.Source{&quotes.ExactSource{}, escrowSource},
		quotes.WithLogger(logger),
	)

	server := httpapi.New(httpapi.Config{
		Builder:     builder,
		Facilitator: facilitatorClient,
		Resolver:    resolver.New(dialRPC(cfg.EthRPCURL, logger), dialRPC(cfg.BaseRPCURL, logger)),
		Escrow:      escrowSource,
		Description: cfg.TipDescription,
		Timeout:     cfg.RequestTimeout,
		Logger:      logger,
	})

	logger.Info("tip server listening", zap.String("port", cfg.Port))
	if err := server.Router().Run(":" + cfg.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// dialRPC connects to an RPC endpoint, or returns nil when the URL is unset
// so the matching name lookups are simply disabled.
func dialRPC(url string, logger *zap.Logger) resolver.ContractCaller {
	if url == "" {
		return nil
	}
	client, err := ethclient.Dial(url)
	if err != nil {
		logger.Warn("rpc endpoint unavailable, name resolution disabled",
			zap.String("url", url), zap.Error(err))
		return nil
	}
	return client
}
