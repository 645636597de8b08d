package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// InputToken is one token the escrow path accepts as payment.
type InputToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// EscrowContracts is the per-network contract set the escrow scheme settles
// through. It arrives with the facilitator's supported-kinds response rather
// than being hardcoded here.
type EscrowContracts struct {
	EscrowContract string
	TokenCollector string
	Facilitator    string
}

// ContractsFromKind extracts the escrow contract set from a supported-kind
// extra bag. Returns false if any address is missing.
func ContractsFromKind(kind tips.SupportedKind) (EscrowContracts, bool) {
	str := func(key string) string {
		v, _ := kind.Extra[key].(string)
		return v
	}
	contracts := EscrowContracts{
		EscrowContract: str("escrowContract"),
		TokenCollector: str("tokenCollector"),
		Facilitator:    str("facilitator"),
	}
	ok := contracts.EscrowContract != "" && contracts.TokenCollector != "" && contracts.Facilitator != ""
	return contracts, ok
}

// EscrowSource fetches swap quotes from the DEX aggregator service, one per
// accepted input token, and shapes them into escrow requirements. Quotes
// decay within about a minute; a failed quote is not retried here because a
// retried quote would be no fresher than the client simply re-challenging.
type EscrowSource struct {
	baseURL     string
	httpClient  *http.Client
	inputTokens map[tips.Network][]InputToken
	contracts   map[tips.Network]EscrowContracts

	// MaxTimeoutSeconds overrides the default validity window when set.
	MaxTimeoutSeconds int
}

// EscrowConfig configures the escrow quote source.
type EscrowConfig struct {
	// BaseURL of the swap aggregator quote API.
	BaseURL string

	// HTTPClient to use (optional, default 10s timeout).
	HTTPClient *http.Client

	// InputTokens lists the accepted payment tokens per network.
	InputTokens map[tips.Network][]InputToken

	// Contracts is the escrow contract set per network.
	Contracts map[tips.Network]EscrowContracts
}

// NewEscrowSource creates an escrow quote source.
func NewEscrowSource(config EscrowConfig) *EscrowSource {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &EscrowSource{
		baseURL:     config.BaseURL,
		httpClient:  httpClient,
		inputTokens: config.InputTokens,
		contracts:   config.Contracts,
	}
}

// Scheme returns the escrow scheme identifier.
func (s *EscrowSource) Scheme() string {
	return tips.SchemeEscrow
}

// SetContracts installs the escrow contract set for a network, typically
// from the facilitator's supported response at startup.
func (s *EscrowSource) SetContracts(network tips.Network, contracts EscrowContracts) {
	if s.contracts == nil {
		s.contracts = make(map[tips.Network]EscrowContracts)
	}
	s.contracts[network] = contracts
}

// Build quotes every configured input token concurrently and unions the
// successes. Individual token quotes may fail without failing the branch;
// the branch errors only when no token yields a quote.
func (s *EscrowSource) Build(ctx context.Context, req TipRequest) ([]tips.PaymentRequirements, error) {
	tokens, ok := s.inputTokens[req.Network]
	if !ok || len(tokens) == 0 {
		return nil, fmt.Errorf("no input tokens configured for %s", req.Network)
	}
	contracts, ok := s.contracts[req.Network]
	if !ok {
		return nil, fmt.Errorf("no escrow contracts known for %s", req.Network)
	}

	config, ok := evm.GetNetworkConfig(string(req.Network))
	if !ok {
		return nil, fmt.Errorf("no USDC deployment configured for %s", req.Network)
	}

	type quoteResult struct {
		index       int
		requirement *tips.PaymentRequirements
		err         error
	}

	results := make(chan quoteResult, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token InputToken) {
			defer wg.Done()
			requirement, err := s.quoteToken(ctx, req, token, config.USDC.Address, contracts)
			results <- quoteResult{index: i, requirement: requirement, err: err}
		}(i, token)
	}
	wg.Wait()
	close(results)

	requirements := make([]*tips.PaymentRequirements, len(tokens))
	var lastErr error
	for r := range results {
		if r.err != nil {
			lastErr = r.err
			continue
		}
		requirements[r.index] = r.requirement
	}

	// Stable token order regardless of quote completion order.
	var accepts []tips.PaymentRequirements
	for _, r := range requirements {
		if r != nil {
			accepts = append(accepts, *r)
		}
	}

	if len(accepts) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all escrow quotes failed: %w", lastErr)
		}
		return nil, fmt.Errorf("all escrow quotes failed")
	}
	return accepts, nil
}

// aggregatorQuote is the upstream quote shape. Some aggregator deployments
// return asset/amount at the top level, others nest them inside a price
// object; normalization flattens both into the canonical requirement.
type aggregatorQuote struct {
	InputToken     string `json:"inputToken"`
	OutputToken    string `json:"outputToken"`
	OutputAmount   string `json:"outputAmount"`
	MaxInputAmount string `json:"maxInputAmount"`
	Aggregator     string `json:"aggregator"`
	CallData       string `json:"callData"`
	Price          *struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	} `json:"price"`
}

func (q aggregatorQuote) normalize() (outputToken, outputAmount string) {
	if q.Price != nil {
		return q.Price.Asset, q.Price.Amount
	}
	return q.OutputToken, q.OutputAmount
}

func (s *EscrowSource) quoteToken(ctx context.Context, req TipRequest, token InputToken, usdcAddress string, contracts EscrowContracts) (*tips.PaymentRequirements, error) {
	query := url.Values{}
	query.Set("network", string(req.Network))
	query.Set("inputToken", token.Address)
	query.Set("outputToken", usdcAddress)
	query.Set("outputAmount", req.USDCAmount())
	query.Set("recipient", contracts.TokenCollector)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request for %s failed: %w", token.Symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote for %s failed (%d): %s", token.Symbol, resp.StatusCode, string(body))
	}

	var quote aggregatorQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("invalid quote response for %s: %w", token.Symbol, err)
	}

	outputToken, outputAmount := quote.normalize()
	if outputAmount == "" || quote.MaxInputAmount == "" || quote.CallData == "" {
		return nil, fmt.Errorf("incomplete quote for %s", token.Symbol)
	}
	if outputToken == "" {
		outputToken = usdcAddress
	}

	// Aggregator calldata is bulky; compress it before it rides the
	// PAYMENT-REQUIRED header.
	callData, err := tips.CompressCallData(quote.CallData)
	if err != nil {
		return nil, fmt.Errorf("failed to compress calldata for %s: %w", token.Symbol, err)
	}

	inputToken := quote.InputToken
	if inputToken == "" {
		inputToken = token.Address
	}

	timeout := s.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	swapData := tips.SwapData{
		InputToken:     evm.NormalizeAddress(inputToken),
		OutputToken:    evm.NormalizeAddress(outputToken),
		OutputAmount:   outputAmount,
		MaxInputAmount: quote.MaxInputAmount,
		Aggregator:     quote.Aggregator,
		CallData:       callData,
	}

	return &tips.PaymentRequirements{
		Scheme:            tips.SchemeEscrow,
		Network:           req.Network,
		Asset:             usdcAddress,
		Amount:            outputAmount,
		PayTo:             req.PayTo,
		MaxTimeoutSeconds: timeout,
		Extra: map[string]interface{}{
			"swapData":       swapData.ToMap(),
			"escrowContract": contracts.EscrowContract,
			"tokenCollector": contracts.TokenCollector,
			"facilitator":    contracts.Facilitator,
		},
	}, nil
}
