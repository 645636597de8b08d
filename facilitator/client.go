// Package facilitator is the HTTP client for the external facilitator
// service, which verifies payment signatures and executes on-chain
// settlement on behalf of the tip server. The facilitator also owns replay
// rejection; this client never retries a verify or settle call.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	tips "github.com/Agentokratia/tips-app"
)

// AuthProvider generates authentication headers for facilitator requests.
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders carries per-endpoint authentication headers.
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// Config configures the facilitator client.
type Config struct {
	// URL is the base URL of the facilitator service.
	URL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional).
	AuthProvider AuthProvider

	// Timeout for requests when no HTTPClient is supplied (default 30s).
	Timeout time.Duration
}

// supportedRetries is the number of attempts for Supported on 429 responses.
const supportedRetries = 3

// supportedRetryBaseDelay is the base delay for exponential backoff.
const supportedRetryBaseDelay = 1 * time.Second

// Client talks to a remote facilitator over HTTP.
type Client struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
}

// New creates a facilitator client.
func New(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:          config.URL,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
	}
}

// APIKeyAuth returns an AuthProvider sending a bearer token plus a fresh
// correlation id on every endpoint.
func APIKeyAuth(apiKey string) AuthProvider {
	return apiKeyAuth{key: apiKey}
}

type apiKeyAuth struct {
	key string
}

func (a apiKeyAuth) GetAuthHeaders(ctx context.Context) (AuthHeaders, error) {
	if a.key == "" {
		return AuthHeaders{}, fmt.Errorf("facilitator api key is empty")
	}

	headers := func() map[string]string {
		return map[string]string{
			"Authorization":  "Bearer " + a.key,
			"Correlation-Id": uuid.NewString(),
		}
	}
	return AuthHeaders{
		Verify:    headers(),
		Settle:    headers(),
		Supported: headers(),
	}, nil
}

// verifySettleRequest is the shared body shape of verify and settle calls.
type verifySettleRequest struct {
	ProtocolVersion     int                      `json:"protocolVersion"`
	PaymentPayload      tips.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements tips.PaymentRequirements `json:"paymentRequirements"`
}

// Verify checks whether a signed payload is valid for its requirement.
func (c *Client) Verify(ctx context.Context, payload tips.PaymentPayload, requirements tips.PaymentRequirements) (*tips.VerifyResponse, error) {
	body, err := json.Marshal(verifySettleRequest{
		ProtocolVersion:     tips.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	responseBody, statusCode, err := c.post(ctx, "/verify", body, func(h AuthHeaders) map[string]string { return h.Verify })
	if err != nil {
		return nil, err
	}

	var verifyResponse tips.VerifyResponse
	if err := json.Unmarshal(responseBody, &verifyResponse); err != nil {
		return nil, fmt.Errorf("facilitator verify failed (%d): %s", statusCode, string(responseBody))
	}

	if statusCode != http.StatusOK && verifyResponse.InvalidReason == "" {
		return nil, fmt.Errorf("facilitator verify failed (%d): %s", statusCode, string(responseBody))
	}

	return &verifyResponse, nil
}

// Settle executes a verified payment on-chain.
func (c *Client) Settle(ctx context.Context, payload tips.PaymentPayload, requirements tips.PaymentRequirements) (*tips.PaymentResult, error) {
	body, err := json.Marshal(verifySettleRequest{
		ProtocolVersion:     tips.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	responseBody, statusCode, err := c.post(ctx, "/settle", body, func(h AuthHeaders) map[string]string { return h.Settle })
	if err != nil {
		return nil, err
	}

	var result tips.PaymentResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, fmt.Errorf("facilitator settle failed (%d): %s", statusCode, string(responseBody))
	}

	if statusCode != http.StatusOK && result.ErrorReason == "" {
		return nil, fmt.Errorf("facilitator settle failed (%d): %s", statusCode, string(responseBody))
	}

	return &result, nil
}

// Supported fetches the facilitator's supported payment kinds, the source of
// the service's network allow-list. Retries up to 3 times with exponential
// backoff on 429 responses.
func (c *Client) Supported(ctx context.Context) (tips.SupportedResponse, error) {
	var lastErr error

	for attempt := range supportedRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/supported", nil)
		if err != nil {
			return tips.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		if c.authProvider != nil {
			authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
			if err != nil {
				return tips.SupportedResponse{}, fmt.Errorf("failed to get auth headers: %w", err)
			}
			for k, v := range authHeaders.Supported {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return tips.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return tips.SupportedResponse{}, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var supported tips.SupportedResponse
			if err := json.Unmarshal(responseBody, &supported); err != nil {
				return tips.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supported, nil
		}

		lastErr = fmt.Errorf("facilitator supported failed (%d): %s", resp.StatusCode, string(responseBody))

		if resp.StatusCode == http.StatusTooManyRequests && attempt < supportedRetries-1 {
			delay := supportedRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return tips.SupportedResponse{}, ctx.Err()
			}
		}

		return tips.SupportedResponse{}, lastErr
	}

	return tips.SupportedResponse{}, lastErr
}

func (c *Client) post(ctx context.Context, path string, body []byte, pick func(AuthHeaders) map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.authProvider != nil {
		authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range pick(authHeaders) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBody, resp.StatusCode, nil
}
