package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/evm"
)

// Client pays tip challenges. It owns no keys itself; signing goes through
// the injected Signer, and when a contract reader is configured, escrow
// payments get a Permit2 allowance check before the holder is asked to sign.
type Client struct {
	signer     evm.Signer
	reader     evm.ContractReader
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for the challenge round trips.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the payment token preference. Requirements not payable with
// this token are filtered out before selection.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithContractReader enables the Permit2 allowance check before escrow
// signing. Without one the check is skipped and an insufficient allowance
// surfaces only at verification.
func WithContractReader(reader evm.ContractReader) Option {
	return func(c *Client) {
		c.reader = reader
	}
}

// New creates a paying client around a signer.
func New(signer evm.Signer, opts ...Option) *Client {
	c := &Client{
		signer:     signer,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePayload selects a requirement from the accepts list and signs it.
// The resource descriptor from the challenge is echoed back so the server
// can bind the signature to the tip it was quoted for.
func (c *Client) CreatePayload(ctx context.Context, accepts []tips.PaymentRequirements, resource *tips.ResourceInfo) (*tips.PaymentPayload, error) {
	selected, err := SelectRequirement(accepts, c.token)
	if err != nil {
		return nil, err
	}

	payload, err := c.signRequirement(ctx, *selected)
	if err != nil {
		return nil, err
	}

	return &tips.PaymentPayload{
		ProtocolVersion: tips.ProtocolVersion,
		Accepted:        *selected,
		Payload:         payload,
		Resource:        resource,
	}, nil
}

func (c *Client) signRequirement(ctx context.Context, req tips.PaymentRequirements) (map[string]interface{}, error) {
	switch req.Scheme {
	case tips.SchemeExact:
		exact, err := evm.BuildExactPayload(ctx, c.signer, req)
		if err != nil {
			return nil, signError(ctx, err)
		}
		return exact.ToMap(), nil

	case tips.SchemeEscrow:
		if err := c.checkPermit2Allowance(ctx, req); err != nil {
			return nil, err
		}
		escrow, err := evm.BuildEscrowPayload(ctx, c.signer, req)
		if err != nil {
			return nil, signError(ctx, err)
		}
		return escrow.ToMap(), nil

	default:
		return nil, tips.NewPaymentError(
			tips.ErrCodeNoMatchingOption,
			fmt.Sprintf("unsupported payment scheme: %s", req.Scheme),
			nil,
		)
	}
}

// signError maps a context cancellation during signing to a user rejection;
// anything else passes through.
func signError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return tips.NewPaymentError(tips.ErrCodeUserRejected, "payment was rejected", nil)
	}
	return err
}

// checkPermit2Allowance refuses to ask for an escrow signature when the
// payer's token allowance to Permit2 cannot cover the quote's worst-case
// input. Skipped when no contract reader is configured.
func (c *Client) checkPermit2Allowance(ctx context.Context, req tips.PaymentRequirements) error {
	if c.reader == nil {
		return nil
	}

	swap := tips.SwapDataFromExtra(req.Extra)
	if swap == nil {
		return nil
	}

	required, ok := new(big.Int).SetString(swap.MaxInputAmount, 10)
	if !ok {
		return fmt.Errorf("invalid maxInputAmount: %s", swap.MaxInputAmount)
	}

	allowance, err := evm.Permit2Allowance(ctx, c.reader, swap.InputToken, c.signer.Address())
	if err != nil {
		return err
	}
	if allowance.Cmp(required) < 0 {
		details := map[string]interface{}{
			"token":     swap.InputToken,
			"spender":   evm.PERMIT2Address,
			"required":  required.String(),
			"allowance": allowance.String(),
		}
		if to, data, err := evm.Permit2ApprovalCallData(swap.InputToken); err == nil {
			details["approvalTo"] = to
			details["approvalCallData"] = evm.BytesToHex(data)
		}
		return tips.NewPaymentError(
			tips.ErrCodeAllowanceRequired,
			"token allowance to Permit2 is insufficient for this payment",
			details,
		)
	}
	return nil
}

// SendTip runs the full challenge/response flow against a tip URL: request,
// 402 challenge, select and sign, resubmit with the signed payload, and
// decode the settlement result. A first response that is not a 402 is an
// error; the flow never pays without a challenge.
func (c *Client) SendTip(ctx context.Context, tipURL string) (*tips.PaymentResult, error) {
	challenge, resource, err := c.fetchChallenge(ctx, tipURL)
	if err != nil {
		return nil, err
	}

	payload, err := c.CreatePayload(ctx, challenge, resource)
	if err != nil {
		return nil, err
	}

	header, err := tips.EncodePaymentHeader(*payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tipURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	req.Header.Set(tips.HeaderPaymentSignature, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment response: %w", err)
	}

	return decodeResult(resp, body)
}

// fetchChallenge requests the tip URL unauthenticated and decodes the 402
// challenge, preferring the PAYMENT-REQUIRED header and falling back to the
// response body.
func (c *Client) fetchChallenge(ctx context.Context, tipURL string) ([]tips.PaymentRequirements, *tips.ResourceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tipURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create challenge request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("challenge request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read challenge response: %w", err)
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, nil, fmt.Errorf("expected 402 challenge, got %d: %s", resp.StatusCode, string(body))
	}

	var required tips.PaymentRequired
	if err := json.Unmarshal(body, &required); err == nil && len(required.Accepts) > 0 {
		return required.Accepts, required.Resource, nil
	}

	if header := resp.Header.Get(tips.HeaderPaymentRequired); header != "" {
		accepts, err := tips.DecodeRequirementsHeader(header)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid challenge header: %w", err)
		}
		return accepts, nil, nil
	}

	return nil, nil, fmt.Errorf("402 response carried no payment requirements")
}

// decodeResult extracts the settlement result, preferring the
// PAYMENT-RESPONSE header over the mirrored body.
func decodeResult(resp *http.Response, body []byte) (*tips.PaymentResult, error) {
	if header := resp.Header.Get(tips.HeaderPaymentResponse); header != "" {
		result, err := tips.DecodeResultHeader(header)
		if err == nil {
			return &result, nil
		}
	}

	var result tips.PaymentResult
	if err := json.Unmarshal(body, &result); err == nil && (result.Success || result.ErrorReason != "" || result.Transaction != "") {
		return &result, nil
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		var required tips.PaymentRequired
		if err := json.Unmarshal(body, &required); err == nil && required.Error != "" {
			return &tips.PaymentResult{Success: false, ErrorReason: required.Error}, nil
		}
	}

	return nil, fmt.Errorf("payment response carried no settlement result (%d)", resp.StatusCode)
}
