// Package httpapi exposes the tip endpoint: the 402 challenge on a bare
// request and the verify/settle state machine when a signed payment rides
// back in on the PAYMENT-SIGNATURE header.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	tips "github.com/Agentokratia/tips-app"
	"github.com/Agentokratia/tips-app/facilitator"
	"github.com/Agentokratia/tips-app/quotes"
	"github.com/Agentokratia/tips-app/resolver"
)

// DefaultRequestTimeout bounds one tip request end to end, settlement
// included.
const DefaultRequestTimeout = 2 * time.Minute

const supportedCacheTTL = 5 * time.Minute

// Server wires the challenge builder, the recipient resolver, and the
// facilitator into the tip route.
type Server struct {
	builder     *quotes.Builder
	facilitator *facilitator.Client
	resolver    *resolver.Resolver
	escrow      *quotes.EscrowSource
	supported   *tips.SupportedCache
	logger      *zap.Logger
	description string
	timeout     time.Duration
}

// Config configures the tip server.
type Config struct {
	Builder     *quotes.Builder
	Facilitator *facilitator.Client
	Resolver    *resolver.Resolver

	// Escrow, when set, receives the escrow contract set announced in the
	// facilitator's supported response.
	Escrow *quotes.EscrowSource

	// Description appears in the resource descriptor payments bind to.
	Description string

	// Timeout bounds one request; defaults to DefaultRequestTimeout.
	Timeout time.Duration

	Logger *zap.Logger
}

// New creates a tip server.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	return &Server{
		builder:     config.Builder,
		facilitator: config.Facilitator,
		resolver:    config.Resolver,
		escrow:      config.Escrow,
		supported:   tips.NewSupportedCache(supportedCacheTTL),
		logger:      logger,
		description: config.Description,
		timeout:     timeout,
	}
}

// Router builds the gin engine with the tip route, CORS, and panic
// recovery mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.recoveryMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/tip", s.handleTip)

	return router
}

// corsMiddleware answers preflights and exposes the payment headers so a
// browser client can read the challenge and the settlement result.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+tips.HeaderPaymentSignature)
		c.Header("Access-Control-Expose-Headers", tips.HeaderPaymentRequired+", "+tips.HeaderPaymentResponse)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// recoveryMiddleware converts a handler panic into a generic 500 without
// leaking internals to the payer.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		s.logger.Error("panic in tip handler", zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
			"code":  tips.ErrCodeInternal,
		})
	})
}

// handleTip is the single tip route. Without a PAYMENT-SIGNATURE header it
// issues the 402 challenge; with one it runs decode, verify, settle, and
// reports the result in both the PAYMENT-RESPONSE header and the body.
func (s *Server) handleTip(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	supported, err := s.supportedKinds(ctx)
	if err != nil {
		s.logger.Error("facilitator supported lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "payment facilitator is unavailable",
			"code":  tips.ErrCodeInternal,
		})
		return
	}
	networks := supported.Networks()
	if len(networks) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "payment facilitator supports no networks",
			"code":  tips.ErrCodeInternal,
		})
		return
	}

	network := tips.Network(c.Query("network"))
	if network == "" {
		network = networks[0]
	}

	recipient, err := s.resolveRecipient(ctx, c.Query("to"))
	if err != nil {
		writeError(c, err)
		return
	}

	req, err := quotes.ParseTipRequest(recipient, c.Query("amount"), network, networks)
	if err != nil {
		writeError(c, err)
		return
	}

	resource := s.resourceInfo(c, req)

	header := c.GetHeader(tips.HeaderPaymentSignature)
	if header == "" {
		s.writeChallenge(ctx, c, req, resource, "payment required")
		return
	}

	s.settle(ctx, c, req, resource, header)
}

// resolveRecipient turns the "to" query parameter into an address. A bare
// empty value falls through to ParseTipRequest for the canonical error.
func (s *Server) resolveRecipient(ctx context.Context, to string) (string, error) {
	if to == "" {
		return "", nil
	}
	resolved, err := s.resolver.Resolve(ctx, to)
	if err != nil {
		return "", tips.NewPaymentError(
			tips.ErrCodeValidation,
			fmt.Sprintf("Invalid recipient: %v", err),
			nil,
		)
	}
	return resolved, nil
}

// resourceInfo reconstructs the resource descriptor deterministically from
// the normalized tip parameters. The same descriptor is produced for the
// challenge and for verification, so a signature cannot move between tips.
func (s *Server) resourceInfo(c *gin.Context, req quotes.TipRequest) *tips.ResourceInfo {
	scheme := "https"
	if c.Request.TLS == nil {
		scheme = "http"
	}
	url := fmt.Sprintf("%s://%s%s?to=%s&amount=%s&network=%s",
		scheme, c.Request.Host, c.Request.URL.Path,
		req.PayTo, req.AmountUSD.String(), req.Network)
	return &tips.ResourceInfo{
		URL:         url,
		Description: s.description,
		MimeType:    "application/json",
	}
}

// writeChallenge builds the accepts list and answers 402 with the challenge
// in both the body and the PAYMENT-REQUIRED header.
func (s *Server) writeChallenge(ctx context.Context, c *gin.Context, req quotes.TipRequest, resource *tips.ResourceInfo, reason string) {
	accepts, err := s.builder.Build(ctx, req)
	if err != nil {
		s.logger.Error("failed to build payment options",
			zap.String("network", string(req.Network)),
			zap.Error(err))
		writeError(c, err)
		return
	}

	if header, err := tips.EncodeRequirementsHeader(accepts); err == nil {
		c.Header(tips.HeaderPaymentRequired, header)
	}

	c.JSON(http.StatusPaymentRequired, tips.PaymentRequired{
		ProtocolVersion: tips.ProtocolVersion,
		Error:           reason,
		Resource:        resource,
		Accepts:         accepts,
	})
}

// settle runs the signed-payment half of the route: decode, sanity-check,
// decompress, verify, settle. Every terminal branch mirrors the settlement
// result into the PAYMENT-RESPONSE header.
func (s *Server) settle(ctx context.Context, c *gin.Context, req quotes.TipRequest, resource *tips.ResourceInfo, header string) {
	payload, err := tips.DecodePaymentHeader(header)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := tips.ValidatePaymentPayload(*payload); err != nil {
		writeError(c, tips.NewPaymentError(tips.ErrCodeMalformedPayload, err.Error(), nil))
		return
	}
	if !payload.Accepted.Network.Match(req.Network) {
		writeError(c, tips.NewPaymentError(
			tips.ErrCodeMalformedPayload,
			fmt.Sprintf("payment network %s does not match request network %s", payload.Accepted.Network, req.Network),
			nil,
		))
		return
	}

	// The facilitator needs executable calldata; the challenge carried it
	// compressed to fit the header.
	if err := decompressPayload(payload); err != nil {
		writeError(c, tips.NewPaymentError(tips.ErrCodeMalformedPayload, err.Error(), nil))
		return
	}

	payload.Resource = resource

	verify, err := s.facilitator.Verify(ctx, *payload, payload.Accepted)
	if err != nil {
		// A verify call that errors out is our problem, not a facilitator
		// verdict on the payment.
		s.logger.Error("payment verification errored", zap.Error(err))
		s.writeResult(c, http.StatusInternalServerError, tips.PaymentResult{
			Success:     false,
			Network:     payload.Accepted.Network,
			ErrorReason: "payment verification failed",
		})
		return
	}
	if !verify.IsValid {
		s.logger.Warn("payment rejected by facilitator",
			zap.String("reason", verify.InvalidReason))
		s.writeResult(c, http.StatusPaymentRequired, tips.PaymentResult{
			Success:     false,
			Network:     payload.Accepted.Network,
			Payer:       verify.Payer,
			ErrorReason: verify.InvalidReason,
		})
		return
	}

	result, err := s.facilitator.Settle(ctx, *payload, payload.Accepted)
	if err != nil {
		s.logger.Error("payment settlement errored", zap.Error(err))
		s.writeResult(c, http.StatusPaymentRequired, tips.PaymentResult{
			Success:     false,
			Network:     payload.Accepted.Network,
			Payer:       verify.Payer,
			ErrorReason: "payment settlement failed",
		})
		return
	}
	if !result.Success {
		s.writeResult(c, http.StatusPaymentRequired, *result)
		return
	}

	s.logger.Info("tip settled",
		zap.String("network", string(result.Network)),
		zap.String("transaction", result.Transaction),
		zap.String("payer", result.Payer))
	s.writeResult(c, http.StatusOK, *result)
}

// writeResult mirrors the settlement result into the PAYMENT-RESPONSE
// header and the body.
func (s *Server) writeResult(c *gin.Context, status int, result tips.PaymentResult) {
	if header, err := tips.EncodeResultHeader(result); err == nil {
		c.Header(tips.HeaderPaymentResponse, header)
	}
	c.JSON(status, result)
}

// decompressPayload inflates the swap calldata carried by an escrow payment.
// Decompression happens exactly here: the builder compresses, the client
// passes through, and the facilitator receives executable calldata.
func decompressPayload(payload *tips.PaymentPayload) error {
	if payload.Accepted.Scheme != tips.SchemeEscrow {
		return nil
	}

	if swap := tips.SwapDataFromExtra(payload.Accepted.Extra); swap != nil {
		callData, err := tips.DecompressCallData(swap.CallData)
		if err != nil {
			return fmt.Errorf("invalid swap calldata: %w", err)
		}
		swap.CallData = callData
		payload.Accepted.Extra["swapData"] = swap.ToMap()
	}

	if raw, ok := payload.Payload["swapCallData"].(string); ok && raw != "" {
		callData, err := tips.DecompressCallData(raw)
		if err != nil {
			return fmt.Errorf("invalid swap calldata: %w", err)
		}
		payload.Payload["swapCallData"] = callData
	}

	return nil
}

// supportedKinds returns the facilitator's supported set, cached. The escrow
// contract set rides along in the response extra and is installed into the
// escrow quote source on refresh.
func (s *Server) supportedKinds(ctx context.Context) (tips.SupportedResponse, error) {
	if cached := s.supported.Get(); cached != nil {
		return *cached, nil
	}

	supported, err := s.facilitator.Supported(ctx)
	if err != nil {
		return tips.SupportedResponse{}, err
	}
	s.supported.Set(supported)

	if s.escrow != nil {
		for _, kind := range supported.Kinds {
			if kind.Scheme != tips.SchemeEscrow {
				continue
			}
			if contracts, ok := quotes.ContractsFromKind(kind); ok {
				s.escrow.SetContracts(kind.Network, contracts)
			}
		}
	}

	return supported, nil
}

// writeError renders a PaymentError with an HTTP status matched to its code.
func writeError(c *gin.Context, err error) {
	var status int
	code := tips.ErrorCode(err)
	switch code {
	case tips.ErrCodeValidation, tips.ErrCodeUnsupportedNetwork, tips.ErrCodeMalformedPayload:
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": err.Error(), "code": code}
	var pe *tips.PaymentError
	if errors.As(err, &pe) {
		body["error"] = pe.Message
		if len(pe.Details) > 0 {
			body["details"] = pe.Details
		}
	}
	c.JSON(status, body)
}
