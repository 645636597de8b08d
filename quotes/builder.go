package quotes

import (
	"context"
	"sync"

	tips "github.com/Agentokratia/tips-app"
	"go.uber.org/zap"
)

// Builder assembles the accepts list for a tip challenge by fanning out to
// every registered quote source concurrently. A source failure drops that
// scheme's options without failing the challenge; the build errors only
// when no source produces anything.
type Builder struct {
	sources []Source
	cache   tips.RequirementsCache
	logger  *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCache sets the requirements cache consulted before quoting.
func WithCache(cache tips.RequirementsCache) BuilderOption {
	return func(b *Builder) {
		b.cache = cache
	}
}

// WithLogger sets the logger used for per-source failure reporting.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder over the given quote sources.
func NewBuilder(sources []Source, opts ...BuilderOption) *Builder {
	b := &Builder{
		sources: sources,
		cache:   tips.NoopRequirementsCache{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type sourceResult struct {
	scheme       string
	requirements []tips.PaymentRequirements
	err          error
}

// Build produces the payment options for a tip request. Sources run
// concurrently; results keep source registration order so exact options
// always precede escrow options in the accepts list.
func (b *Builder) Build(ctx context.Context, req TipRequest) ([]tips.PaymentRequirements, error) {
	key := req.CacheKey()
	if cached, ok := b.cache.Get(key); ok {
		return cached, nil
	}

	results := make([]sourceResult, len(b.sources))
	var wg sync.WaitGroup
	for i, source := range b.sources {
		wg.Add(1)
		go func(i int, source Source) {
			defer wg.Done()
			requirements, err := source.Build(ctx, req)
			results[i] = sourceResult{
				scheme:       source.Scheme(),
				requirements: requirements,
				err:          err,
			}
		}(i, source)
	}
	wg.Wait()

	var accepts []tips.PaymentRequirements
	failures := map[string]interface{}{}
	for _, r := range results {
		if r.err != nil {
			b.logger.Warn("quote source failed",
				zap.String("scheme", r.scheme),
				zap.String("network", string(req.Network)),
				zap.Error(r.err))
			failures[r.scheme] = r.err.Error()
			continue
		}
		accepts = append(accepts, r.requirements...)
	}

	if len(accepts) == 0 {
		return nil, &tips.PaymentError{
			Code:    tips.ErrCodeNoPaymentOptions,
			Message: "No payment options available",
			Details: failures,
		}
	}

	b.cache.Put(key, accepts)
	return accepts, nil
}
