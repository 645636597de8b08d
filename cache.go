package tips

import (
	"fmt"
	"sync"
	"time"
)

// RequirementsCache is the seam for caching built accepts lists, keyed by
// (network, amount, recipient). The provided implementation is a deliberate
// pass-through: DEX aggregator quotes decay within roughly a minute, and a
// stale quote presents a price the payer cannot execute on-chain. The
// interface stays so a time-boxed cache (exact entries only, never the
// volatile escrow quotes) can be slotted in without re-threading call sites.
type RequirementsCache interface {
	Get(key RequirementsCacheKey) ([]PaymentRequirements, bool)
	Put(key RequirementsCacheKey, accepts []PaymentRequirements)
}

// RequirementsCacheKey identifies one challenge's accepts list.
type RequirementsCacheKey struct {
	Network   Network
	AmountUSD string
	Recipient string
}

func (k RequirementsCacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Network, k.AmountUSD, k.Recipient)
}

// NoopRequirementsCache never stores and never hits.
type NoopRequirementsCache struct{}

func (NoopRequirementsCache) Get(RequirementsCacheKey) ([]PaymentRequirements, bool) { return nil, false }

func (NoopRequirementsCache) Put(RequirementsCacheKey, []PaymentRequirements) {}

// SupportedCache caches a facilitator's supported-kinds response. Unlike
// quotes, the supported set is stable, so a TTL cache avoids hitting the
// facilitator on every challenge.
type SupportedCache struct {
	mu     sync.RWMutex
	data   *SupportedResponse
	expiry time.Time
	ttl    time.Duration
}

// NewSupportedCache creates a supported-kinds cache with the given TTL.
func NewSupportedCache(ttl time.Duration) *SupportedCache {
	return &SupportedCache{ttl: ttl}
}

// Get returns the cached response, or nil if absent or expired.
func (c *SupportedCache) Get() *SupportedResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil || time.Now().After(c.expiry) {
		return nil
	}
	return c.data
}

// Set stores a response and refreshes the expiry.
func (c *SupportedCache) Set(supported SupportedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = &supported
	c.expiry = time.Now().Add(c.ttl)
}

// Clear drops the cached response.
func (c *SupportedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = nil
	c.expiry = time.Time{}
}
