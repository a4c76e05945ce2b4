package core

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LabPolicy carries the lab-level configuration consulted before lifecycle
// transitions. SealedCountsOnly collapses open into seal-to-deplete for labs
// that do not track partially used vials; QCDocRequired demands a non-empty
// note when approving a lot's QC status.
type LabPolicy struct {
	SealedCountsOnly bool
	QCDocRequired    bool
}

// PolicySource resolves the policy for a lab. Implementations may call out
// to external settings services; the service reads the policy before opening
// a transaction so resolution never blocks a commit.
type PolicySource interface {
	Resolve(ctx context.Context, labID string) (LabPolicy, error)
}

// StaticPolicySource returns the same policy for every lab.
type StaticPolicySource struct {
	Policy LabPolicy
}

// Resolve implements PolicySource.
func (s StaticPolicySource) Resolve(context.Context, string) (LabPolicy, error) {
	return s.Policy, nil
}

// CachedPolicySource wraps another source with a TTL cache keyed by lab. The
// cache and its TTL are explicit, injected parameters; staleness is bounded
// by the TTL and can be cut short with Invalidate.
type CachedPolicySource struct {
	source PolicySource
	cache  *expirable.LRU[string, LabPolicy]
}

// NewCachedPolicySource builds a caching wrapper holding up to size entries
// for at most ttl each.
func NewCachedPolicySource(source PolicySource, size int, ttl time.Duration) *CachedPolicySource {
	if size <= 0 {
		size = 128
	}
	return &CachedPolicySource{
		source: source,
		cache:  expirable.NewLRU[string, LabPolicy](size, nil, ttl),
	}
}

// Resolve returns the cached policy when fresh, falling through to the
// wrapped source otherwise.
func (c *CachedPolicySource) Resolve(ctx context.Context, labID string) (LabPolicy, error) {
	if policy, ok := c.cache.Get(labID); ok {
		return policy, nil
	}
	policy, err := c.source.Resolve(ctx, labID)
	if err != nil {
		return LabPolicy{}, err
	}
	c.cache.Add(labID, policy)
	return policy, nil
}

// Invalidate drops the cached entry for a lab.
func (c *CachedPolicySource) Invalidate(labID string) {
	c.cache.Remove(labID)
}
