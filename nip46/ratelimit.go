package nip46

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientBudget is the multi-tier rate budget for a single client pubkey:
// a 10-second burst limiter plus per-minute and per-hour ceilings.
type clientBudget struct {
	burst     *rate.Limiter
	perMinute *rate.Limiter
	perHour   *rate.Limiter
}

func newClientBudget(p *Policy) *clientBudget {
	return &clientBudget{
		burst:     rate.NewLimiter(rate.Every(10*time.Second/time.Duration(p.RateLimitBurst)), p.RateLimitBurst),
		perMinute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.RateLimitPerMinute)), p.RateLimitPerMinute),
		perHour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(p.RateLimitPerHour)), p.RateLimitPerHour),
	}
}

func (b *clientBudget) allow() bool {
	return b.burst.Allow() && b.perMinute.Allow() && b.perHour.Allow()
}

// RateLimiter gates inbound requests per client pubkey, per the bunker's
// multi-tier policy (default 10/10s, 60/min, 1000/hour).
type RateLimiter struct {
	mu      sync.Mutex
	policy  *Policy
	budgets map[string]*clientBudget
}

func NewRateLimiter(policy *Policy) *RateLimiter {
	return &RateLimiter{policy: policy, budgets: make(map[string]*clientBudget)}
}

// Allow reports whether clientPubkey may make another request right now.
func (r *RateLimiter) Allow(clientPubkey string) bool {
	r.mu.Lock()
	b, ok := r.budgets[clientPubkey]
	if !ok {
		b = newClientBudget(r.policy)
		r.budgets[clientPubkey] = b
	}
	r.mu.Unlock()
	return b.allow()
}

func (r *RateLimiter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budgets = make(map[string]*clientBudget)
}
