package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joeycumines/hostbridge/internal/dispatch"
)

// ErrRateLimited rejects a call whose target has no tokens left. The server
// reports it as ResourceExhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit wraps resolver so that each resolved target gets a token bucket
// of rps calls per second with the given burst. Identifiers that fail to
// resolve never get a bucket. rps <= 0 returns resolver unchanged.
func RateLimit(resolver dispatch.Resolver, rps float64, burst int) dispatch.Resolver {
	return rateLimit(resolver, rps, burst, time.Now)
}

func rateLimit(resolver dispatch.Resolver, rps float64, burst int, now func() time.Time) dispatch.Resolver {
	lim := newTargetLimiter(rps, burst)
	if lim == nil {
		return resolver
	}
	return &limitedResolver{next: resolver, limiter: lim, now: now}
}

type limitedResolver struct {
	next    dispatch.Resolver
	limiter *targetLimiter
	now     func() time.Time
}

func (r *limitedResolver) Resolve(ctx context.Context, id string) (dispatch.Target, error) {
	target, err := r.next.Resolve(ctx, id)
	if err != nil || target == nil {
		return target, err
	}
	return &limitedTarget{id: id, next: target, resolver: r}, nil
}

// limitedTarget charges a token only for commands the target supports.
type limitedTarget struct {
	id       string
	next     dispatch.Target
	resolver *limitedResolver
}

func (t *limitedTarget) Command(name string) (dispatch.Command, bool) {
	cmd, ok := t.next.Command(name)
	if !ok {
		return cmd, false
	}
	handler := cmd.Handler
	cmd.Handler = func(ctx context.Context, call *dispatch.Call) {
		if !t.resolver.limiter.allow(t.id, t.resolver.now()) {
			call.Reject(fmt.Errorf("%w for %q", ErrRateLimited, t.id))
			return
		}
		handler(ctx, call)
	}
	return cmd, true
}

// targetLimiter applies a token bucket per target name. A nil limiter
// allows everything.
type targetLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	byTarget map[string]*rate.Limiter
}

func newTargetLimiter(rps float64, burst int) *targetLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &targetLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		byTarget: make(map[string]*rate.Limiter),
	}
}

// allow reports whether one call to target may proceed at now. Callers only
// pass resolved targets.
func (l *targetLimiter) allow(target string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.byTarget[target]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byTarget[target] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

func (l *targetLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTarget)
}
