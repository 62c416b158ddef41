package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/cv2mylar/internal/shared"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum spacing between outbound requests.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter allowing one request per delay. A non-positive delay disables waiting.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Wait blocks until the next request may be sent. The first call never blocks.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.now()
	reservation := r.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return fmt.Errorf("rate limiter cannot reserve a request")
	}

	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := r.sleep(ctx, delay); err != nil {
		reservation.CancelAt(r.now())
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// QueryBudget counts reference catalog queries against a per-run ceiling.
type QueryBudget struct {
	mu   sync.Mutex
	max  int
	used int
}

// NewQueryBudget creates a budget of max queries. Values outside 1..200 fall back to 200.
func NewQueryBudget(max int) *QueryBudget {
	if max <= 0 || max > shared.MaxQueryBudget {
		max = shared.MaxQueryBudget
	}
	return &QueryBudget{max: max}
}

// Consume takes n queries from the budget, or none when fewer than n remain.
func (b *QueryBudget) Consume(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used+n > b.max {
		return fmt.Errorf("%w: %d of %d queries used", shared.ErrBudgetExceeded, b.used, b.max)
	}
	b.used += n
	return nil
}

// Remaining returns the number of queries left.
func (b *QueryBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.used
}

// Used returns the number of queries consumed so far.
func (b *QueryBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Max returns the ceiling.
func (b *QueryBudget) Max() int { return b.max }
