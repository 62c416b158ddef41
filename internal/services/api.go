// Shared HTTP plumbing for catalog clients
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

const maxErrorBody = 500

// Option configures a catalog client.
type Option func(*apiClient)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *apiClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *apiClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *apiClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimiter spaces requests with limiter.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(c *apiClient) { c.limiter = limiter }
}

// WithQueryBudget charges one unit of budget per logical request.
func WithQueryBudget(budget *QueryBudget) Option {
	return func(c *apiClient) { c.budget = budget }
}

// WithMaxRetries sets the number of attempts for retryable failures.
func WithMaxRetries(n int) Option {
	return func(c *apiClient) {
		if n > 0 {
			c.maxTries = uint(n)
		}
	}
}

// WithBackOff overrides the retry backoff policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *apiClient) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *log.Logger) Option {
	return func(c *apiClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// apiClient performs JSON GET requests with budget accounting, rate limiting and retries.
type apiClient struct {
	httpClient *http.Client
	userAgent  string
	limiter    *RateLimiter
	budget     *QueryBudget
	maxTries   uint
	newBackOff func() backoff.BackOff
	logger     *log.Logger
}

func newAPIClient(opts ...Option) *apiClient {
	c := &apiClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "cv2mylar/1.0",
		maxTries:   3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.Multiplier = 2
			b.MaxInterval = 10 * time.Second
			return b
		},
		logger: shared.NewLogger(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// getJSON fetches endpoint with params and decodes the body into out. A *[]byte out receives the raw body.
//
// Budget is charged once before the first attempt. With retry set, transient failures are
// retried up to maxTries attempts and then reported as [shared.ErrTransientFetch].
func (c *apiClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any, retry bool) error {
	if c.budget != nil {
		if err := c.budget.Consume(1); err != nil {
			return err
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q: %v", shared.ErrFetch, endpoint, err)
	}
	u.RawQuery = params.Encode()

	tries := c.maxTries
	if !retry {
		tries = 1
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.attempt(ctx, u, out)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("request failed, retrying", "path", u.Path, "attempt", attempt, "next", next, "err", err)
		}),
	)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return err
	case errors.Is(err, shared.ErrAuth), errors.Is(err, shared.ErrFetch), errors.Is(err, shared.ErrBudgetExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s after %d attempt(s): %v", shared.ErrTransientFetch, u.Path, attempt, err)
	}
}

// attempt performs a single request. Errors that must not be retried are wrapped with [backoff.Permanent].
func (c *apiClient) attempt(ctx context.Context, u *url.URL, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to create request: %v", shared.ErrFetch, err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if raw, ok := out.(*[]byte); ok {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*raw = body
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to decode response: %v", shared.ErrFetch, err))
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("request timed out: %w", err)
	}
	return fmt.Errorf("request failed: %w", err)
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &statusError{StatusCode: resp.StatusCode, Body: string(body)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: %v", shared.ErrAuth, serr))
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return serr
	case resp.StatusCode == http.StatusConflict:
		return backoff.Permanent(fmt.Errorf("%w: %v", shared.ErrConflict, serr))
	default:
		return backoff.Permanent(fmt.Errorf("%w: %v", shared.ErrFetch, serr))
	}
}
