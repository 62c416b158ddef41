package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestAPIClient(t *testing.T) {
	t.Run("sends user agent and decodes json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("User-Agent"); got != "test-agent/1.0" {
				t.Errorf("expected user agent test-agent/1.0, got %q", got)
			}
			if r.URL.Query().Get("q") != "x" {
				t.Errorf("expected query q=x, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"value": 42}`))
		}))
		defer server.Close()

		client := newAPIClient(WithUserAgent("test-agent/1.0"))
		var out struct{ Value int }
		if err := client.getJSON(context.Background(), server.URL, url.Values{"q": {"x"}}, &out, true); err != nil {
			t.Fatalf("getJSON() error = %v", err)
		}
		if out.Value != 42 {
			t.Errorf("expected 42, got %d", out.Value)
		}
	})

	t.Run("retries 5xx and charges budget once", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		budget := NewQueryBudget(10)
		client := newAPIClient(WithBackOff(noWait), WithQueryBudget(budget))
		var out map[string]any
		if err := client.getJSON(context.Background(), server.URL, nil, &out, true); err != nil {
			t.Fatalf("getJSON() error = %v", err)
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", hits.Load())
		}
		if budget.Used() != 1 {
			t.Errorf("expected one budget unit, got %d", budget.Used())
		}
	})

	t.Run("exhausted retries are transient fetch errors", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newAPIClient(WithBackOff(noWait), WithMaxRetries(3))
		var out map[string]any
		err := client.getJSON(context.Background(), server.URL, nil, &out, true)
		if !errors.Is(err, shared.ErrTransientFetch) {
			t.Errorf("expected ErrTransientFetch, got %v", err)
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", hits.Load())
		}
	})

	t.Run("auth failures are not retried", func(t *testing.T) {
		for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(status)
			}))

			client := newAPIClient(WithBackOff(noWait))
			var out map[string]any
			err := client.getJSON(context.Background(), server.URL, nil, &out, true)
			server.Close()

			if !errors.Is(err, shared.ErrAuth) {
				t.Errorf("status %d: expected ErrAuth, got %v", status, err)
			}
			if hits.Load() != 1 {
				t.Errorf("status %d: expected a single attempt, got %d", status, hits.Load())
			}
		}
	})

	t.Run("other 4xx are permanent fetch errors", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		client := newAPIClient(WithBackOff(noWait))
		var out map[string]any
		err := client.getJSON(context.Background(), server.URL, nil, &out, true)
		if !errors.Is(err, shared.ErrFetch) || errors.Is(err, shared.ErrTransientFetch) {
			t.Errorf("expected permanent ErrFetch, got %v", err)
		}
		if hits.Load() != 1 {
			t.Errorf("expected one attempt, got %d", hits.Load())
		}
	})

	t.Run("connection errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		})

		client := newAPIClient(WithHTTPClient(&http.Client{Transport: transport}), WithBackOff(noWait))
		var out map[string]any
		err := client.getJSON(context.Background(), "http://catalog.invalid/api", nil, &out, true)
		if !errors.Is(err, shared.ErrTransientFetch) {
			t.Errorf("expected ErrTransientFetch, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("timeouts are retried", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				time.Sleep(200 * time.Millisecond)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := newAPIClient(WithTimeout(50*time.Millisecond), WithBackOff(noWait))
		var out map[string]any
		if err := client.getJSON(context.Background(), server.URL, nil, &out, true); err != nil {
			t.Fatalf("expected retry after timeout to succeed, got %v", err)
		}
		if hits.Load() != 2 {
			t.Errorf("expected 2 attempts, got %d", hits.Load())
		}
	})

	t.Run("single attempt when retry disabled", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newAPIClient(WithBackOff(noWait))
		var out map[string]any
		err := client.getJSON(context.Background(), server.URL, nil, &out, false)
		if !errors.Is(err, shared.ErrTransientFetch) {
			t.Errorf("expected ErrTransientFetch, got %v", err)
		}
		if hits.Load() != 1 {
			t.Errorf("expected one attempt, got %d", hits.Load())
		}
	})

	t.Run("exhausted budget sends nothing", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		budget := NewQueryBudget(1)
		_ = budget.Consume(1)
		client := newAPIClient(WithQueryBudget(budget))
		var out map[string]any
		err := client.getJSON(context.Background(), server.URL, nil, &out, true)
		if !errors.Is(err, shared.ErrBudgetExceeded) {
			t.Errorf("expected ErrBudgetExceeded, got %v", err)
		}
		if hits.Load() != 0 {
			t.Errorf("expected no request, got %d", hits.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := newAPIClient(WithBackOff(noWait), WithRateLimiter(NewRateLimiter(time.Second)))
		var out map[string]any
		err := client.getJSON(ctx, "http://catalog.invalid/api", nil, &out, true)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
