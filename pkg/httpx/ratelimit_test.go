package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okTransport(calls *atomic.Int32) http.RoundTripper {
	return roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
}

func TestHeaderKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("client-id", "  abc  ")

	require.Equal(t, "abc", httpx.HeaderKeyExtractor("client-id")(req))
	require.Equal(t, "", httpx.HeaderKeyExtractor("gstin")(req))
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Run("combines multiple extractors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("client-id", "client")
		req.Header.Set("gstin", "29AAACP7879D1Z0")

		extractor := httpx.CompositeKeyExtractor(":",
			httpx.HeaderKeyExtractor("client-id"),
			httpx.HeaderKeyExtractor("gstin"),
		)
		require.Equal(t, "client:29AAACP7879D1Z0", extractor(req))
	})

	t.Run("skips empty values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("client-id", "client")

		extractor := httpx.CompositeKeyExtractor(":",
			httpx.HeaderKeyExtractor("client-id"),
			httpx.HeaderKeyExtractor("gstin"),
		)
		require.Equal(t, "client", extractor(req))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(h http.Handler, clientID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/eicore/v1.03/Invoice", nil)
		if clientID != "" {
			req.Header.Set("client-id", clientID)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("blocks requests over limit with a portal envelope", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
		limited := httpx.RateLimitMiddleware(config, httpx.HeaderKeyExtractor("client-id"))(handler)

		for i := range 3 {
			require.Equal(t, http.StatusOK, send(limited, "a").Code, "request %d should succeed", i+1)
		}

		rec := send(limited, "a")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		require.JSONEq(t,
			`{"Status":0,"ErrorDetails":[{"ErrorCode":"429","ErrorMessage":"Too many requests. Please try again later."}]}`,
			rec.Body.String(),
		)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		limited := httpx.RateLimitMiddleware(config, httpx.HeaderKeyExtractor("client-id"))(handler)

		require.Equal(t, http.StatusOK, send(limited, "a").Code)
		require.Equal(t, http.StatusTooManyRequests, send(limited, "a").Code)
		require.Equal(t, http.StatusOK, send(limited, "b").Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		limited := httpx.RateLimitMiddleware(config, httpx.HeaderKeyExtractor("client-id"))(handler)

		for range 3 {
			require.Equal(t, http.StatusOK, send(limited, "").Code)
		}
	})
}

func TestRateLimitedTransport(t *testing.T) {
	t.Run("passes requests within burst", func(t *testing.T) {
		var calls atomic.Int32
		tr := httpx.NewRateLimitedTransport(okTransport(&calls), httpx.RateLimitConfig{
			RequestsPerWindow: 1, Window: time.Hour, Burst: 3,
		})

		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "http://portal.test/", nil)
			resp, err := tr.RoundTrip(req)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("waits honour the request context", func(t *testing.T) {
		var calls atomic.Int32
		tr := httpx.NewRateLimitedTransport(okTransport(&calls), httpx.RateLimitConfig{
			RequestsPerWindow: 1, Window: time.Hour, Burst: 1,
		})

		_, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "http://portal.test/", nil))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "http://portal.test/", nil).WithContext(ctx)

		_, err = tr.RoundTrip(req)
		require.Error(t, err)
		require.Contains(t, err.Error(), "rate limit wait")
		require.EqualValues(t, 1, calls.Load(), "the blocked request never reaches the wire")
	})

	t.Run("zero config is unlimited", func(t *testing.T) {
		var calls atomic.Int32
		tr := httpx.NewRateLimitedTransport(okTransport(&calls), httpx.RateLimitConfig{})

		for range 20 {
			_, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "http://portal.test/", nil))
			require.NoError(t, err)
		}
		require.EqualValues(t, 20, calls.Load())
	})
}

func TestPerSecond(t *testing.T) {
	cfg := httpx.PerSecond(5)
	require.Equal(t, 5, cfg.RequestsPerWindow)
	require.Equal(t, time.Second, cfg.Window)
	require.Equal(t, 5, cfg.Burst)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}
