package httpx

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultClientLimit keeps a single client well under the portal's
// per-client-id throttle.
var DefaultClientLimit = RateLimitConfig{
	RequestsPerWindow: 600,
	Window:            time.Minute,
	Burst:             10,
}

// PerSecond returns a config allowing rps requests per second with an
// equal burst.
func PerSecond(rps int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: rps, Window: time.Second, Burst: rps}
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

func (c RateLimitConfig) burst() int {
	if c.Burst <= 0 {
		return 1
	}
	return c.Burst
}

// RateLimitedTransport is an http.RoundTripper that waits for a token before
// every request. Waiting honours the request context, so a cancelled call
// gives up its place instead of blocking.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base (http.DefaultTransport when nil).
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig) *RateLimitedTransport {
	return &RateLimitedTransport{
		Base:    base,
		limiter: rate.NewLimiter(config.limit(), config.burst()),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	next := t.Base
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., client ID, GSTIN, etc.)
type KeyExtractor func(*http.Request) string

// HeaderKeyExtractor keys requests on a header value, e.g. the portal's
// client-id header.
func HeaderKeyExtractor(name string) KeyExtractor {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", HeaderKeyExtractor("client-id"), HeaderKeyExtractor("gstin"))
// would produce keys like "client123:29AAACP7879D1Z0"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup removes limiters that have refilled completely, which means
// their key has been idle.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}

	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware creates a server-side rate limiting middleware. The
// fake portal uses it to reproduce the real portal's throttling response.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	rl := &rateLimiter{
		rate:        config.limit(),
		burst:       config.burst(),
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(key)

			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", config.Window.String())

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"Status": 0,
					"ErrorDetails": []map[string]string{{
						"ErrorCode":    "429",
						"ErrorMessage": "Too many requests. Please try again later.",
					}},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
