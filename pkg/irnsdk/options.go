package irnsdk

import (
	"log/slog"
	"maps"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPadding selects the RSA padding of the auth payload. Portal versions
// differ; PKCS#1 v1.5 is the default.
func WithPadding(p cryptox.Padding) SessionOption {
	return func(s *Session) { s.padding = p }
}

// WithCache uses cache for token reuse across sessions and processes.
func WithCache(cache *tokencache.Cache) SessionOption {
	return func(s *Session) {
		s.cache = cache
		s.cacheSet = true
	}
}

// WithoutCache disables token caching. Every GenerateToken call then
// authenticates against the portal.
func WithoutCache() SessionOption {
	return WithCache(nil)
}

// WithGSPHeaders adds headers to every request, including auth. GSPs
// usually require their own credentials next to the portal's.
func WithGSPHeaders(headers map[string]string) SessionOption {
	return func(s *Session) { s.gspHeaders = maps.Clone(headers) }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics reports auth and request outcomes to m.
func WithMetrics(m *metricsx.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}
