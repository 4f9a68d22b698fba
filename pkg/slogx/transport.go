package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/idx"
)

// RequestIDHeader carries the per-call ID so portal-side logs can be matched.
const RequestIDHeader = "X-Request-ID"

// Transport is an http.RoundTripper that logs every outbound request. Only
// the method, path, status and timing are logged: portal headers carry
// credentials and bodies are ciphertext.
type Transport struct {
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Logger defaults to the logger in the request context.
	Logger *slog.Logger
}

// NewTransport wraps base with request logging.
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	base := t.Logger
	if base == nil {
		base = FromContext(req.Context())
	}
	logger := base.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	next := t.Base
	if next == nil {
		next = http.DefaultTransport
	}

	resp, err := next.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.WarnContext(req.Context(), "http_request_failed",
			"err", err,
			"duration_ms", duration,
		)
		return nil, err
	}

	logger.InfoContext(req.Context(), "http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
