package irnsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/httpx"
	"github.com/aussiebroadwan/gstirn/pkg/slogx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

const (
	// SandboxURL is the portal's public sandbox.
	SandboxURL = "https://einv-apisandbox.nic.in"

	authPath         = "/eivital/v1.04/auth"
	partyPath        = "/eivital/v1.04/Master/gstin/"
	invoicePath      = "/eicore/v1.03/Invoice"
	invoiceByIRNPath = "/eicore/v1.03/Invoice/irn/"
)

// SDKClient holds the HTTP plumbing shared by all sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// ClientOption configures an SDKClient.
type ClientOption func(*SDKClient)

// WithHTTPClient starts from a copy of hc instead of the default client.
// Later options change the copy, never hc. A nil hc keeps the default.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *SDKClient) {
		if hc == nil {
			c.HTTPClient = defaultHTTPClient()
			return
		}
		cp := *hc
		c.HTTPClient = &cp
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *SDKClient) { c.HTTPClient.Timeout = d }
}

// WithRateLimit makes the client wait for the limiter before each request.
// The portal throttles per client-id; staying under its limit is cheaper
// than handling its rejections.
func WithRateLimit(cfg httpx.RateLimitConfig) ClientOption {
	return func(c *SDKClient) {
		c.HTTPClient.Transport = httpx.NewRateLimitedTransport(c.HTTPClient.Transport, cfg)
	}
}

// WithRequestLogging logs every outbound request (never headers or bodies).
func WithRequestLogging(logger *slog.Logger) ClientOption {
	return func(c *SDKClient) {
		c.HTTPClient.Transport = slogx.NewTransport(c.HTTPClient.Transport, logger)
	}
}

// NewSDKClient creates a client for the portal at baseURL.
func NewSDKClient(baseURL string, opts ...ClientOption) *SDKClient {
	c := &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// NewSession creates an unauthenticated session for creds. Call
// GenerateToken before any other operation.
//
// Unless WithCache or WithoutCache is given, tokens are cached in
// tokencache.DefaultDir under the working directory.
func (c *SDKClient) NewSession(creds Credentials, opts ...SessionOption) *Session {
	if creds.BaseURL == "" {
		creds.BaseURL = c.BaseURL
	}
	creds.BaseURL = strings.TrimSuffix(creds.BaseURL, "/")

	s := &Session{
		client:  c,
		creds:   creds,
		padding: cryptox.PaddingPKCS1v15,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.cacheSet {
		s.cache = tokencache.New(
			tokencache.NewFileBackend(tokencache.DefaultDir),
			tokencache.WithLogger(s.logger),
			tokencache.WithMetrics(s.metrics),
		)
	}
	return s
}
