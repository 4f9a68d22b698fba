// Package irntest runs an in-process fake of the e-invoice portal for tests.
//
// The fake implements the real handshake (RSA-encrypted login, SEK issued
// under the application key) and the party, invoice and IRN endpoints with
// portal-shaped envelopes, so SDK code runs against it unchanged.
package irntest

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/httpx"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/jwtx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

const authPath = "/eivital/v1.04/auth"

// Error codes the fake answers with.
const (
	CodeInvalidToken  = "1005"
	CodeInvalidLogin  = "1010"
	CodeInvalidClient = "1011"
	CodeBadRequest    = "2172"
	CodeDuplicateIRN  = "2150"
	CodeNotFound      = "3001"
)

// Failure is a response forced with FailNext.
type Failure struct {
	// HTTPStatus other than 0 or 200 produces a transport failure.
	HTTPStatus int

	// Code and Message fill ErrorDetails for a business failure.
	Code    string
	Message string
}

// Request is a recorded incoming request.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Portal is a running fake portal.
type Portal struct {
	// URL is the base URL to point an SDKClient at.
	URL string

	GSTIN        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	// PublicKey is the PEM encryption key clients authenticate with.
	PublicKey string

	// SigningKey is the PEM key SignedInvoice and SignedQRCode verify with.
	SigningKey string

	server   *httptest.Server
	private  *rsa.PrivateKey
	signer   jwtx.Signer
	padding  cryptox.Padding
	tokenTTL time.Duration
	trailing []byte
	limit    *httpx.RateLimitConfig
	now      func() time.Time

	mu            sync.Mutex
	authCalls     int
	requests      []Request
	failures      []Failure
	sessions      map[string]string
	parties       map[string]irnsdk.Document
	registrations map[string]*registration
	ackNo         int64
}

// Option configures a Portal.
type Option func(*Portal)

// WithPadding selects the RSA padding the portal decrypts logins with.
func WithPadding(padding cryptox.Padding) Option {
	return func(p *Portal) { p.padding = padding }
}

// WithTokenTTL sets the lifetime of issued tokens (default 6h, like the
// real portal).
func WithTokenTTL(d time.Duration) Option {
	return func(p *Portal) { p.tokenTTL = d }
}

// WithTrailingBytes appends b to every decrypted response payload, the way
// the sandbox does.
func WithTrailingBytes(b []byte) Option {
	return func(p *Portal) { p.trailing = b }
}

// WithRateLimit throttles requests per client-id.
func WithRateLimit(cfg httpx.RateLimitConfig) Option {
	return func(p *Portal) { p.limit = &cfg }
}

// WithParty registers a GSTIN for party lookups.
func WithParty(gstin string, doc irnsdk.Document) Option {
	return func(p *Portal) { p.parties[gstin] = doc }
}

// WithClock sets the portal's clock.
func WithClock(now func() time.Time) Option {
	return func(p *Portal) { p.now = now }
}

var (
	keyOnce sync.Once
	keyPEM  []byte
	keyErr  error
)

// sharedKey generates one RSA key per test binary.
func sharedKey() ([]byte, error) {
	keyOnce.Do(func() {
		keyPEM, keyErr = cryptox.GenerateRSAKey(2048)
	})
	return keyPEM, keyErr
}

// New starts a portal and stops it when the test ends.
func New(t testing.TB, opts ...Option) *Portal {
	t.Helper()

	privPEM, err := sharedKey()
	if err != nil {
		t.Fatalf("irntest: generate key: %v", err)
	}
	private, err := cryptox.ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("irntest: parse key: %v", err)
	}
	public, err := cryptox.PublicKeyPEM(privPEM)
	if err != nil {
		t.Fatalf("irntest: public key: %v", err)
	}
	signer, err := jwtx.NewSignerRS256("irntest", privPEM)
	if err != nil {
		t.Fatalf("irntest: signer: %v", err)
	}

	p := &Portal{
		GSTIN:         "29AAACP7879D1Z0",
		ClientID:      "AAACP29TXP3GK9N",
		ClientSecret:  "s3cr3t",
		Username:      "API_TEST",
		Password:      "pa55w0rd",
		PublicKey:     public,
		SigningKey:    public,
		private:       private,
		signer:        signer,
		padding:       cryptox.PaddingPKCS1v15,
		tokenTTL:      6 * time.Hour,
		now:           time.Now,
		sessions:      make(map[string]string),
		parties:       make(map[string]irnsdk.Document),
		registrations: make(map[string]*registration),
		ackNo:         112010000000000,
	}
	for _, opt := range opts {
		opt(p)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+authPath, p.handleAuth)
	mux.HandleFunc("GET /eivital/v1.04/Master/gstin/{gstin}", p.authenticated(p.handleParty))
	mux.HandleFunc("POST /eicore/v1.03/Invoice", p.authenticated(p.handleGenerate))
	mux.HandleFunc("GET /eicore/v1.03/Invoice/irn/{irn}", p.authenticated(p.handleGetByIRN))

	mws := []httpx.Middleware{p.record, p.inject}
	if p.limit != nil {
		mws = append(mws, httpx.RateLimitMiddleware(*p.limit, httpx.CompositeKeyExtractor(":",
			httpx.HeaderKeyExtractor("client-id"),
			httpx.HeaderKeyExtractor("gstin"),
		)))
	}

	p.server = httptest.NewServer(httpx.Chain(mux, mws...))
	p.URL = p.server.URL
	t.Cleanup(p.server.Close)

	return p
}

// Close stops the server early, e.g. to simulate an unreachable portal.
func (p *Portal) Close() {
	p.server.Close()
}

// Credentials returns credentials the portal accepts.
func (p *Portal) Credentials() irnsdk.Credentials {
	return irnsdk.Credentials{
		GSTIN:        p.GSTIN,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Username:     p.Username,
		Password:     p.Password,
		PublicKey:    p.PublicKey,
		BaseURL:      p.URL,
	}
}

// PublicKeyDER returns the encryption key as bare base64 DER, the form the
// portal distributes it in.
func (p *Portal) PublicKeyDER() string {
	lines := strings.Split(strings.TrimSpace(p.PublicKey), "\n")
	return strings.Join(lines[1:len(lines)-1], "")
}

// AddParty registers a GSTIN for party lookups.
func (p *Portal) AddParty(gstin string, doc irnsdk.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parties[gstin] = doc
}

// FailNext queues failures for the next requests, one each.
func (p *Portal) FailNext(failures ...Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, failures...)
}

// AuthCalls returns how many auth requests reached the portal.
func (p *Portal) AuthCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authCalls
}

// Requests returns every request received so far.
func (p *Portal) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// LastRequest returns the most recent request, or false if none.
func (p *Portal) LastRequest() (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return Request{}, false
	}
	return p.requests[len(p.requests)-1], true
}

// RevokeTokens forgets every issued token, as if they all expired.
func (p *Portal) RevokeTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]string)
}

// SEKFor returns the base64 SEK issued with token.
func (p *Portal) SEKFor(token string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sek, ok := p.sessions[token]
	return sek, ok
}

// IssueToken registers a token and SEK as if issued by an auth call and
// returns them as a cache entry. Use it to seed caches.
func (p *Portal) IssueToken() (tokencache.Entry, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return tokencache.Entry{}, err
	}
	sek, err := cryptox.NewApplicationKey()
	if err != nil {
		return tokencache.Entry{}, err
	}

	p.mu.Lock()
	p.sessions[token] = sek
	p.mu.Unlock()

	return tokencache.Entry{
		Token:  token,
		SEK:    sek,
		Expiry: p.now().Add(p.tokenTTL).In(tokencache.IST).Truncate(time.Second),
	}, nil
}

// ============================================================================
// Middleware
// ============================================================================

func (p *Portal) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
		})
		if r.URL.Path == authPath {
			p.authCalls++
		}
		p.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (p *Portal) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		var (
			f  Failure
			ok bool
		)
		if len(p.failures) > 0 {
			f, p.failures, ok = p.failures[0], p.failures[1:], true
		}
		p.mu.Unlock()

		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if f.HTTPStatus != 0 && f.HTTPStatus != http.StatusOK {
			http.Error(w, http.StatusText(f.HTTPStatus), f.HTTPStatus)
			return
		}
		writeError(w, f.Code, f.Message, nil)
	})
}

// authenticated resolves the SEK for the request's AuthToken.
func (p *Portal) authenticated(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.clientValid(r) {
			writeError(w, CodeInvalidClient, "Invalid Client-ID/Client-Secret", nil)
			return
		}
		if r.Header.Get("user_name") != p.Username {
			writeError(w, CodeInvalidToken, "Invalid Token", nil)
			return
		}

		p.mu.Lock()
		sek, ok := p.sessions[r.Header.Get("AuthToken")]
		p.mu.Unlock()
		if !ok {
			writeError(w, CodeInvalidToken, "Invalid Token", nil)
			return
		}

		next(w, r, sek)
	}
}

func (p *Portal) clientValid(r *http.Request) bool {
	return r.Header.Get("client-id") == p.ClientID &&
		r.Header.Get("client-secret") == p.ClientSecret &&
		r.Header.Get("gstin") == p.GSTIN
}

// ============================================================================
// Responses
// ============================================================================

type errorDetail struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

type infoDetail struct {
	InfoCd string `json:"InfoCd"`
	Desc   any    `json:"Desc"`
}

func writeError(w http.ResponseWriter, code, message string, info []infoDetail) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"Status":       "0",
		"ErrorDetails": []errorDetail{{ErrorCode: code, ErrorMessage: message}},
		"InfoDtls":     info,
	})
}

// writeData encrypts doc with sek and writes a success envelope.
func (p *Portal) writeData(w http.ResponseWriter, doc any, sek string) {
	raw, err := json.Marshal(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	raw = append(raw, p.trailing...)

	ciphertext, err := cryptox.EncryptSymmetric(raw, sek)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"Status": 1,
		"Data":   ciphertext,
	})
}

// readData decrypts the {"Data": ...} body of a request.
func readData(r *http.Request, sek string, v any) error {
	var body struct {
		Data string `json:"Data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return err
	}

	plaintext, err := cryptox.DecryptSymmetric(body.Data, sek)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// ============================================================================
// Handlers
// ============================================================================

type authRequest struct {
	UserName                string `json:"UserName"`
	Password                string `json:"Password"`
	AppKey                  string `json:"AppKey"`
	ForceRefreshAccessToken bool   `json:"ForceRefreshAccessToken"`
}

func (p *Portal) handleAuth(w http.ResponseWriter, r *http.Request) {
	if !p.clientValid(r) {
		writeError(w, CodeInvalidClient, "Invalid Client-ID/Client-Secret", nil)
		return
	}

	var body struct {
		Data string `json:"Data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, CodeBadRequest, "Invalid request format", nil)
		return
	}

	decrypted, err := cryptox.DecryptAsymmetric(body.Data, p.private, p.padding)
	if err != nil {
		writeError(w, CodeBadRequest, "Unable to decrypt the request", nil)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(string(decrypted))
	if err != nil {
		writeError(w, CodeBadRequest, "Request is not base64 encoded", nil)
		return
	}

	var req authRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		writeError(w, CodeBadRequest, "Invalid request format", nil)
		return
	}
	if req.UserName != p.Username || req.Password != p.Password {
		writeError(w, CodeInvalidLogin, "Invalid UserName or Password", nil)
		return
	}

	entry, err := p.IssueToken()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rawSEK, err := base64.StdEncoding.DecodeString(entry.SEK)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	encryptedSEK, err := cryptox.EncryptSymmetric(rawSEK, req.AppKey)
	if err != nil {
		writeError(w, CodeBadRequest, "Invalid AppKey", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"Status": 1,
		"Data": map[string]any{
			"ClientId":    p.ClientID,
			"UserName":    p.Username,
			"AuthToken":   entry.Token,
			"Sek":         encryptedSEK,
			"TokenExpiry": tokencache.FormatExpiry(entry.Expiry),
		},
	})
}

func (p *Portal) handleParty(w http.ResponseWriter, r *http.Request, sek string) {
	gstin := r.PathValue("gstin")

	p.mu.Lock()
	doc, ok := p.parties[gstin]
	p.mu.Unlock()
	if !ok {
		writeError(w, CodeNotFound, "Requested data is not available", nil)
		return
	}

	p.writeData(w, doc, sek)
}

func (p *Portal) handleGetByIRN(w http.ResponseWriter, r *http.Request, sek string) {
	irn := r.PathValue("irn")

	p.mu.Lock()
	reg, ok := p.registrations[irn]
	p.mu.Unlock()
	if !ok {
		writeError(w, CodeNotFound, "Requested data is not available", nil)
		return
	}

	if sup := r.Header.Get("sup_gstin"); sup != "" && sup != reg.seller {
		writeError(w, CodeNotFound, "Requested data is not available", nil)
		return
	}

	p.writeData(w, reg.doc, sek)
}
