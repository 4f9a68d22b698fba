package irnsdk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// Session is one registrant's encrypted session with the portal. It holds
// the AuthToken and the session encryption key (SEK) issued together by
// GenerateToken; every other call encrypts with that SEK.
//
// A Session never refreshes on its own. When the token expires the portal
// rejects calls and the caller decides when to call GenerateToken again.
type Session struct {
	client *SDKClient
	creds  Credentials

	padding    cryptox.Padding
	cache      *tokencache.Cache
	cacheSet   bool
	gspHeaders map[string]string
	logger     *slog.Logger
	metrics    *metricsx.Metrics

	mu        sync.RWMutex
	authToken string
	sek       string
	expiresAt time.Time
}

// Credentials returns the credentials the session was created with.
func (s *Session) Credentials() Credentials {
	return s.creds
}

// AuthToken returns the current token, or "" before GenerateToken.
func (s *Session) AuthToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken
}

// SEK returns the current session key in base64, or "".
func (s *Session) SEK() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sek
}

// ExpiresAt returns the server-declared token expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Authenticated reports whether the session holds a token and key.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken != "" && s.sek != ""
}

// adopt replaces the token/key pair as one unit.
func (s *Session) adopt(entry tokencache.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authToken = entry.Token
	s.sek = entry.SEK
	s.expiresAt = entry.Expiry
}

// current returns the token/key pair as one unit.
func (s *Session) current() (token, sek string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken, s.sek
}
