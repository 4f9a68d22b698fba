package irnsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// GenerateToken makes the session usable.
//
// Unless force is set, a cached token for the same credentials is adopted
// without any network call. Otherwise the session authenticates: a fresh
// application key and the login are RSA-encrypted to the portal, which
// answers with an AuthToken and the SEK encrypted under the application
// key. The new pair replaces the old one in the session and in the cache.
//
// A portal rejection is a *RequestError and leaves the session and the
// cache untouched. Failing to reach the portal is a *GenerateTokenError.
func (s *Session) GenerateToken(ctx context.Context, force bool) error {
	fields := s.creds.CacheFields()

	if !force && s.cache != nil {
		if entry, ok := s.cache.Lookup(ctx, fields); ok {
			s.adopt(entry)
			s.logger.DebugContext(ctx, "auth token reused from cache",
				"gstin", s.creds.GSTIN,
				"expires_at", entry.Expiry,
			)
			return nil
		}
	}

	start := time.Now()
	entry, err := s.authenticate(ctx, force)
	s.metrics.Auth(outcomeOf(err), time.Since(start))
	if err != nil {
		return err
	}

	s.adopt(entry)
	s.logger.InfoContext(ctx, "auth token issued",
		"gstin", s.creds.GSTIN,
		"forced", force,
		"expires_at", entry.Expiry,
	)

	if s.cache != nil {
		s.cache.Store(ctx, fields, entry)
	}
	return nil
}

// authenticate performs the auth exchange and returns the decrypted pair.
func (s *Session) authenticate(ctx context.Context, force bool) (tokencache.Entry, error) {
	appKey, err := cryptox.NewApplicationKey()
	if err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	payload, err := json.Marshal(authPayload{
		UserName:                s.creds.Username,
		Password:                s.creds.Password,
		AppKey:                  appKey,
		ForceRefreshAccessToken: force,
	})
	if err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	ciphertext, err := cryptox.EncryptAsymmetric([]byte(encoded), s.creds.PublicKey, s.padding)
	if err != nil {
		return tokencache.Entry{}, fmt.Errorf("failed to encrypt auth payload: %w", err)
	}

	body, err := json.Marshal(dataRequest{Data: ciphertext})
	if err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, s.url(authPath), bytes.NewReader(body), s.authHeaders())
	if err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	envelope, err := s.classify(ctx, resp)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return tokencache.Entry{}, err
		}
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	var data authData
	if err := envelope.Decode(&data); err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}
	if data.AuthToken == "" || data.Sek == "" {
		return tokencache.Entry{}, &GenerateTokenError{Err: errors.New("auth response has no AuthToken or Sek")}
	}

	sek, err := cryptox.DecryptSymmetric(data.Sek, appKey)
	if err != nil {
		return tokencache.Entry{}, fmt.Errorf("failed to decrypt session key: %w", err)
	}

	expiry, err := tokencache.ParseExpiry(data.TokenExpiry)
	if err != nil {
		return tokencache.Entry{}, &GenerateTokenError{Err: err}
	}

	return tokencache.Entry{
		Token:  data.AuthToken,
		SEK:    base64.StdEncoding.EncodeToString(sek),
		Expiry: expiry,
	}, nil
}

// outcomeOf maps an operation error to its metrics label.
func outcomeOf(err error) string {
	var (
		reqErr    *RequestError
		cryptoErr *cryptox.CryptoError
	)
	switch {
	case err == nil:
		return metricsx.OutcomeOK
	case errors.As(err, &reqErr) && reqErr.Kind == KindBusiness:
		return metricsx.OutcomeBusiness
	case errors.As(err, &reqErr):
		return metricsx.OutcomeTransport
	case errors.As(err, &cryptoErr):
		return metricsx.OutcomeCrypto
	default:
		return metricsx.OutcomeNetwork
	}
}
