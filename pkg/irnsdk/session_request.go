package irnsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
)

// Get performs an authenticated GET. path is relative to the base URL
// unless absolute. The returned envelope carries the decrypted Data.
func (s *Session) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return s.do(ctx, "get", http.MethodGet, path, nil, headers)
}

// Post JSON-encodes body, encrypts it with the SEK and performs an
// authenticated POST. The returned envelope carries the decrypted Data.
func (s *Session) Post(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return s.do(ctx, "post", http.MethodPost, path, body, headers)
}

// do is the single request path of every authenticated operation. It makes
// exactly one HTTP call and never retries.
func (s *Session) do(
	ctx context.Context,
	operation, method, path string,
	payload any,
	headers map[string]string,
) (_ *Response, err error) {
	token, sek := s.current()
	if sek == "" {
		return nil, &GenerateTokenError{Err: ErrNoSessionKey}
	}

	start := time.Now()
	defer func() {
		s.metrics.Request(operation, outcomeOf(err), time.Since(start))
	}()

	var body io.Reader
	if method != http.MethodGet {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}

		ciphertext, err := cryptox.EncryptSymmetric(raw, sek)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt request: %w", err)
		}

		wrapped, err := json.Marshal(dataRequest{Data: ciphertext})
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(wrapped)
	}

	resp, err := s.client.doRequest(ctx, method, s.url(path), body, s.sessionHeaders(token, headers))
	if err != nil {
		return nil, err
	}

	envelope, err := s.classify(ctx, resp)
	if err != nil {
		return nil, err
	}

	if err := decryptData(envelope, sek); err != nil {
		return nil, err
	}
	return envelope, nil
}

// document runs do and returns Data as a Document.
func (s *Session) document(
	ctx context.Context,
	operation, method, path string,
	payload any,
	headers map[string]string,
) (Document, error) {
	envelope, err := s.do(ctx, operation, method, path, payload, headers)
	if err != nil {
		return nil, err
	}
	return envelope.Document()
}
