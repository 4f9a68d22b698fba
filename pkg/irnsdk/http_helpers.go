package irnsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
)

// Header names the portal expects.
const (
	headerClientID     = "client-id"
	headerClientSecret = "client-secret"
	headerGSTIN        = "gstin"
	headerUserName     = "user_name"
	headerAuthToken    = "AuthToken"
	headerSupplier     = "sup_gstin"
)

// url resolves path against the session's base URL. Absolute URLs are used
// as given.
func (s *Session) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.creds.BaseURL + path
}

// doRequest performs an HTTP request with the SDKClient's HTTP client.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, url string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Set custom headers
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// authHeaders are the headers of the auth call.
func (s *Session) authHeaders() map[string]string {
	headers := map[string]string{
		headerClientID:     s.creds.ClientID,
		headerClientSecret: s.creds.ClientSecret,
		headerGSTIN:        s.creds.GSTIN,
	}
	for k, v := range s.gspHeaders {
		headers[k] = v
	}
	return headers
}

// sessionHeaders are the headers of every authenticated call. extra wins
// over everything else.
func (s *Session) sessionHeaders(token string, extra map[string]string) map[string]string {
	headers := s.authHeaders()
	headers[headerUserName] = s.creds.Username
	headers[headerAuthToken] = token
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

// classify reads resp and sorts it into success or a RequestError:
//
//   - HTTP status other than 200 is a KindTransport error.
//   - HTTP 200 with Status other than 1 is a KindBusiness error.
//
// Both keep the raw body and whatever ErrorDetails/InfoDtls could be parsed.
func (s *Session) classify(ctx context.Context, resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope Response
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode != http.StatusOK {
		reqErr := &RequestError{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d", resp.StatusCode),
			Body:       body,
		}
		if decodeErr == nil {
			reqErr.Errors = envelope.ErrorDetails
			reqErr.Info = envelope.InfoDtls
		}
		s.logRequestError(ctx, resp, reqErr)
		return nil, reqErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if envelope.Status != StatusSuccess {
		reqErr := &RequestError{
			Kind:       KindBusiness,
			StatusCode: resp.StatusCode,
			Message:    "action failed",
			Body:       body,
			Errors:     envelope.ErrorDetails,
			Info:       envelope.InfoDtls,
		}
		s.logRequestError(ctx, resp, reqErr)
		return nil, reqErr
	}

	return &envelope, nil
}

func (s *Session) logRequestError(ctx context.Context, resp *http.Response, err *RequestError) {
	s.logger.ErrorContext(ctx, "portal request failed",
		"kind", err.Kind.String(),
		"path", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"body", string(err.Body),
	)
}

// decryptData replaces the encrypted Data string of envelope with the
// decrypted JSON document.
func decryptData(envelope *Response, sek string) error {
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		envelope.Data = nil
		return nil
	}

	var ciphertext string
	if err := json.Unmarshal(envelope.Data, &ciphertext); err != nil {
		// Some endpoints answer with plaintext JSON.
		return nil
	}

	plaintext, err := cryptox.DecryptSymmetricString(ciphertext, sek)
	if err != nil {
		return fmt.Errorf("failed to decrypt response data: %w", err)
	}

	if !json.Valid([]byte(plaintext)) {
		plaintext = cryptox.TruncateToJSON(plaintext)
		if !json.Valid([]byte(plaintext)) {
			return &cryptox.CryptoError{Op: "decode response data", Err: cryptox.ErrInvalidCiphertext}
		}
	}

	envelope.Data = json.RawMessage(plaintext)
	return nil
}
