package irnsdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// ============================================================================
// Credentials
// ============================================================================

// Credentials identify one registrant against the portal. The value is
// immutable once handed to a Session and every field takes part in the token
// cache key.
type Credentials struct {
	// GSTIN of the registrant making the calls.
	GSTIN string

	// ClientID and ClientSecret are the API credentials issued by the portal
	// (or by the GSP in between).
	ClientID     string
	ClientSecret string

	// Username and Password are the API user's login.
	Username string
	Password string

	// PublicKey is the portal's RSA public key, as PEM or as the bare base64
	// DER the portal distributes.
	PublicKey string

	// BaseURL overrides the SDKClient's base URL for this registrant.
	BaseURL string
}

// CacheFields returns the token cache key material.
func (c Credentials) CacheFields() tokencache.Fields {
	return tokencache.Fields{
		"gstin":         c.GSTIN,
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"username":      c.Username,
		"password":      c.Password,
		"public_key":    c.PublicKey,
		"base_url":      c.BaseURL,
	}
}

// ============================================================================
// Response Envelope
// ============================================================================

// Status is the portal's business outcome flag. The portal sends it either
// as a number or as a string.
type Status int

const (
	StatusFailure Status = 0
	StatusSuccess Status = 1
)

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	if raw == "" || raw == "null" {
		*s = StatusFailure
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid Status %s", b)
	}
	*s = Status(n)
	return nil
}

// Code is an error or info code. The portal is inconsistent about sending
// them as numbers or strings; both decode to the same Code.
type Code string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Code) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	*c = Code(b)
	return nil
}

// Response is the portal's response envelope. After a successful Get or
// Post, Data holds the decrypted JSON document.
type Response struct {
	Status       Status          `json:"Status"`
	Data         json.RawMessage `json:"Data,omitempty"`
	ErrorDetails []ErrorDetail   `json:"ErrorDetails,omitempty"`
	InfoDtls     []InfoDetail    `json:"InfoDtls,omitempty"`
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// Document returns Data as a generic JSON object.
func (r *Response) Document() (Document, error) {
	var doc Document
	if err := r.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ErrorDetail is one entry of ErrorDetails.
type ErrorDetail struct {
	ErrorCode    Code   `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// InfoDetail is one entry of InfoDtls. The shape of Desc depends on InfoCd.
type InfoDetail struct {
	InfoCd string          `json:"InfoCd"`
	Desc   json.RawMessage `json:"Desc,omitempty"`
}

// DuplicateInfo is the Desc of a DUPIRN info entry: the registration that
// already exists for the submitted document.
type DuplicateInfo struct {
	AckNo json.Number `json:"AckNo"`
	AckDt string      `json:"AckDt"`
	Irn   string      `json:"Irn"`
}

// Duplicate decodes Desc when this is a DUPIRN entry.
func (d InfoDetail) Duplicate() (DuplicateInfo, bool) {
	if d.InfoCd != InfoDuplicateIRN || len(d.Desc) == 0 {
		return DuplicateInfo{}, false
	}

	var info DuplicateInfo
	if err := json.Unmarshal(d.Desc, &info); err != nil {
		return DuplicateInfo{}, false
	}
	return info, info.Irn != ""
}

// ============================================================================
// Documents
// ============================================================================

// Document is a decoded portal document (party details, registered
// invoice). The SDK passes documents through without interpreting them.
type Document map[string]any

// String returns the string value of key, or "" if absent or not a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// ============================================================================
// Internal Wire Types
// ============================================================================

// authPayload is the plaintext of the auth request, before base64 and RSA.
type authPayload struct {
	UserName                string `json:"UserName"`
	Password                string `json:"Password"`
	AppKey                  string `json:"AppKey"`
	ForceRefreshAccessToken bool   `json:"ForceRefreshAccessToken"`
}

// authData is the (unencrypted) Data object of a successful auth response.
type authData struct {
	ClientID    string `json:"ClientId"`
	UserName    string `json:"UserName"`
	AuthToken   string `json:"AuthToken"`
	Sek         string `json:"Sek"`
	TokenExpiry string `json:"TokenExpiry"`
}

// dataRequest wraps every request body.
type dataRequest struct {
	Data string `json:"Data"`
}
