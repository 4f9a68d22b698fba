package irnsdk

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Portal Codes
// ============================================================================

const (
	// CodeDuplicateIRN is the ErrorCode of a resubmitted document.
	CodeDuplicateIRN Code = "2150"

	// InfoDuplicateIRN is the InfoCd carrying the existing registration.
	InfoDuplicateIRN = "DUPIRN"
)

// ============================================================================
// RequestError - classified portal failure
// ============================================================================

// ErrorKind tells transport failures from business failures.
type ErrorKind int

const (
	// KindTransport means the portal answered with a non-200 HTTP status.
	KindTransport ErrorKind = iota + 1

	// KindBusiness means HTTP 200 with Status other than 1.
	KindBusiness
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// RequestError is returned when the portal rejects a call. The raw body is
// kept so nothing the portal said is lost.
type RequestError struct {
	Kind ErrorKind

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Message is "action failed" for business errors and "status N" for
	// transport errors.
	Message string

	// Body is the raw response body.
	Body []byte

	// Errors and Info are parsed from the envelope when it could be decoded.
	Errors []ErrorDetail
	Info   []InfoDetail
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if len(e.Errors) == 0 {
		return "irnsdk: " + e.Message
	}

	details := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		details = append(details, fmt.Sprintf("%s %s", d.ErrorCode, d.ErrorMessage))
	}
	return fmt.Sprintf("irnsdk: %s: %s", e.Message, strings.Join(details, "; "))
}

// HasCode reports whether the portal returned code among ErrorDetails.
func (e *RequestError) HasCode(code Code) bool {
	for _, d := range e.Errors {
		if d.ErrorCode == code {
			return true
		}
	}
	return false
}

// DuplicateIRN returns the IRN of the existing registration when the portal
// rejected a resubmitted document.
func (e *RequestError) DuplicateIRN() (string, bool) {
	info, ok := e.Duplicate()
	return info.Irn, ok
}

// Duplicate returns the full DUPIRN details.
func (e *RequestError) Duplicate() (DuplicateInfo, bool) {
	for _, d := range e.Info {
		if info, ok := d.Duplicate(); ok {
			return info, true
		}
	}
	return DuplicateInfo{}, false
}

// IsBusiness reports whether err is a business-level RequestError.
func IsBusiness(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Kind == KindBusiness
}

// IsTransport reports whether err is a transport-level RequestError.
func IsTransport(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Kind == KindTransport
}

// ============================================================================
// GenerateTokenError - no usable session
// ============================================================================

// ErrNoSessionKey is wrapped by GenerateTokenError when an authenticated
// call is made before GenerateToken succeeded.
var ErrNoSessionKey = errors.New("irnsdk: no session key, call GenerateToken first")

// GenerateTokenError is returned when the session holds no token, or the
// auth exchange could not be completed.
type GenerateTokenError struct {
	Err error
}

// Error implements the error interface.
func (e *GenerateTokenError) Error() string {
	if errors.Is(e.Err, ErrNoSessionKey) {
		return e.Err.Error()
	}
	return fmt.Sprintf("irnsdk: generate token: %v", e.Err)
}

// Unwrap returns the cause.
func (e *GenerateTokenError) Unwrap() error {
	return e.Err
}
