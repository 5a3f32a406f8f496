package oauth2

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a protocol error code as defined by RFC 6749, RFC 6750
// and OIDC Core. These codes are part of the wire contract and stable.
type ErrorCode string

const (
	ErrCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrCodeInvalidClient           ErrorCode = "invalid_client"
	ErrCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrCodeInvalidToken            ErrorCode = "invalid_token"
	ErrCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrCodeAccessDenied            ErrorCode = "access_denied"
	ErrCodeLoginRequired           ErrorCode = "login_required"
	ErrCodeConsentRequired         ErrorCode = "consent_required"
	ErrCodeInsufficientScope       ErrorCode = "insufficient_scope"
	ErrCodeServerError             ErrorCode = "server_error"

	// RFC 7591 dynamic client registration error codes.
	ErrCodeInvalidClientMetadata    ErrorCode = "invalid_client_metadata"
	ErrCodeInvalidRedirectURI       ErrorCode = "invalid_redirect_uri"
	ErrCodeInvalidSoftwareStatement ErrorCode = "invalid_software_statement"
)

// Error is a protocol-level OAuth2 error. It is user visible: the code
// and description are serialized into the error response body, so they
// must never carry internal detail. Collaborator failures are wrapped
// into a generic server_error via ServerError before leaving the engine.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`

	// State echoes the client's state parameter on authorization-endpoint
	// errors delivered by redirect. Not serialized at the token endpoint.
	State string `json:"state,omitempty"`
}

// NewError builds a protocol error.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// ServerError hides an internal failure behind a generic protocol error.
// The underlying error must be logged by the caller, never serialized.
func ServerError() *Error {
	return &Error{Code: ErrCodeServerError}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the given state value.
func (e *Error) WithState(state string) *Error {
	out := *e
	out.State = state
	return &out
}

// StatusCode maps the error code onto the HTTP status used when the
// error is delivered as a direct JSON response.
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrCodeInvalidClient, ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied, ErrCodeInsufficientScope:
		return http.StatusForbidden
	case ErrCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Params returns the error encoded as response parameters, for delivery
// through an authorization-endpoint response mode.
func (e *Error) Params() map[string]string {
	params := map[string]string{"error": string(e.Code)}
	if e.Description != "" {
		params["error_description"] = e.Description
	}
	if e.State != "" {
		params["state"] = e.State
	}
	return params
}

// Challenge renders a WWW-Authenticate header value for 401 responses.
// schemes lists the authentication schemes the server supports (for
// example "Basic"); the first scheme carries the realm and error fields.
func (e *Error) Challenge(realm string, schemes ...string) string {
	if len(schemes) == 0 {
		schemes = []string{"Basic"}
	}
	parts := make([]string, 0, len(schemes))
	for i, scheme := range schemes {
		if i == 0 {
			parts = append(parts, fmt.Sprintf("%s realm=%q,error=%q,error_description=%q",
				scheme, realm, string(e.Code), e.Description))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s realm=%q", scheme, realm))
	}
	return strings.Join(parts, ", ")
}

// AsError returns the protocol error contained in err, or wraps err into
// a generic server_error when it is not a protocol error. The engines use
// this at their boundaries so collaborator failures never leak detail.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr
	}
	return ServerError()
}
