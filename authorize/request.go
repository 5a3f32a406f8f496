// Package authorize implements the authorization endpoint engine: the
// request state machine spanning client validation, response type and
// mode resolution, PKCE, consent orchestration and redirect dispatch.
package authorize

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// Request is the transient per-exchange aggregate carried through the
// authorization flow. It lives for one flow only; when the flow spans
// several HTTP round trips (login, consent) an external session
// collaborator stores and restores it.
type Request struct {
	// Client is the validated target client.
	Client *clients.Client

	// Query holds the raw authorization request parameters.
	Query url.Values

	// Account is the authenticated resource owner, nil before login.
	Account *users.Account

	// ResponseTypes is the resolved, space-split response_type set.
	ResponseTypes []string

	// ResponseMode delivers the response parameters once the flow
	// finishes. Resolved by the engine.
	ResponseMode ResponseMode

	// RedirectURI is the validated redirect target.
	RedirectURI string

	// Scope is the effective scope after policy resolution.
	Scope string

	// ResponseParameters accumulates the parameters the response types
	// produce (code, token, ...).
	ResponseParameters *databag.DataBag

	// Authorized records the resource owner's decision once one exists.
	Authorized bool
}

// NewRequest wraps raw query parameters.
func NewRequest(query url.Values) *Request {
	return &Request{
		Query:              query,
		ResponseParameters: databag.New(),
	}
}

// Param returns a raw query parameter.
func (r *Request) Param(name string) string {
	return r.Query.Get(name)
}

// State returns the client's CSRF state value, echoed on every response.
func (r *Request) State() string {
	return r.Param("state")
}

// MaxAge returns the effective max_age requirement: the request
// parameter when present, else the client's default_max_age metadata.
// ok is false when neither is set.
func (r *Request) MaxAge() (time.Duration, bool) {
	if raw := r.Param("max_age"); raw != "" {
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second, true
		}
	}
	if r.Client != nil {
		if seconds := r.Client.Metadata.GetInt64("default_max_age"); seconds > 0 {
			return time.Duration(seconds) * time.Second, true
		}
	}
	return 0, false
}

// HasPrompt reports whether the OIDC prompt parameter contains value.
func (r *Request) HasPrompt(value string) bool {
	for _, p := range strings.Fields(r.Param("prompt")) {
		if p == value {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the resolved set contains name.
func (r *Request) HasResponseType(name string) bool {
	for _, rt := range r.ResponseTypes {
		if rt == name {
			return true
		}
	}
	return false
}
