// Package clientauth authenticates the caller of the token, introspection
// and revocation endpoints as a registered client.
package clientauth

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Credentials is what a method extracted from the inbound request.
type Credentials struct {
	ClientID  string
	Secret    string
	Assertion string
}

// Method recognises one credential shape. FindCredentials reports
// whether the request carries that shape; Validate checks the extracted
// credential against the registered client.
type Method interface {
	Name() oauth2.AuthMethod
	FindCredentials(r *http.Request) (*Credentials, bool)
	Validate(client *clients.Client, credentials *Credentials, now time.Time) error
}

// errAuthenticationFailed is the single validation failure used
// everywhere in this package: the caller must not learn whether the
// client id or the credential was wrong.
var errAuthenticationFailed = oauth2.NewError(oauth2.ErrCodeInvalidClient, "Client authentication failed.")

// Registry is the immutable method registry plus the client lookup it
// authenticates against. Built once at process start.
type Registry struct {
	methods []Method
	clients clients.Repo
	realm   string
	nowFunc func() time.Time
}

type RegistryOption func(*Registry)

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// NewRegistry registers methods in order. Order matters: methods whose
// credential shape is a subset of another's (the "none" method only
// needs client_id) must be registered after the more specific ones.
func NewRegistry(clientRepo clients.Repo, realm string, methods []Method, options ...RegistryOption) *Registry {
	r := &Registry{
		methods: methods,
		clients: clientRepo,
		realm:   realm,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Names returns the registered method names in registration order.
func (r *Registry) Names() []oauth2.AuthMethod {
	out := make([]oauth2.AuthMethod, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m.Name())
	}
	return out
}

// Has reports whether a method name is registered.
func (r *Registry) Has(name oauth2.AuthMethod) bool {
	for _, m := range r.methods {
		if m.Name() == name {
			return true
		}
	}
	return false
}

// Realm is the protection realm announced in challenges.
func (r *Registry) Realm() string { return r.realm }

// Schemes lists the HTTP authentication schemes announced in the
// WWW-Authenticate challenge.
func (r *Registry) Schemes() []string { return []string{"Basic"} }

// Authenticate resolves the method matching the request's credential
// shape, loads the client and validates the credential. The method used
// must equal the client's registered token_endpoint_auth_method: a
// different method is rejected even with otherwise-valid credentials so
// a client cannot be downgraded to a weaker method.
//
// Every failure is the same vague invalid_client error.
func (r *Registry) Authenticate(req *http.Request) (*clients.Client, error) {
	for _, method := range r.methods {
		credentials, ok := method.FindCredentials(req)
		if !ok {
			continue
		}
		client, err := r.clients.Get(credentials.ClientID)
		if err != nil || client == nil {
			return nil, errAuthenticationFailed
		}
		if client.TokenEndpointAuthMethod() != method.Name() {
			return nil, errAuthenticationFailed
		}
		if err := method.Validate(client, credentials, r.nowFunc()); err != nil {
			return nil, errAuthenticationFailed
		}
		return client, nil
	}
	return nil, errAuthenticationFailed
}
