package grants

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// authorizationOnly backs grant-type names that exist purely so clients
// can register them and so the authorization endpoint can associate
// response types with them. Invoking one at the token endpoint is
// always invalid_grant.
type authorizationOnly struct {
	name          oauth2.GrantType
	responseTypes []oauth2.ResponseType
}

// NewImplicit returns the "implicit" grant-type placeholder backing the
// "token" response type.
func NewImplicit() GrantType {
	return &authorizationOnly{
		name:          oauth2.ImplicitGrant,
		responseTypes: []oauth2.ResponseType{oauth2.TokenResponseType},
	}
}

// NewNone returns the "none" grant-type placeholder backing the "none"
// response type.
func NewNone() GrantType {
	return &authorizationOnly{
		name:          oauth2.NoneGrant,
		responseTypes: []oauth2.ResponseType{oauth2.NoneResponseType},
	}
}

func (g *authorizationOnly) Name() oauth2.GrantType { return g.name }

func (g *authorizationOnly) AssociatedResponseTypes() []oauth2.ResponseType {
	return g.responseTypes
}

func (g *authorizationOnly) CheckRequest(*http.Request) error { return nil }

func (g *authorizationOnly) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (g *authorizationOnly) Grant(context.Context, *http.Request, *GrantTypeData) error {
	return oauth2.NewError(oauth2.ErrCodeInvalidGrant, `The grant type "`+string(g.name)+`" cannot be used at the token endpoint.`)
}
