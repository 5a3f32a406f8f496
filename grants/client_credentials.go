package grants

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// ClientCredentials implements the client_credentials grant: the client
// acts on its own behalf, so the resource owner is the client itself.
// No refresh token is issued (RFC 6749 section 4.4.3).
type ClientCredentials struct{}

func (ClientCredentials) Name() oauth2.GrantType { return oauth2.ClientCredentialsGrant }

func (ClientCredentials) AssociatedResponseTypes() []oauth2.ResponseType { return nil }

func (ClientCredentials) CheckRequest(*http.Request) error { return nil }

func (ClientCredentials) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (ClientCredentials) Grant(_ context.Context, _ *http.Request, data *GrantTypeData) error {
	data.ResourceOwnerID = data.Client.ID
	return nil
}
