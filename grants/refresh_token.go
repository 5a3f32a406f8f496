package grants

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
)

var invalidRefreshToken = oauth2.NewError(oauth2.ErrCodeInvalidGrant, "The refresh token is invalid or has expired.")

// RefreshToken implements the refresh_token grant. The consumed token is
// rotated: revoked on success and replaced in the response.
type RefreshToken struct {
	tokens *token.Manager
}

// NewRefreshToken builds the grant over the token manager.
func NewRefreshToken(tokens *token.Manager) *RefreshToken {
	return &RefreshToken{tokens: tokens}
}

func (*RefreshToken) Name() oauth2.GrantType { return oauth2.RefreshTokenGrant }

func (*RefreshToken) AssociatedResponseTypes() []oauth2.ResponseType { return nil }

func (*RefreshToken) CheckRequest(r *http.Request) error {
	if r.PostFormValue("refresh_token") == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "refresh_token" parameter is missing.`)
	}
	return nil
}

func (*RefreshToken) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (g *RefreshToken) Grant(_ context.Context, r *http.Request, data *GrantTypeData) error {
	record, err := g.tokens.GetRefreshToken(r.PostFormValue("refresh_token"))
	if err != nil {
		return invalidRefreshToken
	}
	if record.ClientID != data.Client.ID {
		return invalidRefreshToken
	}

	// A narrower scope may be requested on refresh; a wider one may not.
	if data.Scope == "" {
		data.Scope = record.Scope()
	} else if !scopeSubset(data.Scope, record.Scope()) {
		return oauth2.NewError(oauth2.ErrCodeInvalidScope, "The requested scope exceeds the scope of the refresh token.")
	}

	data.ResourceOwnerID = record.ResourceOwnerID
	data.consumedRefreshToken = record
	return nil
}

func scopeSubset(requested, granted string) bool {
	grantedSet := make(map[string]bool)
	for _, s := range strings.Fields(granted) {
		grantedSet[s] = true
	}
	for _, s := range strings.Fields(requested) {
		if !grantedSet[s] {
			return false
		}
	}
	return true
}
