package grants

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/token"
)

// invalidGrant is the uniform failure for every authorization-code
// defect: unknown, expired, replayed, wrong client, wrong redirect_uri
// or a failed PKCE check. One message avoids turning the token endpoint
// into a code-probing oracle.
var invalidGrant = oauth2.NewError(oauth2.ErrCodeInvalidGrant, "The authorization code is invalid or has expired.")

// AuthorizationCode implements the authorization_code grant, exchanging
// a code issued by the authorization endpoint for tokens.
type AuthorizationCode struct {
	codes       token.AuthorizationCodeRepo
	pkceMethods *pkce.Registry
	nowFunc     func() time.Time
}

// NewAuthorizationCode builds the grant over the code store and the
// PKCE method registry.
func NewAuthorizationCode(codes token.AuthorizationCodeRepo, pkceMethods *pkce.Registry, nowFunc func() time.Time) *AuthorizationCode {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &AuthorizationCode{codes: codes, pkceMethods: pkceMethods, nowFunc: nowFunc}
}

func (*AuthorizationCode) Name() oauth2.GrantType { return oauth2.AuthorizationCodeGrant }

func (*AuthorizationCode) AssociatedResponseTypes() []oauth2.ResponseType {
	return []oauth2.ResponseType{oauth2.CodeResponseType}
}

func (*AuthorizationCode) CheckRequest(r *http.Request) error {
	if r.PostFormValue("code") == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "code" parameter is missing.`)
	}
	return nil
}

func (*AuthorizationCode) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (g *AuthorizationCode) Grant(_ context.Context, r *http.Request, data *GrantTypeData) error {
	code, err := g.codes.Get(r.PostFormValue("code"))
	if err != nil {
		return invalidGrant
	}
	now := g.nowFunc()
	if code.Used || code.Revoked || code.Expired(now) {
		return invalidGrant
	}
	if code.ClientID != data.Client.ID {
		return invalidGrant
	}
	if code.RedirectURI != "" && code.RedirectURI != r.PostFormValue("redirect_uri") {
		return invalidGrant
	}
	if err := g.verifyPKCE(code, r.PostFormValue("code_verifier")); err != nil {
		return err
	}

	// Single use: marking the code consumed must happen before issuance
	// so a concurrent replay cannot win the race.
	if err := g.codes.MarkUsed(code.Code); err != nil {
		return invalidGrant
	}

	data.ResourceOwnerID = code.ResourceOwnerID
	data.Scope = code.Scope()
	data.IssueRefreshToken = true
	data.Metadata.Set(token.ParamRedirectURI, code.RedirectURI)
	if nonce := code.QueryParameters.GetString(token.ParamNonce); nonce != "" {
		data.Metadata.Set(token.ParamNonce, nonce)
	}
	return nil
}

func (g *AuthorizationCode) verifyPKCE(code *token.AuthorizationCode, codeVerifier string) error {
	challenge := code.CodeChallenge()
	if challenge == "" {
		// The code was issued without PKCE; a stray verifier is ignored.
		return nil
	}
	if codeVerifier == "" {
		return invalidGrant
	}
	if err := g.pkceMethods.Verify(code.CodeChallengeMethod(), codeVerifier, challenge); err != nil {
		return invalidGrant
	}
	return nil
}
