package grants

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// ResourceOwnerCredentialManager is the external collaborator checking
// resource-owner passwords for the password grant. Check returns the
// account id on success; a mismatch and an unknown user must be
// indistinguishable.
type ResourceOwnerCredentialManager interface {
	Check(username, password string) (string, bool)
}

// Password implements the resource-owner password credentials grant.
// Credential verification is fully delegated to the injected manager.
type Password struct {
	credentials ResourceOwnerCredentialManager
}

// NewPassword builds the grant over the credential manager.
func NewPassword(credentials ResourceOwnerCredentialManager) *Password {
	return &Password{credentials: credentials}
}

func (*Password) Name() oauth2.GrantType { return oauth2.PasswordGrant }

func (*Password) AssociatedResponseTypes() []oauth2.ResponseType { return nil }

func (*Password) CheckRequest(r *http.Request) error {
	if r.PostFormValue("username") == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "username" parameter is missing.`)
	}
	if r.PostFormValue("password") == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "password" parameter is missing.`)
	}
	return nil
}

func (*Password) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (g *Password) Grant(_ context.Context, r *http.Request, data *GrantTypeData) error {
	ownerID, ok := g.credentials.Check(r.PostFormValue("username"), r.PostFormValue("password"))
	if !ok {
		return oauth2.NewError(oauth2.ErrCodeInvalidGrant, "The resource owner credentials are invalid.")
	}
	data.ResourceOwnerID = ownerID
	data.IssueRefreshToken = true
	return nil
}
