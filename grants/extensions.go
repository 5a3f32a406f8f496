package grants

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// ScopeExtension is the before-issuance extension that resolves the
// requested scope through the policy engine and validates it against
// the client's allowed scope set.
type ScopeExtension struct {
	policies *scopes.Manager
}

// NewScopeExtension builds the extension over the policy manager.
func NewScopeExtension(policies *scopes.Manager) *ScopeExtension {
	return &ScopeExtension{policies: policies}
}

func (s *ScopeExtension) Handle(ctx context.Context, data *GrantTypeData, next chain.Next[*GrantTypeData]) (*GrantTypeData, error) {
	resolved, err := s.policies.Apply(data.Scope, data.Client)
	if err != nil {
		return nil, err
	}
	if err := s.policies.Check(resolved, data.Client); err != nil {
		return nil, err
	}
	data.Scope = resolved
	return next(ctx, data)
}

// OpenIDConnectExtension is the after-issuance extension that attaches
// an id_token to the payload when the openid scope was granted and the
// grant bound a resource owner other than the client itself.
type OpenIDConnectExtension struct {
	tokens   *token.Manager
	accounts users.Repo
}

// NewOpenIDConnectExtension builds the extension.
func NewOpenIDConnectExtension(tokens *token.Manager, accounts users.Repo) *OpenIDConnectExtension {
	return &OpenIDConnectExtension{tokens: tokens, accounts: accounts}
}

func (o *OpenIDConnectExtension) Handle(ctx context.Context, result *IssuanceResult, next chain.Next[*IssuanceResult]) (*IssuanceResult, error) {
	data := result.Data
	if !hasScope(data.Scope, "openid") || data.ResourceOwnerID == "" || data.ResourceOwnerID == data.Client.ID {
		return next(ctx, result)
	}
	account, err := o.accounts.GetByID(data.ResourceOwnerID)
	if err != nil {
		return nil, oauth2.ServerError()
	}
	idToken, err := o.tokens.IssueIDToken(
		data.Client,
		account,
		data.Metadata.GetString(token.ParamRedirectURI),
		data.Metadata.GetString(token.ParamNonce),
		data.Scope,
	)
	if err != nil {
		return nil, oauth2.ServerError()
	}
	result.Payload.Set("id_token", idToken)
	return next(ctx, result)
}

func hasScope(scope, wanted string) bool {
	for _, s := range strings.Fields(scope) {
		if s == wanted {
			return true
		}
	}
	return false
}
