package registration

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/grants"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/scopes"
)

// GrantTypeRule validates grant_types against the registered grant types
// and checks that every requested response_type is compatible with them.
// Defaults: grant_types ["authorization_code"], response_types derived
// from the accepted grant types.
type GrantTypeRule struct {
	grantTypes *grants.Registry
}

// NewGrantTypeRule builds the rule over the grant-type registry.
func NewGrantTypeRule(grantTypes *grants.Registry) *GrantTypeRule {
	return &GrantTypeRule{grantTypes: grantTypes}
}

func (r *GrantTypeRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	requested := regCtx.Requested.GetStringSlice(clients.MetadataGrantTypes)
	if len(requested) == 0 {
		requested = []string{string(oauth2.AuthorizationCodeGrant)}
	}
	for _, name := range requested {
		if !r.grantTypes.Has(oauth2.GrantType(name)) {
			return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
				fmt.Sprintf("The grant type %q is not supported.", name))
		}
	}

	compatible := make(map[string]bool)
	var derived []string
	for _, rt := range r.grantTypes.ResponseTypesFor(requested) {
		compatible[string(rt)] = true
		derived = append(derived, string(rt))
	}

	responseTypes := regCtx.Requested.GetStringSlice(clients.MetadataResponseTypes)
	if len(responseTypes) == 0 {
		responseTypes = derived
	}
	for _, combination := range responseTypes {
		for _, name := range strings.Fields(combination) {
			if !compatible[name] {
				return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
					fmt.Sprintf("The response type %q does not match the registered grant types.", name))
			}
		}
	}

	regCtx.Validated.Set(clients.MetadataGrantTypes, requested)
	regCtx.Validated.Set(clients.MetadataResponseTypes, responseTypes)
	return next(ctx, regCtx)
}

// RedirectURIRule checks each redirect_uri for URL or URN shape. Path
// traversal segments are rejected unless the rule allows them.
type RedirectURIRule struct {
	AllowTraversal bool
}

func (r RedirectURIRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	uris := regCtx.Requested.GetStringSlice(clients.MetadataRedirectURIs)
	for _, raw := range uris {
		if err := r.checkURI(raw); err != nil {
			return regCtx, err
		}
	}
	if len(uris) > 0 {
		regCtx.Validated.Set(clients.MetadataRedirectURIs, uris)
	}
	return next(ctx, regCtx)
}

func (r RedirectURIRule) checkURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRedirectURI,
			fmt.Sprintf("The redirect URI %q is malformed.", raw))
	}
	if parsed.Fragment != "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRedirectURI,
			fmt.Sprintf("The redirect URI %q must not contain a fragment.", raw))
	}
	if parsed.Opaque != "" {
		// URN form, e.g. urn:ietf:wg:oauth:2.0:oob.
		return nil
	}
	if parsed.Host == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRedirectURI,
			fmt.Sprintf("The redirect URI %q is malformed.", raw))
	}
	if !r.AllowTraversal {
		for _, segment := range strings.Split(parsed.Path, "/") {
			if segment == ".." {
				return oauth2.NewError(oauth2.ErrCodeInvalidRedirectURI,
					fmt.Sprintf("The redirect URI %q must not traverse paths.", raw))
			}
		}
	}
	return nil
}

// ContactsRule requires every contact to be an e-mail shaped string.
type ContactsRule struct{}

func (ContactsRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	contacts := regCtx.Requested.GetStringSlice(clients.MetadataContacts)
	for _, contact := range contacts {
		if _, err := mail.ParseAddress(contact); err != nil {
			return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
				fmt.Sprintf("The contact %q is not a valid e-mail address.", contact))
		}
	}
	if len(contacts) > 0 {
		regCtx.Validated.Set(clients.MetadataContacts, contacts)
	}
	return next(ctx, regCtx)
}

// ScopeRule validates the requested scope format and the scope_policy
// name against the policy registry.
type ScopeRule struct {
	policies *scopes.Manager
}

// NewScopeRule builds the rule over the scope-policy registry.
func NewScopeRule(policies *scopes.Manager) *ScopeRule {
	return &ScopeRule{policies: policies}
}

func (r *ScopeRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	if scope := regCtx.Requested.GetString(clients.MetadataScope); scope != "" {
		for _, token := range strings.Fields(scope) {
			if !validScopeToken(token) {
				return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
					fmt.Sprintf("The scope %q contains illegal characters.", token))
			}
		}
		regCtx.Validated.Set(clients.MetadataScope, scope)
	}
	if policy := regCtx.Requested.GetString(clients.MetadataScopePolicy); policy != "" {
		if !r.policies.Has(policy) {
			return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
				fmt.Sprintf("The scope policy %q is unknown.", policy))
		}
		regCtx.Validated.Set(clients.MetadataScopePolicy, policy)
	}
	if defaultScope := regCtx.Requested.GetString(clients.MetadataDefaultScope); defaultScope != "" {
		regCtx.Validated.Set(clients.MetadataDefaultScope, defaultScope)
	}
	return next(ctx, regCtx)
}

// validScopeToken enforces the RFC 6749 scope-token charset.
func validScopeToken(token string) bool {
	for _, c := range token {
		if c == 0x21 || (c >= 0x23 && c <= 0x5b) || (c >= 0x5d && c <= 0x7e) {
			continue
		}
		return false
	}
	return token != ""
}

// AuthMethodRule validates token_endpoint_auth_method against the
// client-authentication registry.
type AuthMethodRule struct {
	methods *clientauth.Registry
}

// NewAuthMethodRule builds the rule over the client-auth registry.
func NewAuthMethodRule(methods *clientauth.Registry) *AuthMethodRule {
	return &AuthMethodRule{methods: methods}
}

func (r *AuthMethodRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	method := regCtx.Requested.GetString(clients.MetadataTokenEndpointAuthMethod)
	if method == "" {
		method = string(oauth2.AuthMethodClientSecretBasic)
	}
	if !r.methods.Has(oauth2.AuthMethod(method)) {
		return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata,
			fmt.Sprintf("The token endpoint auth method %q is not supported.", method))
	}
	regCtx.Validated.Set(clients.MetadataTokenEndpointAuthMethod, method)
	return next(ctx, regCtx)
}

// PassthroughRule copies informational metadata that needs no
// validation beyond being present.
type PassthroughRule struct {
	Keys []string
}

func (r PassthroughRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	for _, key := range r.Keys {
		if regCtx.Requested.Has(key) {
			regCtx.Validated.Set(key, regCtx.Requested.Get(key))
		}
	}
	return next(ctx, regCtx)
}
