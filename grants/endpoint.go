package grants

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
)

// IssuanceResult is the subject of the after-issuance extension chain:
// the pipeline state plus the response payload under construction.
// Extensions may attach custom members to Payload.
type IssuanceResult struct {
	Data         *GrantTypeData
	AccessToken  string
	RefreshToken string
	Payload      *databag.DataBag
}

// Endpoint dispatches token-endpoint requests across the grant-type
// registry, running the before- and after-issuance extension chains
// around token creation.
type Endpoint struct {
	grantTypes *Registry
	clientAuth *clientauth.Registry
	tokens     *token.Manager
	before     *chain.Chain[*GrantTypeData]
	after      *chain.Chain[*IssuanceResult]
	nowFunc    func() time.Time
}

type EndpointOption func(*Endpoint)

// WithBeforeIssuance sets the before-issuance extension chain. Scope
// resolution (NewScopeExtension) normally lives here.
func WithBeforeIssuance(before *chain.Chain[*GrantTypeData]) EndpointOption {
	return func(e *Endpoint) {
		e.before = before
	}
}

// WithAfterIssuance sets the after-issuance extension chain.
func WithAfterIssuance(after *chain.Chain[*IssuanceResult]) EndpointOption {
	return func(e *Endpoint) {
		e.after = after
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) EndpointOption {
	return func(e *Endpoint) {
		e.nowFunc = now
	}
}

// NewEndpoint builds the token endpoint engine.
func NewEndpoint(grantTypes *Registry, clientAuth *clientauth.Registry, tokens *token.Manager, options ...EndpointOption) *Endpoint {
	e := &Endpoint{
		grantTypes: grantTypes,
		clientAuth: clientAuth,
		tokens:     tokens,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// ClientAuth exposes the registry for challenge rendering at the HTTP
// layer.
func (e *Endpoint) ClientAuth() *clientauth.Registry { return e.clientAuth }

// GrantTypes exposes the grant-type registry (discovery document,
// registration rules).
func (e *Endpoint) GrantTypes() *Registry { return e.grantTypes }

// Handle runs one token-endpoint exchange and returns the response
// payload. All failures are *oauth2.Error; anything else a collaborator
// raised has already been collapsed into server_error.
func (e *Endpoint) Handle(ctx context.Context, r *http.Request) (*databag.DataBag, error) {
	grantTypeName := r.PostFormValue("grant_type")
	if grantTypeName == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "grant_type" parameter is missing.`)
	}
	grantType, ok := e.grantTypes.Get(oauth2.GrantType(grantTypeName))
	if !ok {
		return nil, oauth2.NewError(oauth2.ErrCodeUnsupportedGrantType, `The grant type "`+grantTypeName+`" is not supported by this server.`)
	}

	client, err := e.clientAuth.Authenticate(r)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if !client.HasGrantType(grantTypeName) {
		return nil, oauth2.NewError(oauth2.ErrCodeUnauthorizedClient, `The grant type "`+grantTypeName+`" is unauthorized for this client.`)
	}

	if err := grantType.CheckRequest(r); err != nil {
		return nil, oauth2.AsError(err)
	}

	data := NewGrantTypeData(client)
	data.Scope = r.PostFormValue("scope")

	data, err = e.before.Process(ctx, data)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if err := grantType.PrepareResponse(ctx, r, data); err != nil {
		return nil, oauth2.AsError(err)
	}
	if err := grantType.Grant(ctx, r, data); err != nil {
		return nil, oauth2.AsError(err)
	}

	return e.issue(ctx, data)
}

// issue persists the tokens and assembles the payload through the
// after-issuance chain.
func (e *Endpoint) issue(ctx context.Context, data *GrantTypeData) (*databag.DataBag, error) {
	accessToken, _, err := e.tokens.IssueAccessToken(data.Client, data.ResourceOwnerID, data.Scope, data.Metadata)
	if err != nil {
		return nil, oauth2.AsError(err)
	}

	result := &IssuanceResult{
		Data:        data,
		AccessToken: accessToken,
		Payload:     databag.New(),
	}
	result.Payload.Set("access_token", accessToken)
	result.Payload.Set("token_type", "bearer")
	result.Payload.Set("expires_in", e.tokens.AccessTokenExpiresIn())
	if data.Scope != "" {
		result.Payload.Set("scope", data.Scope)
	}

	switch {
	case data.ConsumedRefreshToken() != nil:
		rotated, err := e.tokens.RotateRefreshToken(data.ConsumedRefreshToken())
		if err != nil {
			return nil, oauth2.AsError(err)
		}
		result.RefreshToken = rotated
	case data.IssueRefreshToken && data.Client.HasGrantType(string(oauth2.RefreshTokenGrant)):
		minted, err := e.tokens.IssueRefreshToken(data.Client.ID, data.ResourceOwnerID, data.Scope)
		if err != nil {
			return nil, oauth2.AsError(err)
		}
		result.RefreshToken = minted
	}
	if result.RefreshToken != "" {
		result.Payload.Set("refresh_token", result.RefreshToken)
	}

	result, err = e.after.Process(ctx, result)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	return result.Payload, nil
}
