package authorize

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
)

const codeGenerationLength = 32

// ResponseType is a named authorization-endpoint strategy. Process runs
// after the resource owner authorized the request and fills the
// request's response parameters.
type ResponseType interface {
	Name() oauth2.ResponseType
	DefaultResponseMode() oauth2.ResponseModeType
	Process(ctx context.Context, req *Request) error
}

// TypeRegistry is the immutable response-type name map.
type TypeRegistry struct {
	types map[oauth2.ResponseType]ResponseType
	names []oauth2.ResponseType
}

// NewTypeRegistry registers response types in order.
func NewTypeRegistry(types ...ResponseType) *TypeRegistry {
	r := &TypeRegistry{types: make(map[oauth2.ResponseType]ResponseType)}
	for _, t := range types {
		if _, ok := r.types[t.Name()]; !ok {
			r.names = append(r.names, t.Name())
		}
		r.types[t.Name()] = t
	}
	return r
}

// Get resolves a response type by name.
func (r *TypeRegistry) Get(name oauth2.ResponseType) (ResponseType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered names in registration order.
func (r *TypeRegistry) Names() []oauth2.ResponseType {
	out := make([]oauth2.ResponseType, len(r.names))
	copy(out, r.names)
	return out
}

// CodeType issues an authorization code bound to the request's client,
// resource owner, redirect URI and PKCE parameters.
type CodeType struct {
	codes    token.AuthorizationCodeRepo
	lifetime time.Duration
	nowFunc  func() time.Time
}

// NewCodeType builds the "code" response type over the code store.
func NewCodeType(codes token.AuthorizationCodeRepo, lifetime time.Duration, nowFunc func() time.Time) *CodeType {
	if lifetime == 0 {
		lifetime = 15 * time.Minute
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &CodeType{codes: codes, lifetime: lifetime, nowFunc: nowFunc}
}

func (*CodeType) Name() oauth2.ResponseType { return oauth2.CodeResponseType }

func (*CodeType) DefaultResponseMode() oauth2.ResponseModeType { return oauth2.QueryResponseMode }

func (t *CodeType) Process(_ context.Context, req *Request) error {
	codeBytes := make([]byte, codeGenerationLength)
	if _, err := rand.Read(codeBytes); err != nil {
		return errors.Wrap(err, "[CodeType.Process] rand.Read")
	}
	code := base64.RawURLEncoding.EncodeToString(codeBytes)

	record := &token.AuthorizationCode{
		Code:            code,
		ClientID:        req.Client.ID,
		ResourceOwnerID: req.Account.ID,
		RedirectURI:     req.RedirectURI,
		ExpiresAt:       t.nowFunc().Add(t.lifetime),
		QueryParameters: recordParameters(req),
	}
	if err := t.codes.Save(record); err != nil {
		return errors.Wrap(err, "[CodeType.Process] codes.Save")
	}
	req.ResponseParameters.Set("code", code)
	return nil
}

// recordParameters captures the request parameters the token endpoint
// needs at exchange time: scope, nonce and the PKCE binding.
func recordParameters(req *Request) *databag.DataBag {
	params := databag.New()
	if req.Scope != "" {
		params.Set(token.ParamScope, req.Scope)
	}
	for _, name := range []string{token.ParamCodeChallenge, token.ParamCodeChallengeMethod, token.ParamNonce} {
		if v := req.Param(name); v != "" {
			params.Set(name, v)
		}
	}
	return params
}

// TokenType issues an access token directly (implicit flow). Delivered
// in the fragment so the token never reaches the client's server logs.
type TokenType struct {
	tokens *token.Manager
}

// NewTokenType builds the "token" response type over the token manager.
func NewTokenType(tokens *token.Manager) *TokenType {
	return &TokenType{tokens: tokens}
}

func (*TokenType) Name() oauth2.ResponseType { return oauth2.TokenResponseType }

func (*TokenType) DefaultResponseMode() oauth2.ResponseModeType { return oauth2.FragmentResponseMode }

func (t *TokenType) Process(_ context.Context, req *Request) error {
	accessToken, record, err := t.tokens.IssueAccessToken(req.Client, req.Account.ID, req.Scope, nil)
	if err != nil {
		return errors.Wrap(err, "[TokenType.Process] IssueAccessToken")
	}
	req.ResponseParameters.Set("access_token", accessToken)
	req.ResponseParameters.Set("token_type", record.Parameters.GetString(token.ParamTokenType))
	req.ResponseParameters.Set("expires_in", t.tokens.AccessTokenExpiresIn())
	if req.Scope != "" {
		req.ResponseParameters.Set("scope", req.Scope)
	}
	return nil
}

// PendingAuthorizationStore persists an authorization decided with the
// "none" response type for later out-of-band retrieval. External
// collaborator.
type PendingAuthorizationStore interface {
	Save(req *Request) error
}

// NoneType records the authorization without returning credentials. The
// engine enforces that "none" is the sole requested response type.
type NoneType struct {
	pending PendingAuthorizationStore
}

// NewNoneType builds the "none" response type over the pending store.
func NewNoneType(pending PendingAuthorizationStore) *NoneType {
	return &NoneType{pending: pending}
}

func (*NoneType) Name() oauth2.ResponseType { return oauth2.NoneResponseType }

func (*NoneType) DefaultResponseMode() oauth2.ResponseModeType { return oauth2.QueryResponseMode }

func (t *NoneType) Process(_ context.Context, req *Request) error {
	if t.pending == nil {
		return nil
	}
	if err := t.pending.Save(req); err != nil {
		return errors.Wrap(err, "[NoneType.Process] pending.Save")
	}
	return nil
}
