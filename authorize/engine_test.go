package authorize_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/authorize"
	"github.com/jrsteele09/go-oidc-provider/authorize/repofake"
	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/token/repofake"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	testIssuer      = "https://auth.example.com"
	testClientID    = "spa-client"
	testOwnerID     = "user-7141"
	testRedirectURI = "https://app.example.com/cb"

	// RFC 7636 appendix B test vector.
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

type engineFixture struct {
	engine    *authorize.Engine
	clients   *fakeclientrepo.FakeClientRepo
	codes     *tokenfakerepo.FakeAuthorizationCodeRepo
	approvals *authorizefakerepo.FakeAuthorizationRepo
	tokens    *token.Manager
}

func newEngineFixture(t *testing.T, options ...authorize.EngineOption) *engineFixture {
	t.Helper()

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	metadata := databag.New()
	metadata.Set(clients.MetadataTokenEndpointAuthMethod, string(oauth2.AuthMethodNone))
	metadata.Set(clients.MetadataGrantTypes, []string{"authorization_code", "implicit", "none"})
	metadata.Set(clients.MetadataResponseTypes, []string{"code", "token", "none", "code token"})
	metadata.Set(clients.MetadataRedirectURIs, []string{testRedirectURI})
	metadata.Set(clients.MetadataScope, "openid profile email")
	require.NoError(t, clientRepo.Save(clients.New(testClientID, metadata)))

	codes := tokenfakerepo.NewFakeAuthorizationCodeRepo()
	tokens := token.New(
		tokenfakerepo.NewFakeAccessTokenRepo(),
		tokenfakerepo.NewFakeRefreshTokenRepo(),
		testIssuer,
		token.NewHMACSigner("unit-test-secret"),
		token.WithNowFunc(fixedNow),
	)

	approvals := authorizefakerepo.NewFakeAuthorizationRepo()
	consent := chain.New[*authorize.ConsentContext](
		authorize.NewAuthenticationGate(fixedNow),
		authorize.NewPreConfiguredGate(approvals, fixedNow),
		authorize.ConsentGate{},
	)

	responseTypes := authorize.NewTypeRegistry(
		authorize.NewCodeType(codes, 10*time.Minute, fixedNow),
		authorize.NewTokenType(tokens),
		authorize.NewNoneType(authorizefakerepo.NewFakePendingAuthorizationStore()),
	)
	responseModes := authorize.NewModeRegistry(
		authorize.QueryMode{},
		authorize.FragmentMode{},
		authorize.FormPostMode{},
	)
	scopePolicies := scopes.NewManager(scopes.PolicyNone,
		scopes.NonePolicy{},
		scopes.DefaultPolicy{ServerDefault: "openid"},
		scopes.ErrorPolicy{},
	)

	return &engineFixture{
		engine: authorize.NewEngine(clientRepo, responseTypes, responseModes,
			pkce.NewRegistry(pkce.S256{}, pkce.Plain{}), scopePolicies, consent, options...),
		clients:   clientRepo,
		codes:     codes,
		approvals: approvals,
		tokens:    tokens,
	}
}

func account() *users.Account {
	return &users.Account{
		ID:          testOwnerID,
		Username:    "alice",
		Claims:      databag.New(),
		LastLoginAt: fixedNow().Add(-time.Minute),
	}
}

func (f *engineFixture) approve(t *testing.T, scope string) {
	t.Helper()
	require.NoError(t, f.approvals.Save(&authorize.PreConfiguredAuthorization{
		ID:              "approval-1",
		ClientID:        testClientID,
		ResourceOwnerID: testOwnerID,
		Scope:           scope,
	}))
}

func authQuery(overrides map[string]string) url.Values {
	query := url.Values{
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"state":         {"state-xyz"},
	}
	for k, v := range overrides {
		if v == "" {
			query.Del(k)
			continue
		}
		query.Set(k, v)
	}
	return query
}

func requireJSONError(t *testing.T, resp *authorize.Response, code oauth2.ErrorCode, description string) {
	t.Helper()
	require.Equal(t, authorize.ResponseJSON, resp.Kind)
	require.NotNil(t, resp.Err)
	require.Equal(t, code, resp.Err.Code)
	if description != "" {
		require.Equal(t, description, resp.Err.Description)
	}
}

func redirectQuery(t *testing.T, resp *authorize.Response) url.Values {
	t.Helper()
	require.Equal(t, authorize.ResponseRedirect, resp.Kind)
	target, err := url.Parse(resp.Location)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.Location, testRedirectURI))
	return target.Query()
}

func redirectFragment(t *testing.T, resp *authorize.Response) url.Values {
	t.Helper()
	require.Equal(t, authorize.ResponseRedirect, resp.Kind)
	_, fragment, found := strings.Cut(resp.Location, "#")
	require.True(t, found)
	values, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	return values
}

func TestEngine_RequestValidation(t *testing.T) {
	f := newEngineFixture(t)

	t.Run("missing client_id", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"client_id": ""}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The "client_id" parameter is missing.`)
	})

	t.Run("unknown client", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"client_id": "ghost"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, "The client is unknown.")
	})

	t.Run("unregistered redirect URI", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"redirect_uri": "https://evil.example.com/cb"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, "The redirect URI is not registered for the client.")
	})

	t.Run("omitted redirect URI falls back to the sole registered one", func(t *testing.T) {
		f.approve(t, "openid profile")
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"redirect_uri": ""}), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseRedirect, resp.Kind)
		require.True(t, strings.HasPrefix(resp.Location, testRedirectURI))
	})

	t.Run("missing response_type", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_type": ""}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The "response_type" parameter is missing.`)
	})

	t.Run("unsupported response type", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_type": "id_token"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeUnsupportedResponseType, `The response type "id_token" is not supported.`)
	})

	t.Run("none combined with another response type", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_type": "none token"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The response type "none" cannot be used with another response type.`)
	})

	t.Run("response type not registered for the client", func(t *testing.T) {
		restricted := databag.New()
		restricted.Set(clients.MetadataResponseTypes, []string{"code"})
		restricted.Set(clients.MetadataRedirectURIs, []string{testRedirectURI})
		require.NoError(t, f.clients.Save(clients.New("code-only", restricted)))

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"client_id": "code-only", "response_type": "token"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeUnauthorizedClient, "The client is not allowed to use the requested response type.")
	})
}

func TestEngine_CodeFlow(t *testing.T) {
	f := newEngineFixture(t)
	f.approve(t, "openid profile")

	resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{
		"code_challenge":        pkceChallenge,
		"code_challenge_method": "S256",
		"nonce":                 "nonce-123",
	}), account())
	require.NoError(t, err)

	params := redirectQuery(t, resp)
	code := params.Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "state-xyz", params.Get("state"))

	record, err := f.codes.Get(code)
	require.NoError(t, err)
	require.Equal(t, testClientID, record.ClientID)
	require.Equal(t, testOwnerID, record.ResourceOwnerID)
	require.Equal(t, testRedirectURI, record.RedirectURI)
	require.Equal(t, "openid profile", record.Scope())
	require.Equal(t, pkceChallenge, record.CodeChallenge())
	require.Equal(t, "S256", record.CodeChallengeMethod())
	require.Equal(t, "nonce-123", record.QueryParameters.GetString(token.ParamNonce))
}

func TestEngine_ImplicitFlowUsesFragment(t *testing.T) {
	f := newEngineFixture(t)
	f.approve(t, "openid profile")

	resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_type": "token"}), account())
	require.NoError(t, err)

	params := redirectFragment(t, resp)
	require.NotEmpty(t, params.Get("access_token"))
	require.Equal(t, "bearer", params.Get("token_type"))
	require.Equal(t, "state-xyz", params.Get("state"))

	introspection, err := f.tokens.Introspect(params.Get("access_token"))
	require.NoError(t, err)
	require.True(t, introspection.Active)
	require.Equal(t, testOwnerID, *introspection.Sub)
}

func TestEngine_ResponseModeParameter(t *testing.T) {
	t.Run("rejected when disabled", func(t *testing.T) {
		f := newEngineFixture(t)
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_mode": "form_post"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The "response_mode" parameter is not supported.`)
	})

	t.Run("form_post", func(t *testing.T) {
		f := newEngineFixture(t, authorize.WithModeParameter())
		f.approve(t, "openid profile")

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_mode": "form_post"}), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseFormPost, resp.Kind)
		require.Contains(t, resp.HTML, `action="`+testRedirectURI+`"`)
		require.Contains(t, resp.HTML, `name="code"`)
		require.Contains(t, resp.HTML, `name="state" value="state-xyz"`)
	})

	t.Run("unknown mode", func(t *testing.T) {
		f := newEngineFixture(t, authorize.WithModeParameter())
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_mode": "web_message"}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The response mode "web_message" is not supported.`)
	})

	t.Run("query cannot carry a fragment-default response", func(t *testing.T) {
		f := newEngineFixture(t, authorize.WithModeParameter())
		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{
			"response_type": "token",
			"response_mode": "query",
		}), account())
		require.NoError(t, err)
		requireJSONError(t, resp, oauth2.ErrCodeInvalidRequest, `The response mode "query" cannot deliver the requested response type.`)
	})
}

func TestEngine_PKCE(t *testing.T) {
	t.Run("public clients must send a challenge when required", func(t *testing.T) {
		f := newEngineFixture(t, authorize.WithPKCERequiredForPublicClients())

		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
		require.NoError(t, err)

		params := redirectQuery(t, resp)
		require.Equal(t, "invalid_request", params.Get("error"))
		require.Equal(t, `The "code_challenge" parameter is required for this client.`, params.Get("error_description"))
		require.Equal(t, "state-xyz", params.Get("state"))
	})

	t.Run("unknown challenge method", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{
			"code_challenge":        pkceChallenge,
			"code_challenge_method": "S512",
		}), account())
		require.NoError(t, err)

		params := redirectQuery(t, resp)
		require.Equal(t, "invalid_request", params.Get("error"))
		require.Equal(t, `The code challenge method "S512" is not supported.`, params.Get("error_description"))
	})
}

func TestEngine_ScopeErrorsAreDeliveredByRedirect(t *testing.T) {
	f := newEngineFixture(t)

	resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"scope": "openid admin"}), account())
	require.NoError(t, err)

	params := redirectQuery(t, resp)
	require.Equal(t, "invalid_scope", params.Get("error"))
	require.Equal(t, "An unsupported scope was requested.", params.Get("error_description"))
	require.Equal(t, "state-xyz", params.Get("state"))
}

func TestEngine_ConsentOrchestration(t *testing.T) {
	t.Run("anonymous request needs login", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), nil)
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseLoginRequired, resp.Kind)
		require.NotNil(t, resp.Request)
	})

	t.Run("prompt=login forces re-authentication", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"prompt": "login"}), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseLoginRequired, resp.Kind)
	})

	t.Run("stale session against max_age needs login", func(t *testing.T) {
		f := newEngineFixture(t)

		stale := account()
		stale.LastLoginAt = fixedNow().Add(-time.Hour)

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"max_age": "300"}), stale)
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseLoginRequired, resp.Kind)
	})

	t.Run("authenticated without approval needs consent", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseConsentRequired, resp.Kind)
		require.NotNil(t, resp.Request)
	})

	t.Run("covering approval skips the consent screen", func(t *testing.T) {
		f := newEngineFixture(t)
		f.approve(t, "openid profile email")

		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
		require.NoError(t, err)
		require.NotEmpty(t, redirectQuery(t, resp).Get("code"))
	})

	t.Run("approval narrower than the request does not cover it", func(t *testing.T) {
		f := newEngineFixture(t)
		f.approve(t, "openid")

		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseConsentRequired, resp.Kind)
	})

	t.Run("prompt=consent forces the consent screen", func(t *testing.T) {
		f := newEngineFixture(t)
		f.approve(t, "openid profile")

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"prompt": "consent"}), account())
		require.NoError(t, err)
		require.Equal(t, authorize.ResponseConsentRequired, resp.Kind)
	})
}

func TestEngine_PromptNone(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"prompt": "none"}), nil)
		require.NoError(t, err)

		params := redirectQuery(t, resp)
		require.Equal(t, "login_required", params.Get("error"))
		require.Equal(t, "The resource owner is not authenticated.", params.Get("error_description"))
		require.Equal(t, "state-xyz", params.Get("state"))
	})

	t.Run("no standing approval", func(t *testing.T) {
		f := newEngineFixture(t)

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"prompt": "none"}), account())
		require.NoError(t, err)

		params := redirectQuery(t, resp)
		require.Equal(t, "consent_required", params.Get("error"))
		require.Equal(t, "The resource owner's consent is required.", params.Get("error_description"))
	})

	t.Run("approved flow completes silently", func(t *testing.T) {
		f := newEngineFixture(t)
		f.approve(t, "openid profile")

		resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"prompt": "none"}), account())
		require.NoError(t, err)
		require.NotEmpty(t, redirectQuery(t, resp).Get("code"))
	})
}

func TestEngine_ResumeAfterConsent(t *testing.T) {
	f := newEngineFixture(t)

	resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
	require.NoError(t, err)
	require.Equal(t, authorize.ResponseConsentRequired, resp.Kind)
	parked := resp.Request

	t.Run("approval finishes the flow", func(t *testing.T) {
		resumed, err := f.engine.Resume(t.Context(), parked, true)
		require.NoError(t, err)
		require.NotEmpty(t, redirectQuery(t, resumed).Get("code"))
	})

	t.Run("denial redirects with access_denied", func(t *testing.T) {
		resp, err := f.engine.Authorize(t.Context(), authQuery(nil), account())
		require.NoError(t, err)

		denied, err := f.engine.Resume(t.Context(), resp.Request, false)
		require.NoError(t, err)

		params := redirectQuery(t, denied)
		require.Equal(t, "access_denied", params.Get("error"))
		require.Equal(t, "The resource owner denied the request.", params.Get("error_description"))
		require.Equal(t, "state-xyz", params.Get("state"))
	})
}

func TestEngine_ContinueAfterLogin(t *testing.T) {
	f := newEngineFixture(t)
	f.approve(t, "openid profile")

	resp, err := f.engine.Authorize(t.Context(), authQuery(nil), nil)
	require.NoError(t, err)
	require.Equal(t, authorize.ResponseLoginRequired, resp.Kind)

	parked := resp.Request
	parked.Account = account()

	resumed, err := f.engine.Continue(t.Context(), parked)
	require.NoError(t, err)
	require.NotEmpty(t, redirectQuery(t, resumed).Get("code"))
}

func TestEngine_NoneResponseType(t *testing.T) {
	f := newEngineFixture(t)
	f.approve(t, "openid profile")

	resp, err := f.engine.Authorize(t.Context(), authQuery(map[string]string{"response_type": "none"}), account())
	require.NoError(t, err)

	params := redirectQuery(t, resp)
	require.Empty(t, params.Get("code"))
	require.Empty(t, params.Get("access_token"))
	require.Equal(t, "state-xyz", params.Get("state"))
}
