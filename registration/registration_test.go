package registration_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/grants"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/registration"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/token/repofake"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func testRules(t *testing.T, extra ...registration.Rule) *chain.Chain[*registration.Context] {
	t.Helper()

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	grantTypes := grants.NewRegistry(
		grants.NewAuthorizationCode(tokenfakerepo.NewFakeAuthorizationCodeRepo(), pkce.NewRegistry(pkce.S256{}), fixedNow),
		grants.ClientCredentials{},
		grants.NewImplicit(),
	)
	scopePolicies := scopes.NewManager(scopes.PolicyNone,
		scopes.NonePolicy{},
		scopes.DefaultPolicy{ServerDefault: "openid"},
		scopes.ErrorPolicy{},
	)
	authMethods := clientauth.NewRegistry(clientRepo, "oidc-provider", []clientauth.Method{
		clientauth.ClientSecretBasic{},
		clientauth.None{},
	})

	rules := []registration.Rule{
		registration.NewGrantTypeRule(grantTypes),
		registration.RedirectURIRule{},
		registration.ContactsRule{},
		registration.NewScopeRule(scopePolicies),
		registration.NewAuthMethodRule(authMethods),
		registration.PassthroughRule{Keys: []string{clients.MetadataClientName}},
	}
	// Statement claims override directly requested metadata, so the rule
	// sits at the end of the chain.
	rules = append(rules, extra...)
	return chain.New(rules...)
}

func newService(t *testing.T, options ...registration.ServiceOption) *registration.Service {
	t.Helper()
	opts := append([]registration.ServiceOption{
		registration.WithIDFunc(func() string { return "generated-client-id" }),
		registration.WithNowFunc(fixedNow),
	}, options...)
	return registration.NewService(testRules(t), fakeclientrepo.NewFakeClientRepo(), opts...)
}

func requested(metadata map[string]any) *databag.DataBag {
	bag := databag.New()
	for k, v := range metadata {
		bag.Set(k, v)
	}
	return bag
}

func requireMetadataError(t *testing.T, err error, code oauth2.ErrorCode, description string) {
	t.Helper()
	require.Error(t, err)
	oauthErr := oauth2.AsError(err)
	require.Equal(t, code, oauthErr.Code)
	require.Equal(t, description, oauthErr.Description)
}

func TestService_RegisterAppliesDefaults(t *testing.T) {
	service := newService(t)

	client, err := service.Register(t.Context(), "", requested(map[string]any{
		clients.MetadataRedirectURIs: []string{"https://app.example.com/cb"},
		clients.MetadataClientName:   "Example App",
	}))
	require.NoError(t, err)
	require.Equal(t, "generated-client-id", client.ID)
	require.Equal(t, []string{"authorization_code"}, client.GrantTypes())
	require.Equal(t, []string{"code"}, client.ResponseTypes())
	require.Equal(t, oauth2.AuthMethodClientSecretBasic, client.TokenEndpointAuthMethod())
	require.Equal(t, "Example App", client.Metadata.GetString(clients.MetadataClientName))
}

func TestService_RegisterMintsClientSecret(t *testing.T) {
	t.Run("confidential client receives a usable secret", func(t *testing.T) {
		service := newService(t, registration.WithSecretFunc(func() (string, error) { return "minted-secret", nil }))

		client, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs:            []string{"https://app.example.com/cb"},
			clients.MetadataTokenEndpointAuthMethod: string(oauth2.AuthMethodClientSecretBasic),
		}))
		require.NoError(t, err)
		require.Equal(t, "minted-secret", client.Metadata.GetString(clients.MetadataClientSecret))
		require.True(t, client.CheckSecret("minted-secret", fixedNow()))
	})

	t.Run("generated secrets are unique", func(t *testing.T) {
		service := newService(t)

		first, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs: []string{"https://app.example.com/cb"},
		}))
		require.NoError(t, err)
		second, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs: []string{"https://app.example.com/cb"},
		}))
		require.NoError(t, err)
		require.NotEmpty(t, first.Metadata.GetString(clients.MetadataClientSecret))
		require.NotEqual(t,
			first.Metadata.GetString(clients.MetadataClientSecret),
			second.Metadata.GetString(clients.MetadataClientSecret))
	})

	t.Run("public client gets no secret", func(t *testing.T) {
		service := newService(t)

		client, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs:            []string{"https://app.example.com/cb"},
			clients.MetadataTokenEndpointAuthMethod: string(oauth2.AuthMethodNone),
		}))
		require.NoError(t, err)
		require.False(t, client.Metadata.Has(clients.MetadataClientSecret))
	})
}

func TestService_RegisterValidatesGrantTypes(t *testing.T) {
	service := newService(t)

	t.Run("unknown grant type", func(t *testing.T) {
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataGrantTypes: []string{"device_code"},
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The grant type "device_code" is not supported.`)
	})

	t.Run("response type incompatible with the grant types", func(t *testing.T) {
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataGrantTypes:    []string{"authorization_code"},
			clients.MetadataResponseTypes: []string{"token"},
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The response type "token" does not match the registered grant types.`)
	})

	t.Run("combined response type covered by two grants", func(t *testing.T) {
		client, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataGrantTypes:    []string{"authorization_code", "implicit"},
			clients.MetadataResponseTypes: []string{"code token"},
		}))
		require.NoError(t, err)
		require.Equal(t, []string{"code token"}, client.ResponseTypes())
	})
}

func TestService_RegisterValidatesRedirectURIs(t *testing.T) {
	service := newService(t)

	register := func(uri string) error {
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs: []string{uri},
		}))
		return err
	}

	t.Run("missing scheme", func(t *testing.T) {
		requireMetadataError(t, register("app.example.com/cb"), oauth2.ErrCodeInvalidRedirectURI, `The redirect URI "app.example.com/cb" is malformed.`)
	})

	t.Run("fragment", func(t *testing.T) {
		requireMetadataError(t, register("https://app.example.com/cb#frag"), oauth2.ErrCodeInvalidRedirectURI, `The redirect URI "https://app.example.com/cb#frag" must not contain a fragment.`)
	})

	t.Run("path traversal", func(t *testing.T) {
		requireMetadataError(t, register("https://app.example.com/cb/../admin"), oauth2.ErrCodeInvalidRedirectURI, `The redirect URI "https://app.example.com/cb/../admin" must not traverse paths.`)
	})

	t.Run("urn form is allowed", func(t *testing.T) {
		require.NoError(t, register("urn:ietf:wg:oauth:2.0:oob"))
	})
}

func TestService_RegisterValidatesContacts(t *testing.T) {
	service := newService(t)

	_, err := service.Register(t.Context(), "", requested(map[string]any{
		clients.MetadataContacts: []string{"ops@example.com", "not an address"},
	}))
	requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The contact "not an address" is not a valid e-mail address.`)
}

func TestService_RegisterValidatesScope(t *testing.T) {
	service := newService(t)

	t.Run("illegal scope characters", func(t *testing.T) {
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataScope: `openid "quoted"`,
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The scope "\"quoted\"" contains illegal characters.`)
	})

	t.Run("unknown scope policy", func(t *testing.T) {
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataScopePolicy: "no-such-policy",
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The scope policy "no-such-policy" is unknown.`)
	})

	t.Run("valid scope and policy", func(t *testing.T) {
		client, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataScope:       "openid profile",
			clients.MetadataScopePolicy: "error",
		}))
		require.NoError(t, err)
		require.Equal(t, "openid profile", client.Metadata.GetString(clients.MetadataScope))
		require.Equal(t, "error", client.ScopePolicy())
	})
}

func TestService_RegisterValidatesAuthMethod(t *testing.T) {
	service := newService(t)

	_, err := service.Register(t.Context(), "", requested(map[string]any{
		clients.MetadataTokenEndpointAuthMethod: "private_key_jwt",
	}))
	requireMetadataError(t, err, oauth2.ErrCodeInvalidClientMetadata, `The token endpoint auth method "private_key_jwt" is not supported.`)
}

func TestService_InitialAccessTokenGate(t *testing.T) {
	iatRepo := tokenfakerepo.NewFakeInitialAccessTokenRepo()
	require.NoError(t, iatRepo.Save(&token.InitialAccessToken{ID: "iat-valid"}))
	require.NoError(t, iatRepo.Save(&token.InitialAccessToken{ID: "iat-revoked", Revoked: true}))
	expiry := fixedNow().Add(-time.Hour)
	require.NoError(t, iatRepo.Save(&token.InitialAccessToken{ID: "iat-expired", ExpiresAt: &expiry}))

	service := newService(t, registration.WithInitialAccessTokens(iatRepo))
	metadata := map[string]any{clients.MetadataRedirectURIs: []string{"https://app.example.com/cb"}}

	t.Run("missing token", func(t *testing.T) {
		_, err := service.Register(t.Context(), "", requested(metadata))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidRequest, "An initial access token is required.")
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := service.Register(t.Context(), "never-issued", requested(metadata))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidRequest, "The initial access token is invalid.")
	})

	t.Run("revoked token", func(t *testing.T) {
		_, err := service.Register(t.Context(), "iat-revoked", requested(metadata))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidRequest, "The initial access token is invalid.")
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := service.Register(t.Context(), "iat-expired", requested(metadata))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidRequest, "The initial access token is invalid.")
	})

	t.Run("valid token", func(t *testing.T) {
		client, err := service.Register(t.Context(), "iat-valid", requested(metadata))
		require.NoError(t, err)
		require.NotNil(t, client)
	})

	t.Run("no token store leaves registration open", func(t *testing.T) {
		open := newService(t)
		client, err := open.Register(t.Context(), "", requested(metadata))
		require.NoError(t, err)
		require.NotNil(t, client)
	})
}

func TestSoftwareStatementRule(t *testing.T) {
	issuerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	trusted := &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: issuerKey.Public(), KeyID: "statement-issuer", Algorithm: string(jose.RS256), Use: "sig"},
	}}

	signStatement := func(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
		t.Helper()
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
		require.NoError(t, err)
		payload, err := json.Marshal(claims)
		require.NoError(t, err)
		jws, err := signer.Sign(payload)
		require.NoError(t, err)
		serialized, err := jws.CompactSerialize()
		require.NoError(t, err)
		return serialized
	}

	newStatementService := func(t *testing.T, options ...registration.StatementOption) *registration.Service {
		rule := registration.NewSoftwareStatementRule(trusted,
			[]string{clients.MetadataClientName, clients.MetadataRedirectURIs}, options...)
		rules := testRules(t, rule)
		return registration.NewService(rules, fakeclientrepo.NewFakeClientRepo(),
			registration.WithIDFunc(func() string { return "generated-client-id" }))
	}

	t.Run("verified claims win over the requested values", func(t *testing.T) {
		service := newStatementService(t)
		statement := signStatement(t, issuerKey, map[string]any{
			clients.MetadataClientName:   "Attested App",
			clients.MetadataRedirectURIs: []string{"https://attested.example.com/cb"},
		})

		client, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataClientName:        "Claimed App",
			clients.MetadataRedirectURIs:      []string{"https://claimed.example.com/cb"},
			clients.MetadataSoftwareStatement: statement,
		}))
		require.NoError(t, err)
		require.Equal(t, "Attested App", client.Metadata.GetString(clients.MetadataClientName))
		require.Equal(t, []string{"https://attested.example.com/cb"}, client.RedirectURIs())
		require.Equal(t, statement, client.Metadata.GetString(clients.MetadataSoftwareStatement))
	})

	t.Run("statement signed by an untrusted key", func(t *testing.T) {
		service := newStatementService(t)
		rogueKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		statement := signStatement(t, rogueKey, map[string]any{clients.MetadataClientName: "Rogue App"})

		_, err = service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataSoftwareStatement: statement,
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidSoftwareStatement, "The software statement is invalid.")
	})

	t.Run("garbage statement", func(t *testing.T) {
		service := newStatementService(t)
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataSoftwareStatement: "not.a.jws",
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidSoftwareStatement, "The software statement is invalid.")
	})

	t.Run("statement required but absent", func(t *testing.T) {
		service := newStatementService(t, registration.WithRequiredStatement())
		_, err := service.Register(t.Context(), "", requested(map[string]any{
			clients.MetadataRedirectURIs: []string{"https://app.example.com/cb"},
		}))
		requireMetadataError(t, err, oauth2.ErrCodeInvalidSoftwareStatement, "A software statement is required.")
	})
}
