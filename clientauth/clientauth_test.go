package clientauth_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

const (
	testRealm        = "oidc-provider"
	testTokenURL     = "https://auth.example.com/oauth2/token"
	confidentialID   = "confidential-client"
	postClientID     = "post-client"
	publicClientID   = "public-client"
	assertionID      = "assertion-client"
	testClientSecret = "s3cret-value"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func registeredClient(id string, method oauth2.AuthMethod, secret string) *clients.Client {
	bag := databag.New()
	bag.Set(clients.MetadataTokenEndpointAuthMethod, string(method))
	if secret != "" {
		bag.Set(clients.MetadataClientSecret, secret)
	}
	return clients.New(id, bag)
}

func newRegistry(t *testing.T) *clientauth.Registry {
	t.Helper()
	repo := fakeclientrepo.NewFakeClientRepo()
	require.NoError(t, repo.Save(registeredClient(confidentialID, oauth2.AuthMethodClientSecretBasic, testClientSecret)))
	require.NoError(t, repo.Save(registeredClient(postClientID, oauth2.AuthMethodClientSecretPost, testClientSecret)))
	require.NoError(t, repo.Save(registeredClient(publicClientID, oauth2.AuthMethodNone, "")))
	require.NoError(t, repo.Save(registeredClient(assertionID, oauth2.AuthMethodClientAssertionJWT, testClientSecret)))

	return clientauth.NewRegistry(repo, testRealm, []clientauth.Method{
		clientauth.ClientSecretBasic{},
		clientauth.ClientSecretPost{},
		clientauth.ClientAssertionJWT{Audience: testTokenURL},
		clientauth.None{},
	}, clientauth.WithNowFunc(fixedNow))
}

func postRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, testTokenURL, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func requireAuthFailed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	oauthErr := oauth2.AsError(err)
	require.Equal(t, oauth2.ErrCodeInvalidClient, oauthErr.Code)
	require.Equal(t, "Client authentication failed.", oauthErr.Description)
}

func TestRegistry_ClientSecretBasic(t *testing.T) {
	registry := newRegistry(t)

	t.Run("valid credentials", func(t *testing.T) {
		req := postRequest(t, url.Values{"grant_type": {"client_credentials"}})
		req.SetBasicAuth(confidentialID, testClientSecret)

		client, err := registry.Authenticate(req)
		require.NoError(t, err)
		require.Equal(t, confidentialID, client.ID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := postRequest(t, url.Values{})
		req.SetBasicAuth(confidentialID, "wrong")
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := postRequest(t, url.Values{})
		req.SetBasicAuth("no-such-client", testClientSecret)
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})
}

func TestRegistry_ClientSecretPost(t *testing.T) {
	registry := newRegistry(t)

	req := postRequest(t, url.Values{
		"client_id":     {postClientID},
		"client_secret": {testClientSecret},
	})

	client, err := registry.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, postClientID, client.ID)
}

func TestRegistry_RejectsMethodMismatch(t *testing.T) {
	registry := newRegistry(t)

	t.Run("basic client presenting post credentials", func(t *testing.T) {
		req := postRequest(t, url.Values{
			"client_id":     {confidentialID},
			"client_secret": {testClientSecret},
		})
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})

	t.Run("post client presenting basic credentials", func(t *testing.T) {
		req := postRequest(t, url.Values{})
		req.SetBasicAuth(postClientID, testClientSecret)
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})

	t.Run("confidential client presenting a bare client_id", func(t *testing.T) {
		req := postRequest(t, url.Values{"client_id": {confidentialID}})
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})
}

func TestRegistry_NoneMethodForPublicClients(t *testing.T) {
	registry := newRegistry(t)

	req := postRequest(t, url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {publicClientID},
	})

	client, err := registry.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, publicClientID, client.ID)
	require.True(t, client.IsPublic())
}

func TestRegistry_NoCredentialsAtAll(t *testing.T) {
	registry := newRegistry(t)

	req := postRequest(t, url.Values{"grant_type": {"client_credentials"}})
	_, err := registry.Authenticate(req)
	requireAuthFailed(t, err)
}

func TestRegistry_ClientAssertionJWT(t *testing.T) {
	registry := newRegistry(t)

	signAssertion := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testClientSecret))
		require.NoError(t, err)
		return signed
	}

	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": assertionID,
			"sub": assertionID,
			"aud": testTokenURL,
			"exp": fixedNow().Add(5 * time.Minute).Unix(),
			"iat": fixedNow().Unix(),
		}
	}

	assertionRequest := func(t *testing.T, assertion string) *http.Request {
		return postRequest(t, url.Values{
			"grant_type":            {"client_credentials"},
			"client_assertion_type": {oauth2.ClientAssertionTypeJWTBearer},
			"client_assertion":      {assertion},
		})
	}

	t.Run("valid assertion", func(t *testing.T) {
		client, err := registry.Authenticate(assertionRequest(t, signAssertion(t, validClaims())))
		require.NoError(t, err)
		require.Equal(t, assertionID, client.ID)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims["aud"] = "https://elsewhere.example.com/token"
		_, err := registry.Authenticate(assertionRequest(t, signAssertion(t, claims)))
		requireAuthFailed(t, err)
	})

	t.Run("expired assertion", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = fixedNow().Add(-time.Minute).Unix()
		_, err := registry.Authenticate(assertionRequest(t, signAssertion(t, claims)))
		requireAuthFailed(t, err)
	})

	t.Run("signed with the wrong key", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		_, err = registry.Authenticate(assertionRequest(t, signed))
		requireAuthFailed(t, err)
	})

	t.Run("missing assertion type", func(t *testing.T) {
		req := postRequest(t, url.Values{
			"client_assertion": {signAssertion(t, validClaims())},
		})
		_, err := registry.Authenticate(req)
		requireAuthFailed(t, err)
	})
}

func TestRegistry_ChallengeHeader(t *testing.T) {
	registry := newRegistry(t)

	_, err := registry.Authenticate(postRequest(t, url.Values{}))
	require.Error(t, err)

	challenge := oauth2.AsError(err).Challenge(registry.Realm(), registry.Schemes()...)
	require.Equal(t, `Basic realm="oidc-provider",error="invalid_client",error_description="Client authentication failed."`, challenge)
}

func TestRegistry_NamesAndHas(t *testing.T) {
	registry := newRegistry(t)

	require.Equal(t, []oauth2.AuthMethod{
		oauth2.AuthMethodClientSecretBasic,
		oauth2.AuthMethodClientSecretPost,
		oauth2.AuthMethodClientAssertionJWT,
		oauth2.AuthMethodNone,
	}, registry.Names())
	require.True(t, registry.Has(oauth2.AuthMethodNone))
	require.False(t, registry.Has("tls_client_auth"))
}
