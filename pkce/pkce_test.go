package pkce_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/pkce"
)

// RFC 7636 appendix B test vector.
const (
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestS256_VerifiesKnownVector(t *testing.T) {
	require.True(t, pkce.S256{}.IsChallengeVerified(testCodeVerifier, testCodeChallenge))
}

func TestS256_RejectsWrongVerifier(t *testing.T) {
	require.False(t, pkce.S256{}.IsChallengeVerified("wrong-verifier-wrong-verifier-wrong-verifier", testCodeChallenge))
}

func TestS256_RejectsPlainStyleChallenge(t *testing.T) {
	// The verifier passed as its own challenge must not satisfy S256.
	require.False(t, pkce.S256{}.IsChallengeVerified(testCodeVerifier, testCodeVerifier))
}

func TestPlain_ComparesDirectly(t *testing.T) {
	require.True(t, pkce.Plain{}.IsChallengeVerified("same-value", "same-value"))
	require.False(t, pkce.Plain{}.IsChallengeVerified("one-value", "another-value"))
}

func TestRegistry_Verify(t *testing.T) {
	registry := pkce.NewRegistry(pkce.S256{}, pkce.Plain{})

	t.Run("valid S256", func(t *testing.T) {
		err := registry.Verify(string(oauth2.CodeMethodS256), testCodeVerifier, testCodeChallenge)
		require.NoError(t, err)
	})

	t.Run("S256 mismatch", func(t *testing.T) {
		err := registry.Verify(string(oauth2.CodeMethodS256), "not-the-right-verifier-at-all-not-right", testCodeChallenge)
		require.Error(t, err)
	})

	t.Run("unknown method", func(t *testing.T) {
		err := registry.Verify("S512", testCodeVerifier, testCodeChallenge)
		require.Error(t, err)
	})
}

func TestRegistry_NamesFollowRegistrationOrder(t *testing.T) {
	registry := pkce.NewRegistry(pkce.S256{}, pkce.Plain{})
	require.Equal(t, []string{"S256", "plain"}, registry.Names())
}
