package subject_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/subject"
)

const (
	testUserID     = "user-7141"
	testSectorHost = "app.example.com"
)

func encryptionKey() []byte {
	return []byte(strings.Repeat("k", 32))
}

func pairwiseClient(metadata map[string]any) *clients.Client {
	bag := databag.New()
	bag.Set(clients.MetadataSubjectType, string(oauth2.SubjectTypePairwise))
	for k, v := range metadata {
		bag.Set(k, v)
	}
	return clients.New("pairwise-client", bag)
}

func TestEncryptedIdentifier_RoundTrip(t *testing.T) {
	identifier, err := subject.NewEncryptedIdentifier(encryptionKey())
	require.NoError(t, err)

	sub, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	require.NotEqual(t, testUserID, sub)

	require.Equal(t, testUserID, identifier.PublicIDFrom(sub))
}

func TestEncryptedIdentifier_IsDeterministicPerSector(t *testing.T) {
	identifier, err := subject.NewEncryptedIdentifier(encryptionKey())
	require.NoError(t, err)

	first, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	second, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := identifier.CalculateSubjectIdentifier("other.example.com", testUserID)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestEncryptedIdentifier_MalformedInputYieldsEmpty(t *testing.T) {
	identifier, err := subject.NewEncryptedIdentifier(encryptionKey())
	require.NoError(t, err)

	require.Equal(t, "", identifier.PublicIDFrom("not base64 ###"))
	require.Equal(t, "", identifier.PublicIDFrom("dG9vc2hvcnQ"))

	sub, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	tampered := sub[:len(sub)-2] + "xx"
	require.Equal(t, "", identifier.PublicIDFrom(tampered))
}

func TestNewEncryptedIdentifier_RejectsShortKey(t *testing.T) {
	_, err := subject.NewEncryptedIdentifier([]byte("short"))
	require.Error(t, err)
}

func TestHashedIdentifier_DeterministicAndOneWay(t *testing.T) {
	identifier := subject.NewHashedIdentifier([]byte("pairwise-salt"))

	first, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	second, err := identifier.CalculateSubjectIdentifier(testSectorHost, testUserID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := identifier.CalculateSubjectIdentifier("other.example.com", testUserID)
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	require.Equal(t, "", identifier.PublicIDFrom(first))
}

func TestResolver_PublicClientKeepsRawUserID(t *testing.T) {
	resolver := subject.NewResolver(subject.NewHashedIdentifier([]byte("salt")))
	client := clients.New("public-client", databag.New())

	sub, err := resolver.Subject(client, testUserID, "https://app.example.com/callback")
	require.NoError(t, err)
	require.Equal(t, testUserID, sub)
}

func TestResolver_PairwiseClientGetsSectorScopedSubject(t *testing.T) {
	resolver := subject.NewResolver(subject.NewHashedIdentifier([]byte("salt")))
	client := pairwiseClient(nil)

	sub, err := resolver.Subject(client, testUserID, "https://app.example.com/callback")
	require.NoError(t, err)
	require.NotEqual(t, testUserID, sub)

	again, err := resolver.Subject(client, testUserID, "https://app.example.com/other")
	require.NoError(t, err)
	require.Equal(t, sub, again)
}

func TestResolver_NilPairwiseDowngradesToPublic(t *testing.T) {
	resolver := subject.NewResolver(nil)
	client := pairwiseClient(nil)

	sub, err := resolver.Subject(client, testUserID, "https://app.example.com/callback")
	require.NoError(t, err)
	require.Equal(t, testUserID, sub)
	require.Equal(t, "", resolver.PublicID("anything"))
}

func TestSectorHost_PrefersSectorIdentifierURI(t *testing.T) {
	client := pairwiseClient(map[string]any{
		clients.MetadataSectorIdentifierURI: "https://sector.example.com/redirect_uris.json",
	})

	host, err := subject.SectorHost(client, "https://app.example.com/callback")
	require.NoError(t, err)
	require.Equal(t, "sector.example.com", host)
}

func TestSectorHost_FallsBackToRegisteredRedirectURI(t *testing.T) {
	client := pairwiseClient(map[string]any{
		clients.MetadataRedirectURIs: []string{"https://registered.example.com/cb"},
	})

	host, err := subject.SectorHost(client, "")
	require.NoError(t, err)
	require.Equal(t, "registered.example.com", host)
}

func TestSectorHost_ErrorsWithoutAnySource(t *testing.T) {
	client := pairwiseClient(nil)

	_, err := subject.SectorHost(client, "")
	require.Error(t, err)
}
