// Package subject derives the OIDC "sub" claim value for a client. When
// a client registers subject_type=pairwise, the subject is scoped to the
// client's sector so distinct sectors cannot correlate the same user.
package subject

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Identifier derives a pairwise subject value for a user within a
// sector, and attempts the reverse mapping. PublicIDFrom returns "" for
// one-way schemes and for malformed input.
type Identifier interface {
	CalculateSubjectIdentifier(sectorHost, userID string) (string, error)
	PublicIDFrom(subjectIdentifier string) string
}

// EncryptedIdentifier is the reversible scheme: AES-256-GCM over
// "sectorHost:userID" with a nonce derived deterministically from a hash
// of the user id, so the same user in the same sector always yields the
// same subject value.
type EncryptedIdentifier struct {
	key []byte
}

// NewEncryptedIdentifier requires a 32-byte key (AES-256).
func NewEncryptedIdentifier(key []byte) (*EncryptedIdentifier, error) {
	if len(key) != 32 {
		return nil, errors.Errorf("[NewEncryptedIdentifier] key must be 32 bytes, got %d", len(key))
	}
	return &EncryptedIdentifier{key: key}, nil
}

func (e *EncryptedIdentifier) CalculateSubjectIdentifier(sectorHost, userID string) (string, error) {
	gcm, err := e.aead()
	if err != nil {
		return "", err
	}
	nonce := deriveNonce(userID, gcm.NonceSize())
	ciphertext := gcm.Seal(nil, nonce, []byte(sectorHost+":"+userID), nil)
	// The nonce is re-derivable from the plaintext but not from the
	// ciphertext, so it is carried alongside.
	return base64.RawURLEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// PublicIDFrom decrypts the subject identifier and extracts the user id.
// Any malformed or tampered input yields "".
func (e *EncryptedIdentifier) PublicIDFrom(subjectIdentifier string) string {
	raw, err := base64.RawURLEncoding.DecodeString(subjectIdentifier)
	if err != nil {
		return ""
	}
	gcm, err := e.aead()
	if err != nil {
		return ""
	}
	if len(raw) < gcm.NonceSize() {
		return ""
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}
	parts := strings.SplitN(string(plaintext), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

func (e *EncryptedIdentifier) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, errors.Wrap(err, "[EncryptedIdentifier] aes.NewCipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[EncryptedIdentifier] cipher.NewGCM")
	}
	return gcm, nil
}

func deriveNonce(userID string, size int) []byte {
	sum := sha256.Sum256([]byte(userID))
	return sum[:size]
}

// HashedIdentifier is the one-way scheme: HMAC-SHA256 over
// sectorHost+userID. Reversal is impossible so PublicIDFrom always
// returns "".
type HashedIdentifier struct {
	key []byte
}

func NewHashedIdentifier(key []byte) *HashedIdentifier {
	return &HashedIdentifier{key: key}
}

func (h *HashedIdentifier) CalculateSubjectIdentifier(sectorHost, userID string) (string, error) {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(sectorHost + userID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (h *HashedIdentifier) PublicIDFrom(string) string { return "" }

// Resolver selects between the raw user id and a pairwise value based on
// the client's registered subject_type.
type Resolver struct {
	pairwise Identifier
}

// NewResolver builds a resolver. A nil pairwise identifier downgrades
// every client to public subjects.
func NewResolver(pairwise Identifier) *Resolver {
	return &Resolver{pairwise: pairwise}
}

// Subject returns the "sub" value for the user within the client.
// redirectURI supplies the sector host fallback when the client has no
// sector_identifier_uri registered.
func (r *Resolver) Subject(client *clients.Client, userID, redirectURI string) (string, error) {
	if client.SubjectType() != oauth2.SubjectTypePairwise || r.pairwise == nil {
		return userID, nil
	}
	host, err := SectorHost(client, redirectURI)
	if err != nil {
		return "", err
	}
	return r.pairwise.CalculateSubjectIdentifier(host, userID)
}

// PublicID attempts the reverse mapping of a pairwise subject value.
// Returns "" when the scheme is one-way or the input is malformed.
func (r *Resolver) PublicID(subjectIdentifier string) string {
	if r.pairwise == nil {
		return ""
	}
	return r.pairwise.PublicIDFrom(subjectIdentifier)
}

// SectorHost resolves the host scoping a client's pairwise identifiers:
// the sector_identifier_uri host when registered, else the redirect
// URI's host.
func SectorHost(client *clients.Client, redirectURI string) (string, error) {
	source := client.SectorIdentifierURI()
	if source == "" {
		source = redirectURI
	}
	if source == "" && len(client.RedirectURIs()) > 0 {
		source = client.RedirectURIs()[0]
	}
	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		return "", errors.Errorf("[subject.SectorHost] cannot derive a sector host for client %q", client.ID)
	}
	return parsed.Hostname(), nil
}
