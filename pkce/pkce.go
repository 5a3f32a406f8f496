// Package pkce implements Proof Key for Code Exchange (RFC 7636): the
// method registry used when an authorization code is issued and the
// verifier check run at token-exchange time.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Method verifies a code_verifier against the code_challenge recorded
// with the authorization code. Implementations must compare in constant
// time.
type Method interface {
	Name() string
	IsChallengeVerified(codeVerifier, codeChallenge string) bool
}

// Plain implements the "plain" method: the challenge is the verifier.
// Weak; kept for RFC 7636 compatibility. Servers may refuse to register
// it for public clients.
type Plain struct{}

func (Plain) Name() string { return string(oauth2.CodeMethodPlain) }

func (Plain) IsChallengeVerified(codeVerifier, codeChallenge string) bool {
	return subtle.ConstantTimeCompare([]byte(codeVerifier), []byte(codeChallenge)) == 1
}

// S256 implements the "S256" method:
// code_challenge = BASE64URL-ENCODE(SHA256(ASCII(code_verifier))).
type S256 struct{}

func (S256) Name() string { return string(oauth2.CodeMethodS256) }

func (S256) IsChallengeVerified(codeVerifier, codeChallenge string) bool {
	hash := sha256.Sum256([]byte(codeVerifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(codeChallenge)) == 1
}

// Registry is the immutable name-to-method map built at process start.
// Safe for unsynchronized concurrent reads.
type Registry struct {
	methods map[string]Method
	names   []string
}

// NewRegistry registers methods in order. Registering the same name
// twice keeps the last instance.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method)}
	for _, m := range methods {
		if _, ok := r.methods[m.Name()]; !ok {
			r.names = append(r.names, m.Name())
		}
		r.methods[m.Name()] = m
	}
	return r
}

// Get resolves a method by name.
func (r *Registry) Get(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the registered method names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Verify resolves the stored method and checks the verifier against the
// challenge. An unknown method or a failed check both surface as errors
// so the caller can map them onto invalid_grant.
func (r *Registry) Verify(methodName, codeVerifier, codeChallenge string) error {
	method, ok := r.Get(methodName)
	if !ok {
		return errors.Errorf("[pkce.Registry.Verify] unknown code challenge method %q", methodName)
	}
	if !method.IsChallengeVerified(codeVerifier, codeChallenge) {
		return errors.New("[pkce.Registry.Verify] code verifier does not match the challenge")
	}
	return nil
}
