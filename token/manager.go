package token

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/subject"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const refreshTokenLength = 32 // bytes of entropy behind an opaque refresh token

// Introspection is the RFC 7662 introspection response. When Active is
// false no other field is populated, so an inactive result reveals
// nothing about why the token is inactive.
type Introspection struct {
	Active    bool    `json:"active"`
	Scope     string  `json:"scope,omitempty"`
	ClientID  string  `json:"client_id,omitempty"`
	TokenType string  `json:"token_type,omitempty"`
	Sub       *string `json:"sub,omitempty"`
	Aud       *string `json:"aud,omitempty"`
	Iss       *string `json:"iss,omitempty"`
	Exp       *int64  `json:"exp,omitempty"`
	Iat       *int64  `json:"iat,omitempty"`
	Jti       *string `json:"jti,omitempty"`
}

// Manager creates, introspects and revokes the server's tokens. Access
// and ID tokens are signed JWTs; refresh tokens are opaque strings
// backed by repository records.
type Manager struct {
	accessTokens       AccessTokenRepo
	refreshTokens      RefreshTokenRepo
	signer             Signer
	subjects           *subject.Resolver
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	idTokenExpiry      time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

// WithTokenExpiry overrides the default token lifetimes.
func WithTokenExpiry(accessTokenExpiry, idTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithAudience sets the access-token audience claim.
func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

// WithSubjectResolver enables pairwise subject identifiers for clients
// registered with subject_type=pairwise.
func WithSubjectResolver(resolver *subject.Resolver) ManagerOption {
	return func(m *Manager) {
		m.subjects = resolver
	}
}

// New builds a Manager over the token stores and signer.
func New(accessTokens AccessTokenRepo, refreshTokens RefreshTokenRepo, issuer string, signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		accessTokens:  accessTokens,
		refreshTokens: refreshTokens,
		signer:        signer,
		issuer:        issuer,
		audience:      issuer,
		subjects:      subject.NewResolver(nil),
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 24 * time.Hour
	}
	return m
}

// AccessTokenExpiresIn returns the configured access-token lifetime in
// whole seconds, for the expires_in response member.
func (m *Manager) AccessTokenExpiresIn() int {
	return int(m.accessTokenExpiry / time.Second)
}

// IssueAccessToken persists an access-token record and returns the
// signed wire form. The record's id is the JWT jti, which is the handle
// for introspection and revocation.
func (m *Manager) IssueAccessToken(client *clients.Client, resourceOwnerID, scope string, metadata *databag.DataBag) (string, *AccessToken, error) {
	now := m.nowFunc()
	record := &AccessToken{
		ID:              uuid.New().String(),
		ResourceOwnerID: resourceOwnerID,
		ClientID:        client.ID,
		ExpiresAt:       now.Add(m.accessTokenExpiry),
		Parameters:      databag.New(),
		Metadata:        metadata.Copy(),
	}
	record.Parameters.Set(ParamTokenType, "bearer")
	if scope != "" {
		record.Parameters.Set(ParamScope, scope)
	}
	if err := m.accessTokens.Save(record); err != nil {
		return "", nil, errors.Wrap(err, "[Manager.IssueAccessToken] accessTokens.Save")
	}

	claims := jwt.MapClaims{
		"iss":       m.issuer,
		"sub":       resourceOwnerID,
		"aud":       m.audience,
		"client_id": client.ID,
		"iat":       now.Unix(),
		"exp":       record.ExpiresAt.Unix(),
		"jti":       record.ID,
	}
	if scope != "" {
		claims["scope"] = scope
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Manager.IssueAccessToken] signer.Sign")
	}
	return signed, record, nil
}

// IssueIDToken builds the OIDC ID token for an authenticated resource
// owner. The sub claim honours the client's subject_type; profile claims
// from the account's claim bag are included per the granted scope.
func (m *Manager) IssueIDToken(client *clients.Client, account *users.Account, redirectURI, nonce, scope string) (string, error) {
	sub, err := m.subjects.Subject(client, account.ID, redirectURI)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueIDToken] subject resolution")
	}

	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss": m.issuer,
		"sub": sub,
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(m.idTokenExpiry).Unix(),
		"jti": uuid.New().String(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if !account.LastLoginAt.IsZero() {
		claims["auth_time"] = account.LastLoginAt.Unix()
	}
	for _, key := range claimsForScope(scope) {
		if account.Claims.Has(key) {
			claims[key] = account.Claims.Get(key)
		}
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueIDToken] signer.Sign")
	}
	return signed, nil
}

// claimsForScope maps granted scopes onto the standard claim names that
// may be copied out of the account's claim bag.
func claimsForScope(scope string) []string {
	var keys []string
	for _, s := range strings.Fields(scope) {
		switch s {
		case "profile":
			keys = append(keys, "name", "given_name", "family_name", "preferred_username")
		case "email":
			keys = append(keys, "email", "email_verified")
		case "phone":
			keys = append(keys, "phone_number", "phone_number_verified")
		case "address":
			keys = append(keys, "address")
		}
	}
	return keys
}

// IssueRefreshToken mints an opaque refresh token bound to the client
// and resource owner.
func (m *Manager) IssueRefreshToken(clientID, resourceOwnerID, scope string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[Manager.IssueRefreshToken] rand.Read")
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	record := &RefreshToken{
		Token:           tokenStr,
		ResourceOwnerID: resourceOwnerID,
		ClientID:        clientID,
		ExpiresAt:       m.nowFunc().Add(m.refreshTokenExpiry),
		Parameters:      databag.New(),
		Metadata:        databag.New(),
	}
	if scope != "" {
		record.Parameters.Set(ParamScope, scope)
	}
	if err := m.refreshTokens.Save(record); err != nil {
		return "", errors.Wrap(err, "[Manager.IssueRefreshToken] refreshTokens.Save")
	}
	return tokenStr, nil
}

// RotateRefreshToken revokes the consumed token and mints its
// replacement with the same binding.
func (m *Manager) RotateRefreshToken(consumed *RefreshToken) (string, error) {
	if err := m.refreshTokens.Revoke(consumed.Token); err != nil {
		return "", errors.Wrap(err, "[Manager.RotateRefreshToken] refreshTokens.Revoke")
	}
	return m.IssueRefreshToken(consumed.ClientID, consumed.ResourceOwnerID, consumed.Scope())
}

// GetRefreshToken loads and validates a refresh-token record. Expired
// and revoked tokens surface as ErrNotFound so callers cannot
// distinguish the cases.
func (m *Manager) GetRefreshToken(tokenStr string) (*RefreshToken, error) {
	record, err := m.refreshTokens.Get(tokenStr)
	if err != nil {
		return nil, ErrNotFound
	}
	if record.Revoked || record.Expired(m.nowFunc()) {
		return nil, ErrNotFound
	}
	return record, nil
}

// Introspect parses and verifies an access token and reports its state
// per RFC 7662. Verification failures yield an inactive result, not an
// error: introspection must not be an oracle.
func (m *Manager) Introspect(rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &Introspection{Active: false}, nil
	}

	parsed, err := jwt.Parse(rawToken, m.signer.GetVerificationKey, jwt.WithTimeFunc(m.nowFunc))
	if err != nil || !parsed.Valid {
		return &Introspection{Active: false}, nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return &Introspection{Active: false}, nil
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return &Introspection{Active: false}, nil
	}
	record, err := m.accessTokens.Get(jti)
	if err != nil || record.Revoked || record.Expired(m.nowFunc()) {
		return &Introspection{Active: false}, nil
	}

	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	scope, _ := claims["scope"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	iatInt := int64(iat)
	expInt := int64(exp)

	return &Introspection{
		Active:    true,
		Scope:     scope,
		ClientID:  record.ClientID,
		TokenType: "bearer",
		Sub:       &sub,
		Aud:       &aud,
		Iss:       &iss,
		Exp:       &expInt,
		Iat:       &iatInt,
		Jti:       &jti,
	}, nil
}

// RevokeAccessToken marks the record behind a presented access token as
// revoked. Unknown or malformed tokens succeed silently: RFC 7009
// requires revocation of an invalid token to be a no-op, not an error.
func (m *Manager) RevokeAccessToken(rawToken string) error {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	if err := m.accessTokens.Revoke(jti); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "[Manager.RevokeAccessToken] accessTokens.Revoke")
	}
	return nil
}

// RevokeRefreshToken marks a refresh token revoked; unknown tokens are a
// no-op per RFC 7009.
func (m *Manager) RevokeRefreshToken(tokenStr string) error {
	if err := m.refreshTokens.Revoke(tokenStr); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "[Manager.RevokeRefreshToken] refreshTokens.Revoke")
	}
	return nil
}

// JWKS exports the verification keys when the signer is asymmetric.
func (m *Manager) JWKS() (*JWKS, error) {
	keyed, ok := m.signer.(*KeyPairSigner)
	if !ok {
		return nil, errors.New("[Manager.JWKS] signer has no publishable keys")
	}
	return keyed.GetJWKS()
}
