// Package token holds the issued-credential records (access tokens,
// refresh tokens, authorization codes, initial access tokens), their
// repository contracts, the JWT signing layer and the issuing Manager.
package token

import (
	"time"

	"github.com/jrsteele09/go-oidc-provider/databag"
)

// Parameter keys stored in token parameter bags.
const (
	ParamTokenType           = "token_type"
	ParamScope               = "scope"
	ParamRedirectURI         = "redirect_uri"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamNonce               = "nonce"
)

// AccessToken is the server-side record of an issued access token. The
// wire form is a signed JWT whose jti equals ID. Created exactly once by
// the owning grant or response type; after issuance only the Revoked
// flag may change.
type AccessToken struct {
	ID               string           `json:"id"`
	ResourceOwnerID  string           `json:"resource_owner_id"`
	ClientID         string           `json:"client_id"`
	ResourceServerID string           `json:"resource_server_id,omitempty"`
	ExpiresAt        time.Time        `json:"expires_at"`
	Parameters       *databag.DataBag `json:"parameters"`
	Metadata         *databag.DataBag `json:"metadata"`
	Revoked          bool             `json:"revoked"`
}

// Scope returns the granted scope recorded with the token.
func (t *AccessToken) Scope() string {
	return t.Parameters.GetString(ParamScope)
}

// Expired reports whether the token is past its expiry at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshToken is the server-side record behind an opaque refresh token
// string. Rotation revokes the record and mints a replacement.
type RefreshToken struct {
	Token            string           `json:"token"`
	ResourceOwnerID  string           `json:"resource_owner_id"`
	ClientID         string           `json:"client_id"`
	ResourceServerID string           `json:"resource_server_id,omitempty"`
	ExpiresAt        time.Time        `json:"expires_at"`
	Parameters       *databag.DataBag `json:"parameters"`
	Metadata         *databag.DataBag `json:"metadata"`
	Revoked          bool             `json:"revoked"`
}

// Scope returns the scope recorded when the refresh token was minted.
func (t *RefreshToken) Scope() string {
	return t.Parameters.GetString(ParamScope)
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AuthorizationCode binds a pending authorization decision to a client.
// Single use: Used flips on the first token exchange and any further
// exchange must fail.
type AuthorizationCode struct {
	Code            string           `json:"code"`
	ClientID        string           `json:"client_id"`
	ResourceOwnerID string           `json:"resource_owner_id"`
	RedirectURI     string           `json:"redirect_uri"`
	ExpiresAt       time.Time        `json:"expires_at"`
	QueryParameters *databag.DataBag `json:"query_parameters"`
	Metadata        *databag.DataBag `json:"metadata"`
	Used            bool             `json:"used"`
	Revoked         bool             `json:"revoked"`
}

// Scope returns the scope the authorization was granted for.
func (c *AuthorizationCode) Scope() string {
	return c.QueryParameters.GetString(ParamScope)
}

// CodeChallenge returns the PKCE challenge recorded at issuance.
func (c *AuthorizationCode) CodeChallenge() string {
	return c.QueryParameters.GetString(ParamCodeChallenge)
}

// CodeChallengeMethod returns the PKCE method, defaulting to plain per
// RFC 7636 when a challenge is present without a method.
func (c *AuthorizationCode) CodeChallengeMethod() string {
	if m := c.QueryParameters.GetString(ParamCodeChallengeMethod); m != "" {
		return m
	}
	return "plain"
}

// Expired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// InitialAccessToken is the bootstrap credential gating anonymous client
// registration. Created and revoked by explicit commands only.
type InitialAccessToken struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Expired reports whether the token carries an expiry in the past.
func (t *InitialAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
