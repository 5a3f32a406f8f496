package oauth2

// TokenResponse is the token endpoint success payload as defined in
// RFC 6749 section 5.1, extended with the OIDC id_token member.
//
// The token endpoint engine assembles the payload as an ordered DataBag
// so after-issuance extensions can attach custom members; this struct is
// the typed view used by clients and tests to decode it.
type TokenResponse struct {
	// AccessToken is the issued access token (a signed JWT here).
	// Usage: "Authorization: Bearer <access_token>".
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token with identity claims.
	// Only present when the "openid" scope was granted and a resource
	// owner (not a client acting for itself) is bound to the grant.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is how the access token is to be presented; always
	// "bearer" in this implementation.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. A hint; the
	// authoritative expiry is the token's own exp claim.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque, single-use token for obtaining new
	// access tokens. Rotated on every refresh_token grant.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space-separated granted scope. May differ from the
	// requested scope after policy substitution.
	Scope string `json:"scope,omitempty"`
}
