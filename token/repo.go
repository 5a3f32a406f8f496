package token

import "errors"

// ErrNotFound is returned by the token repositories when no record
// matches.
var ErrNotFound = errors.New("token not found")

// AccessTokenRepo persists access-token records keyed by jti. Single
// creation per id is the repository's consistency responsibility.
type AccessTokenRepo interface {
	Get(id string) (*AccessToken, error)
	Save(accessToken *AccessToken) error
	Revoke(id string) error
}

// RefreshTokenRepo persists refresh-token records keyed by the opaque
// token string.
type RefreshTokenRepo interface {
	Get(tokenStr string) (*RefreshToken, error)
	Save(refreshToken *RefreshToken) error
	Revoke(tokenStr string) error
}

// AuthorizationCodeRepo persists authorization codes. MarkUsed must be
// effective at most once per code; enforcing that (and therefore the
// single-use property) is the implementation's responsibility.
type AuthorizationCodeRepo interface {
	Get(code string) (*AuthorizationCode, error)
	Save(authorizationCode *AuthorizationCode) error
	MarkUsed(code string) error
	Revoke(code string) error
}

// InitialAccessTokenRepo persists registration bootstrap credentials.
type InitialAccessTokenRepo interface {
	Get(id string) (*InitialAccessToken, error)
	Save(initialAccessToken *InitialAccessToken) error
	Revoke(id string) error
}
