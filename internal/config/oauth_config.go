package config

import (
	"strings"
	"time"
)

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetDefaultScope() string
	GetEnableResponseModeParameter() bool
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return 15 * time.Minute
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return 7 * 24 * time.Hour // 7 days
}

// GetDefaultScope is the server-wide scope applied when a client has
// the default scope policy but no default_scope of its own.
func (OAuth) GetDefaultScope() string {
	return GetEnv("DEFAULT_SCOPE", "openid")
}

// GetEnableResponseModeParameter controls whether clients may pick a
// response mode with the response_mode request parameter.
func (OAuth) GetEnableResponseModeParameter() bool {
	return strings.EqualFold(GetEnv("ENABLE_RESPONSE_MODE_PARAMETER", "false"), "true")
}
