package config

import (
	"strings"
	"time"
)

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetMaxSessionAge() time.Duration
	GetEnableRateLimiting() bool
	GetRateLimitPerSecond() float64
	GetRateLimitBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetRequirePKCE makes code_challenge mandatory for public clients.
func (Security) GetRequirePKCE() bool {
	return strings.EqualFold(GetEnv("REQUIRE_PKCE", "false"), "true")
}

func (Security) GetMaxSessionAge() time.Duration {
	return 30 * time.Minute // Sessions expire after 30 minutes
}

func (Security) GetEnableRateLimiting() bool {
	return strings.EqualFold(GetEnv("ENABLE_RATE_LIMITING", "false"), "true")
}

func (Security) GetRateLimitPerSecond() float64 {
	return 10
}

func (Security) GetRateLimitBurst() int {
	return 20
}
