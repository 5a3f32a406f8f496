package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	issuerEnvVar = "ISSUER_URL"
	realmEnvVar  = "REALM"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go OIDC Provider")
}

// GetIssuer returns the issuer URL placed in the iss claim and the
// discovery document (e.g. "https://auth.example.com").
func (EnvVars) GetIssuer() string {
	return GetEnv(issuerEnvVar, "http://localhost:8080")
}

// GetRealm returns the protection realm echoed in WWW-Authenticate
// challenges.
func (EnvVars) GetRealm() string {
	return GetEnv(realmEnvVar, "oidc-provider")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
