package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	DefaultDemoClientID = "demo-client"
	DefaultDemoUsername = "admin"
)

// InitialiseSystem seeds a development client and user so the server is
// usable straight after start. Outside DEV it does nothing; production
// deployments register clients through the registration endpoint.
func (s *Server) InitialiseSystem(_ context.Context, cfg config.Config) error {
	if s.env != "DEV" {
		return nil
	}
	baseURL := cfg.GetIssuer()

	if err := s.createDemoClient(baseURL); err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap demo client: %w", err)
	}

	generatedPassword, err := s.createDemoUser()
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap demo user: %w", err)
	}

	if generatedPassword != "" {
		log.Printf("📋 System Configuration:")
		log.Printf("   Issuer:      %s", baseURL)
		log.Printf("")
		log.Printf("👤 Demo User Credentials:")
		log.Printf("   Username:    %s", DefaultDemoUsername)
		log.Printf("   Password:    %s", generatedPassword)
		log.Printf("")
		log.Printf("🔐 OAuth2 Client Configured:")
		log.Printf("   Client ID:     %s", DefaultDemoClientID)
		log.Printf("   Authorization: %s%s", baseURL, RouteOAuth2Authorize)
		log.Printf("   Token:         %s%s", baseURL, RouteOAuth2Token)
		log.Printf("   Flow:          PKCE (public client)")
		log.Printf("   Redirect URI:  %s/callback", baseURL)
		log.Printf("")
		log.Printf("🌐 Discovery Endpoint:")
		log.Printf("   %s%s", baseURL, RouteWellKnownOpenIDConfig)
		log.Printf("")
	}
	return nil
}

// createDemoClient registers the public PKCE demo client if absent
func (s *Server) createDemoClient(baseURL string) error {
	if _, err := s.services.Clients.Get(DefaultDemoClientID); err == nil {
		return nil
	} else if !errors.Is(err, clients.ErrNotFound) {
		return errors.Wrap(err, "[Server createDemoClient] clients.Get")
	}

	metadata := databag.New()
	metadata.Set(clients.MetadataClientName, "Demo Client")
	metadata.Set(clients.MetadataGrantTypes, []string{"authorization_code", "refresh_token"})
	metadata.Set(clients.MetadataResponseTypes, []string{"code"})
	metadata.Set(clients.MetadataTokenEndpointAuthMethod, "none")
	metadata.Set(clients.MetadataRedirectURIs, []string{baseURL + "/callback"})
	metadata.Set(clients.MetadataScope, "openid profile email offline_access")
	metadata.Set(clients.MetadataScopePolicy, "default")
	metadata.Set(clients.MetadataDefaultScope, "openid")

	return s.services.Clients.Save(clients.New(DefaultDemoClientID, metadata))
}

// createDemoUser creates the demo user if absent and returns the
// generated password, empty when the user already exists
func (s *Server) createDemoUser() (string, error) {
	if _, err := s.services.Users.GetByUsername(DefaultDemoUsername); err == nil {
		return "", nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", errors.Wrap(err, "[Server createDemoUser] users.GetByUsername")
	}

	passwordBytes := make([]byte, 18)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", errors.Wrap(err, "[Server createDemoUser] rand.Read")
	}
	password := base64.RawURLEncoding.EncodeToString(passwordBytes)

	hash, err := users.HashPassword(password)
	if err != nil {
		return "", errors.Wrap(err, "[Server createDemoUser] hash password")
	}

	claims := databag.New()
	claims.Set("name", "Demo Admin")
	claims.Set("preferred_username", DefaultDemoUsername)

	account := &users.Account{
		ID:           uuid.New().String(),
		Username:     DefaultDemoUsername,
		PasswordHash: hash,
		Claims:       claims,
	}
	if err := s.services.Users.Upsert(account); err != nil {
		return "", errors.Wrap(err, "[Server createDemoUser] users.Upsert")
	}
	return password, nil
}
