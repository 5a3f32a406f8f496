// Package registration implements dynamic client registration: a rule
// chain validating and normalizing the requested metadata, an optional
// initial-access-token gate, and the registering service.
package registration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
)

// Context is the subject flowing through the registration rule chain.
// Rules read the requested metadata and write only what they accepted
// into Validated; nothing is persisted until the whole chain completes.
type Context struct {
	Requested *databag.DataBag
	Validated *databag.DataBag
}

// Rule is a link in the registration rule chain.
type Rule = chain.Handler[*Context]

// Service registers clients after running the rule chain.
type Service struct {
	rules         *chain.Chain[*Context]
	clients       clients.Repo
	initialAccess token.InitialAccessTokenRepo
	newID         func() string
	newSecret     func() (string, error)
	nowFunc       func() time.Time
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithInitialAccessTokens gates anonymous registration behind a bearer
// token checked against the given store.
func WithInitialAccessTokens(repo token.InitialAccessTokenRepo) ServiceOption {
	return func(s *Service) { s.initialAccess = repo }
}

// WithIDFunc overrides client-identifier generation.
func WithIDFunc(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// WithSecretFunc overrides client-secret generation.
func WithSecretFunc(newSecret func() (string, error)) ServiceOption {
	return func(s *Service) { s.newSecret = newSecret }
}

// WithNowFunc overrides the time source.
func WithNowFunc(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) { s.nowFunc = nowFunc }
}

// NewService builds the registration service over the rule chain.
func NewService(rules *chain.Chain[*Context], clientRepo clients.Repo, options ...ServiceOption) *Service {
	s := &Service{
		rules:     rules,
		clients:   clientRepo,
		newID:     func() string { return uuid.New().String() },
		newSecret: generateSecret,
		nowFunc:   time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Register validates the requested metadata and persists a new client.
// bearerToken is the caller's initial access token; ignored unless the
// service was configured with a token store. Any rule failure aborts the
// registration with nothing persisted.
func (s *Service) Register(ctx context.Context, bearerToken string, requested *databag.DataBag) (*clients.Client, error) {
	if s.initialAccess != nil {
		if err := s.checkInitialAccess(bearerToken); err != nil {
			return nil, err
		}
	}

	regCtx := &Context{Requested: requested.Copy(), Validated: databag.New()}
	regCtx, err := s.rules.Process(ctx, regCtx)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] rule chain")
	}

	client := clients.New(s.newID(), regCtx.Validated)

	// Every supported method except "none" authenticates with a shared
	// secret, so confidential clients get one minted here. The secret is
	// returned once, in the registration response.
	if !client.IsPublic() {
		secret, err := s.newSecret()
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Register] secret generation")
		}
		client.Metadata.Set(clients.MetadataClientSecret, secret)
	}

	if err := s.clients.Save(client); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] clients.Save")
	}
	return client, nil
}

// generateSecret mints a 256-bit URL-safe client secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[generateSecret] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// checkInitialAccess rejects missing, unknown, expired or revoked
// tokens before the rule chain runs.
func (s *Service) checkInitialAccess(bearerToken string) error {
	if bearerToken == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, "An initial access token is required.")
	}
	iat, err := s.initialAccess.Get(bearerToken)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return oauth2.NewError(oauth2.ErrCodeInvalidRequest, "The initial access token is invalid.")
		}
		return errors.Wrap(err, "[Service.checkInitialAccess] initialAccess.Get")
	}
	if iat.Revoked || iat.Expired(s.nowFunc()) {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, "The initial access token is invalid.")
	}
	return nil
}
