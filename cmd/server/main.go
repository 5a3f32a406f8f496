package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	jose "github.com/go-jose/go-jose/v4"

	"github.com/jrsteele09/go-oidc-provider/authorize"
	authorizefakerepo "github.com/jrsteele09/go-oidc-provider/authorize/repofake"
	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	fakeclientrepo "github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/grants"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/registration"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/server"
	"github.com/jrsteele09/go-oidc-provider/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-provider/server/loginsession"
	"github.com/jrsteele09/go-oidc-provider/subject"
	"github.com/jrsteele09/go-oidc-provider/token"
	tokenfakerepo "github.com/jrsteele09/go-oidc-provider/token/repofake"
	"github.com/jrsteele09/go-oidc-provider/users"
	fakeuserrepo "github.com/jrsteele09/go-oidc-provider/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	services, err := buildServices(c)
	if err != nil {
		return fmt.Errorf("buildServices: %w", err)
	}

	srv, err := server.New(c, services, loginsession.NewInMemoryRepo(), authflowrepo.NewInMemoryRepo())
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServices wires every registry and engine explicitly. All
// registries are constructed once here and never mutated afterwards.
func buildServices(c config.Config) (server.Services, error) {
	clientRepo := fakeclientrepo.NewFakeClientRepo()
	userRepo := fakeuserrepo.NewFakeUserRepo()
	accessTokens := tokenfakerepo.NewFakeAccessTokenRepo()
	refreshTokens := tokenfakerepo.NewFakeRefreshTokenRepo()
	authorizationCodes := tokenfakerepo.NewFakeAuthorizationCodeRepo()
	initialAccessTokens := tokenfakerepo.NewFakeInitialAccessTokenRepo()

	keyPair, err := token.GenerateRSAKeyPair("primary", 2048)
	if err != nil {
		return server.Services{}, fmt.Errorf("generate signing key: %w", err)
	}
	signer := token.NewKeyPairSigner(keyPair)

	subjectResolver := subject.NewResolver(subject.NewHashedIdentifier([]byte(config.GetEnv("PAIRWISE_SALT", "dev-pairwise-salt"))))

	tokens := token.New(accessTokens, refreshTokens, c.GetIssuer(), signer,
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultIDTokenExpiry(), c.GetDefaultRefreshTokenExpiry()),
		token.WithAudience(c.GetIssuer()),
		token.WithSubjectResolver(subjectResolver),
	)

	pkceMethods := pkce.NewRegistry(pkce.S256{}, pkce.Plain{})

	scopePolicies := scopes.NewManager(scopes.PolicyDefault,
		scopes.NonePolicy{},
		scopes.DefaultPolicy{ServerDefault: c.GetDefaultScope()},
		scopes.ErrorPolicy{},
	)

	// "none" must come last: it matches any request carrying a client_id.
	clientAuth := clientauth.NewRegistry(clientRepo, c.GetRealm(), []clientauth.Method{
		clientauth.ClientSecretBasic{},
		clientauth.ClientSecretPost{},
		clientauth.ClientAssertionJWT{Audience: c.GetIssuer() + server.RouteOAuth2Token},
		clientauth.None{},
	})

	registeredGrants := []grants.GrantType{
		grants.NewAuthorizationCode(authorizationCodes, pkceMethods, nil),
		grants.ClientCredentials{},
		grants.NewRefreshToken(tokens),
		grants.NewPassword(users.NewCredentialValidator(userRepo)),
		grants.NewImplicit(),
		grants.NewNone(),
	}
	if issuer, jwksURL := config.GetEnv("ASSERTION_ISSUER", ""), config.GetEnv("ASSERTION_JWKS_URL", ""); issuer != "" && jwksURL != "" {
		verifier := grants.NewRemoteKeySetVerifier(context.Background(), issuer, jwksURL)
		registeredGrants = append(registeredGrants, grants.NewJWTBearer(verifier, c.GetIssuer(), nil))
	}
	grantTypes := grants.NewRegistry(registeredGrants...)

	tokenEndpoint := grants.NewEndpoint(grantTypes, clientAuth, tokens,
		grants.WithBeforeIssuance(chain.New[*grants.GrantTypeData](
			grants.NewScopeExtension(scopePolicies),
		)),
		grants.WithAfterIssuance(chain.New[*grants.IssuanceResult](
			grants.NewOpenIDConnectExtension(tokens, userRepo),
		)),
	)

	approvals := authorizefakerepo.NewFakeAuthorizationRepo()
	pending := authorizefakerepo.NewFakePendingAuthorizationStore()

	responseTypes := authorize.NewTypeRegistry(
		authorize.NewCodeType(authorizationCodes, c.GetAuthCodeTimeout(), nil),
		authorize.NewTokenType(tokens),
		authorize.NewNoneType(pending),
	)
	responseModes := authorize.NewModeRegistry(
		authorize.QueryMode{},
		authorize.FragmentMode{},
		authorize.FormPostMode{},
	)

	consentChain := chain.New[*authorize.ConsentContext](
		authorize.NewAuthenticationGate(nil),
		authorize.NewPreConfiguredGate(approvals, nil),
		authorize.ConsentGate{},
	)

	var engineOptions []authorize.EngineOption
	if c.GetEnableResponseModeParameter() {
		engineOptions = append(engineOptions, authorize.WithModeParameter())
	}
	if c.GetRequirePKCE() {
		engineOptions = append(engineOptions, authorize.WithPKCERequiredForPublicClients())
	}
	authorizeEngine := authorize.NewEngine(clientRepo, responseTypes, responseModes, pkceMethods, scopePolicies, consentChain, engineOptions...)

	registrationRuleSet := []registration.Rule{
		registration.NewGrantTypeRule(grantTypes),
		registration.RedirectURIRule{},
		registration.ContactsRule{},
		registration.NewScopeRule(scopePolicies),
		registration.NewAuthMethodRule(clientAuth),
		registration.PassthroughRule{Keys: []string{
			clients.MetadataClientName,
			clients.MetadataSubjectType,
			clients.MetadataSectorIdentifierURI,
		}},
	}
	if rawJWKS := config.GetEnv("SOFTWARE_STATEMENT_JWKS", ""); rawJWKS != "" {
		var statementKeys jose.JSONWebKeySet
		if err := json.Unmarshal([]byte(rawJWKS), &statementKeys); err != nil {
			return server.Services{}, fmt.Errorf("parse SOFTWARE_STATEMENT_JWKS: %w", err)
		}
		// Verified statement claims override directly requested metadata,
		// so the rule sits at the end of the chain.
		registrationRuleSet = append(registrationRuleSet, registration.NewSoftwareStatementRule(&statementKeys, []string{
			clients.MetadataClientName,
			clients.MetadataRedirectURIs,
			clients.MetadataGrantTypes,
			clients.MetadataResponseTypes,
			clients.MetadataScope,
		}))
	}
	registrationRules := chain.New[*registration.Context](registrationRuleSet...)
	// Registration is open unless an initial access token is configured;
	// the configured token is seeded so the gate can actually pass.
	registrationOptions := []registration.ServiceOption{}
	if iat := config.GetEnv("REGISTRATION_INITIAL_ACCESS_TOKEN", ""); iat != "" {
		if err := initialAccessTokens.Save(&token.InitialAccessToken{ID: iat}); err != nil {
			return server.Services{}, fmt.Errorf("seed initial access token: %w", err)
		}
		registrationOptions = append(registrationOptions, registration.WithInitialAccessTokens(initialAccessTokens))
	}
	registrations := registration.NewService(registrationRules, clientRepo, registrationOptions...)

	return server.Services{
		Clients:       clientRepo,
		Users:         userRepo,
		Tokens:        tokens,
		TokenEndpoint: tokenEndpoint,
		Authorize:     authorizeEngine,
		Registrations: registrations,
		ClientAuth:    clientAuth,
		GrantTypes:    grantTypes,
		ResponseTypes: responseTypes,
		PKCEMethods:   pkceMethods,
		ScopePolicies: scopePolicies,
	}, nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
