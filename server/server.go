// Package server exposes the OAuth2/OIDC engines over HTTP: the token,
// authorization, introspection, revocation and registration endpoints,
// the discovery document, and the minimal login/consent interaction
// pages used when a flow needs the resource owner.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/jrsteele09/go-oidc-provider/authorize"
	"github.com/jrsteele09/go-oidc-provider/clientauth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/grants"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/registration"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-provider/server/loginsession"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// Services bundles the wired engines and registries the server fronts.
type Services struct {
	Clients       clients.Repo
	Users         users.Repo
	Tokens        *token.Manager
	TokenEndpoint *grants.Endpoint
	Authorize     *authorize.Engine
	Registrations *registration.Service
	ClientAuth    *clientauth.Registry
	GrantTypes    *grants.Registry
	ResponseTypes *authorize.TypeRegistry
	PKCEMethods   *pkce.Registry
	ScopePolicies *scopes.Manager
}

type Server struct {
	env      string // Environment (e.g., "DEV", "production")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services

	loginSessions loginsession.Repo
	authFlows     authflowrepo.Repo
	limiter       *rate.Limiter
}

func New(cfg config.Config, services Services, loginSessionRepo loginsession.Repo, authFlowRepo authflowrepo.Repo) (*Server, error) {
	s := &Server{
		mux:           http.NewServeMux(),
		config:        cfg,
		services:      services,
		loginSessions: loginSessionRepo,
		authFlows:     authFlowRepo,
	}
	s.env = cfg.GetEnv()
	if cfg.GetEnableRateLimiting() {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.GetRateLimitPerSecond()), cfg.GetRateLimitBurst())
	}

	// Bootstrap: ensure a usable client and user exist in development
	ctx := context.Background()
	if err := s.InitialiseSystem(ctx, cfg); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
