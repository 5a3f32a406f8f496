package server

func (s *Server) initRoutes() {
	// LOGIN & CONSENT
	s.RegisterRouteFunc("GET "+RouteLogin, s.LoginPageHandler())
	s.RegisterRouteFunc("POST "+RouteAuthLogin, s.LoginSubmissionHandler())
	s.RegisterRouteFunc("GET "+RouteAuthLogout, s.LogoutHandler())
	s.RegisterRouteFunc("GET "+RouteConsent, s.ConsentGetHandler())
	s.RegisterRouteFunc("POST "+RouteConsent, s.ConsentPostHandler())

	// OAuth2 / OIDC API routes
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Register, ChainMiddleware(s.Register(), s.APIMiddleware()...))

	// Protected OAuth2 endpoints (require valid access token or client credentials)
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
}
