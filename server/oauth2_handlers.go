package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/authorize"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// WellKnownOpenIDConfig serves the OIDC discovery document. Supported
// capabilities are read from the live registries, not hard-coded.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetIssuer()

		var responseTypes []string
		for _, rt := range s.services.ResponseTypes.Names() {
			responseTypes = append(responseTypes, string(rt))
		}
		var grantTypes []string
		for _, gt := range s.services.GrantTypes.Names() {
			grantTypes = append(grantTypes, string(gt))
		}
		var authMethods []string
		for _, m := range s.services.ClientAuth.Names() {
			authMethods = append(authMethods, string(m))
		}

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":    baseURL + RouteOAuth2Revoke,
			"introspection_endpoint": baseURL + RouteOAuth2Introspect,
			"registration_endpoint":  baseURL + RouteOAuth2Register,

			"response_types_supported": responseTypes,
			"response_modes_supported": []string{"query", "fragment", "form_post"},
			"subject_types_supported":  []string{"public", "pairwise"},

			"id_token_signing_alg_values_supported": []string{"RS256"},

			"scopes_supported": []string{
				"openid",
				"profile",
				"email",
				"phone",
				"address",
				"offline_access",
			},

			"token_endpoint_auth_methods_supported": authMethods,
			"grant_types_supported":                 grantTypes,
			"code_challenge_methods_supported":      s.services.PKCEMethods.Names(),

			"claims_supported": []string{
				"sub",
				"email",
				"email_verified",
				"name",
				"given_name",
				"family_name",
				"preferred_username",
			},

			"claims_parameter_supported":      false,
			"request_parameter_supported":     false,
			"request_uri_parameter_supported": false,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.services.Tokens.JWKS()
		if err != nil {
			http.Error(w, "Failed to get JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Authorize begins the authorization flow
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := s.sessionAccount(r)

		resp, err := s.services.Authorize.Authorize(r.Context(), r.URL.Query(), account)
		if err != nil {
			log.Error().Err(err).Msg("[Server.Authorize] authorization flow")
		}
		s.writeAuthorizeResponse(w, r, resp)
	}
}

func (s *Server) writeAuthorizeResponse(w http.ResponseWriter, r *http.Request, resp *authorize.Response) {
	switch resp.Kind {
	case authorize.ResponseRedirect:
		http.Redirect(w, r, resp.Location, http.StatusSeeOther)
	case authorize.ResponseFormPost:
		w.Header().Set("Content-Type", contentTypeHTML)
		_, _ = io.WriteString(w, resp.HTML)
	case authorize.ResponseLoginRequired:
		s.parkAndRedirect(w, r, resp.Request, RouteLogin)
	case authorize.ResponseConsentRequired:
		s.parkAndRedirect(w, r, resp.Request, RouteConsent)
	default:
		writeOAuthError(w, resp.Err)
	}
}

// Token exchanges code/credentials for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := s.services.TokenEndpoint.Handle(r.Context(), r)
		if err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// Introspect introspects tokens. The caller must authenticate as a
// registered client; the response never explains an inactive token.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.services.ClientAuth.Authenticate(r); err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}

		rawToken := r.PostFormValue("token")
		if rawToken == "" {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "token" parameter is missing.`))
			return
		}

		introspection, err := s.services.Tokens.Introspect(rawToken)
		if err != nil {
			log.Error().Err(err).Msg("[Server.Introspect] introspection")
			writeOAuthError(w, oauth2.ServerError())
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(introspection)
	}
}

// Revoke revokes tokens. Unknown tokens still yield 200 per RFC 7009.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.services.ClientAuth.Authenticate(r); err != nil {
			s.writeTokenEndpointError(w, err)
			return
		}

		rawToken := r.PostFormValue("token")
		if rawToken == "" {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "token" parameter is missing.`))
			return
		}

		var err error
		switch r.PostFormValue("token_type_hint") {
		case "refresh_token":
			err = s.services.Tokens.RevokeRefreshToken(rawToken)
		case "access_token":
			err = s.services.Tokens.RevokeAccessToken(rawToken)
		default:
			// Without a hint both stores are tried; revoking an unknown
			// token is a no-op in either.
			if err = s.services.Tokens.RevokeRefreshToken(rawToken); err == nil {
				err = s.services.Tokens.RevokeAccessToken(rawToken)
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("[Server.Revoke] revocation")
			writeOAuthError(w, oauth2.ServerError())
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// Register performs dynamic client registration
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requested := databag.New()
		if err := json.NewDecoder(r.Body).Decode(requested); err != nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "The registration request body is not valid JSON."))
			return
		}

		client, err := s.services.Registrations.Register(r.Context(), bearerToken(r), requested)
		if err != nil {
			oauthErr := oauth2.AsError(err)
			if oauthErr.Code == oauth2.ErrCodeServerError {
				log.Error().Err(err).Msg("[Server.Register] registration")
			}
			writeOAuthError(w, oauthErr)
			return
		}

		resp := client.Metadata.Copy()
		resp.Set("client_id", client.ID)

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// UserInfo returns claims about the resource owner behind a bearer token
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken := bearerToken(r)
		if accessToken == "" {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidToken, "Missing Authorization header"))
			return
		}

		introspection, err := s.services.Tokens.Introspect(accessToken)
		if err != nil || !introspection.Active || introspection.Sub == nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidToken, "The access token is invalid."))
			return
		}

		account, err := s.services.Users.GetByID(*introspection.Sub)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidToken, "The access token is invalid."))
				return
			}
			log.Error().Err(err).Msg("[Server.UserInfo] account lookup")
			writeOAuthError(w, oauth2.ServerError())
			return
		}

		resp := account.Claims.Copy()
		resp.Set("sub", account.ID)

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// writeTokenEndpointError serializes a token-endpoint failure, adding
// the WWW-Authenticate challenge on client-authentication failures.
func (s *Server) writeTokenEndpointError(w http.ResponseWriter, err error) {
	oauthErr := oauth2.AsError(err)
	if oauthErr.Code == oauth2.ErrCodeServerError {
		log.Error().Err(err).Msg("[Server] token endpoint")
	}
	if oauthErr.StatusCode() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", oauthErr.Challenge(s.services.ClientAuth.Realm(), s.services.ClientAuth.Schemes()...))
	}
	writeOAuthError(w, oauthErr)
}

func writeOAuthError(w http.ResponseWriter, oauthErr *oauth2.Error) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(oauthErr.StatusCode())
	_ = json.NewEncoder(w).Encode(oauthErr)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
