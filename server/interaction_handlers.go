package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/authorize"
	"github.com/jrsteele09/go-oidc-provider/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-provider/server/loginsession"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	sessionCookieName = "oidc_session"
	flowCookieName    = "oidc_flow"
)

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in - {{.AppName}}</title></head>
<body>
<h1>Sign in</h1>
{{- if .Error}}
<p>{{.Error}}</p>
{{- end}}
<form method="post" action="` + RouteAuthLogin + `">
<label>Username <input type="text" name="username" value="{{.Username}}"/></label>
<label>Password <input type="password" name="password"/></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}} - {{.AppName}}</title></head>
<body>
<h1>Authorize {{.ClientName}}</h1>
<p>The application requests access to: {{.Scope}}</p>
<form method="post" action="` + RouteConsent + `">
<button type="submit" name="decision" value="approve">Allow</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>
`))

// LoginPageHandler serves the sign-in form for a parked flow
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"AppName":  s.config.GetAppName(),
			"Error":    r.URL.Query().Get("error"),
			"Username": r.URL.Query().Get("username"),
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		_ = loginTemplate.Execute(w, data)
	}
}

// LoginSubmissionHandler validates credentials and resumes the parked
// authorization flow
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	validator := users.NewCredentialValidator(s.services.Users)

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form submission", http.StatusBadRequest)
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		userID, ok := validator.Check(username, password)
		if !ok {
			http.Redirect(w, r, RouteLogin+"?error=Invalid+credentials", http.StatusSeeOther)
			return
		}

		account, err := s.services.Users.GetByID(userID)
		if err != nil {
			log.Error().Err(err).Msg("[Server.LoginSubmissionHandler] account lookup")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		account.LastLoginAt = time.Now()
		if err := s.services.Users.Upsert(account); err != nil {
			log.Error().Err(err).Msg("[Server.LoginSubmissionHandler] account update")
		}

		sessionID := uuid.New().String()
		session := loginsession.Session{
			UserID:    userID,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(s.config.GetMaxSessionAge()),
		}
		if err := s.loginSessions.Upsert(sessionID, session); err != nil {
			log.Error().Err(err).Msg("[Server.LoginSubmissionHandler] session create")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		s.setCookie(w, r, sessionCookieName, sessionID)

		flow, flowID := s.parkedFlow(r)
		if flow == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		flow.Request.Account = account

		resp, err := s.services.Authorize.Continue(r.Context(), flow.Request)
		if err != nil {
			log.Error().Err(err).Msg("[Server.LoginSubmissionHandler] resume flow")
		}
		// The parked record is finished either way: a flow that still
		// needs consent is re-parked under a fresh id.
		_ = s.authFlows.Delete(flowID)
		s.writeAuthorizeResponse(w, r, resp)
	}
}

// LogoutHandler clears the login session
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			_ = s.loginSessions.Delete(cookie.Value)
		}
		s.clearCookie(w, r, sessionCookieName)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// ConsentGetHandler renders the consent screen for a parked flow
func (s *Server) ConsentGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, _ := s.parkedFlow(r)
		if flow == nil {
			http.Error(w, "no authorization in progress", http.StatusBadRequest)
			return
		}

		clientName := flow.Request.Client.Metadata.GetString("client_name")
		if clientName == "" {
			clientName = flow.Request.Client.ID
		}
		scope := flow.Request.Scope
		if scope == "" {
			scope = "(no scope)"
		}

		data := map[string]any{
			"AppName":    s.config.GetAppName(),
			"ClientName": clientName,
			"Scope":      scope,
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		_ = consentTemplate.Execute(w, data)
	}
}

// ConsentPostHandler records the resource owner's decision and resumes
// the parked flow
func (s *Server) ConsentPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form submission", http.StatusBadRequest)
			return
		}

		flow, flowID := s.parkedFlow(r)
		if flow == nil {
			http.Error(w, "no authorization in progress", http.StatusBadRequest)
			return
		}
		if flow.Request.Account == nil {
			flow.Request.Account = s.sessionAccount(r)
		}

		approved := r.PostFormValue("decision") == "approve"
		resp, err := s.services.Authorize.Resume(r.Context(), flow.Request, approved)
		if err != nil {
			log.Error().Err(err).Msg("[Server.ConsentPostHandler] resume flow")
		}
		_ = s.authFlows.Delete(flowID)
		s.clearCookie(w, r, flowCookieName)
		s.writeAuthorizeResponse(w, r, resp)
	}
}

// parkAndRedirect stores the in-flight request and sends the resource
// owner to the interaction page
func (s *Server) parkAndRedirect(w http.ResponseWriter, r *http.Request, req *authorize.Request, target string) {
	flowID := uuid.New().String()
	flow := &authflowrepo.ParkedFlow{Request: req, CreatedAt: time.Now()}
	if err := s.authFlows.Upsert(flowID, flow); err != nil {
		log.Error().Err(err).Msg("[Server.parkAndRedirect] park flow")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.setCookie(w, r, flowCookieName, flowID) // Keep the flow id out of the URL
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parkedFlow loads the in-flight request referenced by the flow cookie,
// returning the flow id so callers can discard the record once the flow
// is dispatched
func (s *Server) parkedFlow(r *http.Request) (*authflowrepo.ParkedFlow, string) {
	cookie, err := r.Cookie(flowCookieName)
	if err != nil {
		return nil, ""
	}
	flow, err := s.authFlows.Get(cookie.Value)
	if err != nil {
		return nil, ""
	}
	return flow, cookie.Value
}

// sessionAccount resolves the current resource-owner session, nil when
// there is none or it expired
func (s *Server) sessionAccount(r *http.Request) *users.Account {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	session, err := s.loginSessions.Get(cookie.Value)
	if err != nil || session.Expired(time.Now()) {
		return nil
	}
	account, err := s.services.Users.GetByID(session.UserID)
	if err != nil {
		return nil
	}
	return account
}

func (s *Server) setCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
