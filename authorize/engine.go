package authorize

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/pkce"
	"github.com/jrsteele09/go-oidc-provider/scopes"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// ResponseKind discriminates the deliverables the engine can produce.
type ResponseKind int

const (
	// ResponseRedirect is a 303 redirect to Location.
	ResponseRedirect ResponseKind = iota

	// ResponseFormPost is a 200 text/html auto-submitting form.
	ResponseFormPost

	// ResponseJSON is a direct JSON error response. Used when no safe
	// redirect target exists or the response mode cannot be determined.
	ResponseJSON

	// ResponseLoginRequired asks the caller to render the login step and
	// resume the flow afterwards.
	ResponseLoginRequired

	// ResponseConsentRequired asks the caller to render the consent
	// screen and resume the flow with the resource owner's decision.
	ResponseConsentRequired
)

// Response is the engine's deliverable. Exactly one of Location, HTML or
// Err is meaningful depending on Kind; Request is set on the interaction
// kinds so the caller can park the flow and resume it.
type Response struct {
	Kind     ResponseKind
	Location string
	HTML     string
	Err      *oauth2.Error
	Request  *Request
}

// Engine drives the authorization endpoint: request validation, response
// type and mode resolution, scope policy, consent orchestration and
// response delivery.
type Engine struct {
	clients       clients.Repo
	responseTypes *TypeRegistry
	responseModes *ModeRegistry
	pkceMethods   *pkce.Registry
	scopePolicies *scopes.Manager
	consent       *chain.Chain[*ConsentContext]

	allowModeParameter   bool
	requirePKCEForPublic bool
	nowFunc              func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithModeParameter enables the response_mode request parameter. Off by
// default; each response type then always uses its own default mode.
func WithModeParameter() EngineOption {
	return func(e *Engine) { e.allowModeParameter = true }
}

// WithPKCERequiredForPublicClients rejects code requests from public
// clients that carry no code_challenge.
func WithPKCERequiredForPublicClients() EngineOption {
	return func(e *Engine) { e.requirePKCEForPublic = true }
}

// WithEngineNowFunc overrides the time source.
func WithEngineNowFunc(nowFunc func() time.Time) EngineOption {
	return func(e *Engine) { e.nowFunc = nowFunc }
}

// NewEngine wires the engine from its collaborators.
func NewEngine(
	clientRepo clients.Repo,
	responseTypes *TypeRegistry,
	responseModes *ModeRegistry,
	pkceMethods *pkce.Registry,
	scopePolicies *scopes.Manager,
	consent *chain.Chain[*ConsentContext],
	options ...EngineOption,
) *Engine {
	e := &Engine{
		clients:       clientRepo,
		responseTypes: responseTypes,
		responseModes: responseModes,
		pkceMethods:   pkceMethods,
		scopePolicies: scopePolicies,
		consent:       consent,
		nowFunc:       time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Authorize runs a fresh authorization request end to end. account is
// the current resource-owner session or nil. The returned error is the
// underlying cause for logging; the Response is always usable.
func (e *Engine) Authorize(ctx context.Context, query url.Values, account *users.Account) (*Response, error) {
	req := NewRequest(query)
	req.Account = account

	if resp, err := e.validate(req); resp != nil {
		return resp, err
	}
	return e.decide(ctx, req)
}

// Continue re-evaluates a parked flow, typically after the resource
// owner authenticated. The caller sets req.Account beforehand.
func (e *Engine) Continue(ctx context.Context, req *Request) (*Response, error) {
	return e.decide(ctx, req)
}

// Resume continues a parked flow after the resource owner decided on the
// consent screen.
func (e *Engine) Resume(ctx context.Context, req *Request, authorized bool) (*Response, error) {
	req.Authorized = authorized
	if !authorized {
		return e.deliverError(req, oauth2.NewError(oauth2.ErrCodeAccessDenied, "The resource owner denied the request.")), nil
	}
	return e.decide(ctx, req)
}

// validate checks everything that must hold before any redirect may be
// issued. A non-nil Response here is always a direct JSON error: the
// redirect target or the response shape itself is not trustworthy yet.
func (e *Engine) validate(req *Request) (*Response, error) {
	clientID := req.Param("client_id")
	if clientID == "" {
		return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "client_id" parameter is missing.`)), nil
	}
	client, err := e.clients.Get(clientID)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest, "The client is unknown.")), nil
		}
		return jsonError(oauth2.ServerError()), errors.Wrap(err, "[Engine.validate] clients.Get")
	}
	req.Client = client

	if resp := e.validateRedirectURI(req); resp != nil {
		return resp, nil
	}
	if resp := e.resolveResponseTypes(req); resp != nil {
		return resp, nil
	}
	if resp := e.resolveResponseMode(req); resp != nil {
		return resp, nil
	}

	// From here on errors travel back to the client by redirect.
	if oauthErr := e.validatePKCE(req); oauthErr != nil {
		return e.deliverError(req, oauthErr), nil
	}
	scope, err := e.scopePolicies.Apply(req.Param("scope"), client)
	if err != nil {
		oauthErr := oauth2.AsError(err)
		if oauthErr.Code == oauth2.ErrCodeServerError {
			return e.deliverError(req, oauthErr), errors.Wrap(err, "[Engine.validate] scope policy")
		}
		return e.deliverError(req, oauthErr), nil
	}
	if err := e.scopePolicies.Check(scope, client); err != nil {
		return e.deliverError(req, oauth2.AsError(err)), nil
	}
	req.Scope = scope
	return nil, nil
}

func (e *Engine) validateRedirectURI(req *Request) *Response {
	uri := req.Param("redirect_uri")
	if uri == "" {
		registered := req.Client.RedirectURIs()
		if len(registered) != 1 {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "redirect_uri" parameter is missing.`))
		}
		req.RedirectURI = registered[0]
		return nil
	}
	if !req.Client.HasRedirectURI(uri) {
		return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest, "The redirect URI is not registered for the client."))
	}
	req.RedirectURI = uri
	return nil
}

func (e *Engine) resolveResponseTypes(req *Request) *Response {
	raw := req.Param("response_type")
	if raw == "" {
		return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "response_type" parameter is missing.`))
	}
	names := strings.Fields(raw)
	for _, name := range names {
		if _, ok := e.responseTypes.Get(oauth2.ResponseType(name)); !ok {
			return jsonError(oauth2.NewError(oauth2.ErrCodeUnsupportedResponseType,
				fmt.Sprintf("The response type %q is not supported.", name)))
		}
		if name == string(oauth2.NoneResponseType) && len(names) > 1 {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest,
				`The response type "none" cannot be used with another response type.`))
		}
	}
	if !req.Client.HasResponseType(names) {
		return jsonError(oauth2.NewError(oauth2.ErrCodeUnauthorizedClient,
			"The client is not allowed to use the requested response type."))
	}
	req.ResponseTypes = names
	return nil
}

// resolveResponseMode picks the delivery mode. An explicit response_mode
// parameter is honoured only when enabled and never when it would move a
// fragment-default response into the query string.
func (e *Engine) resolveResponseMode(req *Request) *Response {
	defaultMode := oauth2.QueryResponseMode
	for _, name := range req.ResponseTypes {
		t, _ := e.responseTypes.Get(oauth2.ResponseType(name))
		if t.DefaultResponseMode() == oauth2.FragmentResponseMode {
			defaultMode = oauth2.FragmentResponseMode
		}
	}

	modeName := defaultMode
	if requested := req.Param("response_mode"); requested != "" {
		if !e.allowModeParameter {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest,
				`The "response_mode" parameter is not supported.`))
		}
		candidate := oauth2.ResponseModeType(requested)
		if _, ok := e.responseModes.Get(candidate); !ok {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest,
				fmt.Sprintf("The response mode %q is not supported.", requested)))
		}
		if defaultMode == oauth2.FragmentResponseMode && candidate == oauth2.QueryResponseMode {
			return jsonError(oauth2.NewError(oauth2.ErrCodeInvalidRequest,
				`The response mode "query" cannot deliver the requested response type.`))
		}
		modeName = candidate
	}

	mode, ok := e.responseModes.Get(modeName)
	if !ok {
		return jsonError(oauth2.ServerError())
	}
	req.ResponseMode = mode
	return nil
}

func (e *Engine) validatePKCE(req *Request) *oauth2.Error {
	challenge := req.Param("code_challenge")
	if challenge == "" {
		if e.requirePKCEForPublic && req.Client.IsPublic() && req.HasResponseType(string(oauth2.CodeResponseType)) {
			return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "code_challenge" parameter is required for this client.`)
		}
		return nil
	}
	method := req.Param("code_challenge_method")
	if method == "" {
		method = string(oauth2.CodeMethodPlain)
	}
	if _, ok := e.pkceMethods.Get(method); !ok {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest,
			fmt.Sprintf("The code challenge method %q is not supported.", method))
	}
	return nil
}

// decide runs the consent chain and finishes or parks the flow.
func (e *Engine) decide(ctx context.Context, req *Request) (*Response, error) {
	consent, err := e.consent.Process(ctx, &ConsentContext{Request: req})
	if err != nil {
		return e.deliverError(req, oauth2.ServerError()), errors.Wrap(err, "[Engine.decide] consent chain")
	}

	switch consent.Status {
	case StatusNeedsLogin, StatusNeedsConsent:
		if req.HasPrompt("none") {
			return e.deliverError(req, promptNoneError(consent.Status)), nil
		}
		if consent.Status == StatusNeedsLogin {
			return &Response{Kind: ResponseLoginRequired, Request: req}, nil
		}
		return &Response{Kind: ResponseConsentRequired, Request: req}, nil
	case StatusDecided:
		if !req.Authorized {
			return e.deliverError(req, oauth2.NewError(oauth2.ErrCodeAccessDenied, "The resource owner denied the request.")), nil
		}
		return e.finish(ctx, req)
	default:
		return e.deliverError(req, oauth2.ServerError()), errors.New("[Engine.decide] consent chain left the request undecided")
	}
}

// finish runs every requested response type and delivers the combined
// parameters through the resolved mode.
func (e *Engine) finish(ctx context.Context, req *Request) (*Response, error) {
	for _, name := range req.ResponseTypes {
		t, ok := e.responseTypes.Get(oauth2.ResponseType(name))
		if !ok {
			return e.deliverError(req, oauth2.ServerError()), errors.Errorf("[Engine.finish] response type %q vanished", name)
		}
		if err := t.Process(ctx, req); err != nil {
			return e.deliverError(req, oauth2.AsError(err)), errors.Wrapf(err, "[Engine.finish] response type %q", name)
		}
	}

	params := make(map[string]string, req.ResponseParameters.Len())
	for _, key := range req.ResponseParameters.Keys() {
		params[key] = fmt.Sprint(req.ResponseParameters.Get(key))
	}
	if state := req.State(); state != "" {
		params["state"] = state
	}
	resp, err := req.ResponseMode.Build(req.RedirectURI, params)
	if err != nil {
		return jsonError(oauth2.ServerError()), errors.Wrap(err, "[Engine.finish] build response")
	}
	return resp, nil
}

// deliverError sends a protocol error back by redirect when a validated
// redirect target exists, preferring the resolved mode and falling back
// to the query string. Without a target it degrades to a JSON response.
func (e *Engine) deliverError(req *Request, oauthErr *oauth2.Error) *Response {
	oauthErr = oauthErr.WithState(req.State())
	if req.RedirectURI == "" {
		return jsonError(oauthErr)
	}
	mode := req.ResponseMode
	if mode == nil {
		mode = QueryMode{}
	}
	resp, err := mode.Build(req.RedirectURI, oauthErr.Params())
	if err != nil {
		return jsonError(oauthErr)
	}
	return resp
}

func jsonError(oauthErr *oauth2.Error) *Response {
	return &Response{Kind: ResponseJSON, Err: oauthErr}
}
