package authorize

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// ConsentStatus is the tagged outcome of the consent pipeline. Needing
// interaction is an ordinary pipeline result, not an error: the caller
// inspects the status and renders the matching interaction step.
type ConsentStatus int

const (
	// StatusContinue means no handler has claimed the request yet.
	StatusContinue ConsentStatus = iota

	// StatusNeedsLogin means the resource owner must authenticate
	// (again) before the flow can proceed.
	StatusNeedsLogin

	// StatusNeedsConsent means an authenticated resource owner must be
	// asked to approve the requested access.
	StatusNeedsConsent

	// StatusDecided means the authorization decision is recorded on the
	// request and the flow can complete.
	StatusDecided
)

// ConsentContext is the subject flowing through the consent chain.
type ConsentContext struct {
	Request *Request
	Status  ConsentStatus
}

// ConsentHandler is a link in the consent chain.
type ConsentHandler = chain.Handler[*ConsentContext]

// AuthenticationGate demands a live resource-owner session. A missing
// account, a session older than the effective max_age, or an explicit
// prompt=login all stop the chain with StatusNeedsLogin.
type AuthenticationGate struct {
	nowFunc func() time.Time
}

// NewAuthenticationGate builds the gate; nowFunc defaults to time.Now.
func NewAuthenticationGate(nowFunc func() time.Time) *AuthenticationGate {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &AuthenticationGate{nowFunc: nowFunc}
}

// Handle checks the session and either stops with StatusNeedsLogin or
// passes the context on.
func (g *AuthenticationGate) Handle(ctx context.Context, consent *ConsentContext, next chain.Next[*ConsentContext]) (*ConsentContext, error) {
	req := consent.Request
	switch {
	case req.Account == nil:
		consent.Status = StatusNeedsLogin
	case req.HasPrompt("login"):
		consent.Status = StatusNeedsLogin
	default:
		if maxAge, ok := req.MaxAge(); ok && !req.Account.AuthenticatedWithin(maxAge, g.nowFunc()) {
			consent.Status = StatusNeedsLogin
		}
	}
	if consent.Status == StatusNeedsLogin {
		return consent, nil
	}
	return next(ctx, consent)
}

// PreConfiguredAuthorization records a standing approval: the named
// resource owner has already granted the client the given scope, so the
// consent screen is skipped for matching requests.
type PreConfiguredAuthorization struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	ResourceOwnerID string     `json:"resource_owner_id"`
	Scope           string     `json:"scope"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Revoked         bool       `json:"revoked"`
}

// Covers reports whether the standing approval satisfies a request for
// the given scope at now. Every requested scope token must be covered.
func (p *PreConfiguredAuthorization) Covers(scope string, now time.Time) bool {
	if p.Revoked {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return scopeSubset(scope, p.Scope)
}

// ErrPreConfiguredNotFound signals no standing approval matched.
var ErrPreConfiguredNotFound = errors.New("pre-configured authorization not found")

// PreConfiguredAuthorizationRepo stores standing approvals.
type PreConfiguredAuthorizationRepo interface {
	Get(clientID, resourceOwnerID string) (*PreConfiguredAuthorization, error)
	Save(auth *PreConfiguredAuthorization) error
	Delete(id string) error
}

// PreConfiguredGate resolves standing approvals. A covering approval
// decides the flow without a consent screen; otherwise the chain
// continues.
type PreConfiguredGate struct {
	repo    PreConfiguredAuthorizationRepo
	nowFunc func() time.Time
}

// NewPreConfiguredGate builds the gate over the approval store.
func NewPreConfiguredGate(repo PreConfiguredAuthorizationRepo, nowFunc func() time.Time) *PreConfiguredGate {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &PreConfiguredGate{repo: repo, nowFunc: nowFunc}
}

func (g *PreConfiguredGate) Handle(ctx context.Context, consent *ConsentContext, next chain.Next[*ConsentContext]) (*ConsentContext, error) {
	req := consent.Request
	if req.HasPrompt("consent") {
		return next(ctx, consent)
	}
	approval, err := g.repo.Get(req.Client.ID, req.Account.ID)
	if err != nil {
		if errors.Is(err, ErrPreConfiguredNotFound) {
			return next(ctx, consent)
		}
		return consent, errors.Wrap(err, "[PreConfiguredGate.Handle] repo.Get")
	}
	if !approval.Covers(req.Scope, g.nowFunc()) {
		return next(ctx, consent)
	}
	req.Authorized = true
	consent.Status = StatusDecided
	return consent, nil
}

// ConsentGate is the terminal handler: a request that reaches it without
// a recorded decision needs the consent screen; a decided request passes
// through as StatusDecided.
type ConsentGate struct{}

func (ConsentGate) Handle(_ context.Context, consent *ConsentContext, _ chain.Next[*ConsentContext]) (*ConsentContext, error) {
	if consent.Request.Authorized {
		consent.Status = StatusDecided
		return consent, nil
	}
	consent.Status = StatusNeedsConsent
	return consent, nil
}

// RememberDecisionGate persists an approval after an explicit consent so
// the next matching request skips the screen. Placed before ConsentGate
// it runs only on already-decided requests.
type RememberDecisionGate struct {
	repo   PreConfiguredAuthorizationRepo
	newID  func() string
	enable bool
}

// NewRememberDecisionGate builds the gate; newID supplies approval IDs.
func NewRememberDecisionGate(repo PreConfiguredAuthorizationRepo, newID func() string) *RememberDecisionGate {
	return &RememberDecisionGate{repo: repo, newID: newID, enable: true}
}

func (g *RememberDecisionGate) Handle(ctx context.Context, consent *ConsentContext, next chain.Next[*ConsentContext]) (*ConsentContext, error) {
	if !g.enable || !consent.Request.Authorized {
		return next(ctx, consent)
	}
	approval := &PreConfiguredAuthorization{
		ID:              g.newID(),
		ClientID:        consent.Request.Client.ID,
		ResourceOwnerID: consent.Request.Account.ID,
		Scope:           consent.Request.Scope,
	}
	if err := g.repo.Save(approval); err != nil {
		return consent, errors.Wrap(err, "[RememberDecisionGate.Handle] repo.Save")
	}
	return next(ctx, consent)
}

// promptNoneError maps an interaction-needed status onto the protocol
// error mandated when the client forbade interaction with prompt=none.
func promptNoneError(status ConsentStatus) *oauth2.Error {
	if status == StatusNeedsLogin {
		return oauth2.NewError(oauth2.ErrCodeLoginRequired, "The resource owner is not authenticated.")
	}
	return oauth2.NewError(oauth2.ErrCodeConsentRequired, "The resource owner's consent is required.")
}

// scopeSubset reports whether every token of requested appears in granted.
func scopeSubset(requested, granted string) bool {
	have := make(map[string]struct{})
	for _, s := range strings.Fields(granted) {
		have[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}
