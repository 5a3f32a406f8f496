// Package grants implements the token endpoint engine: the grant-type
// registry, the dispatch pipeline and the before/after issuance
// extension chains.
package grants

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
)

// GrantTypeData accumulates the outcome of one token-endpoint exchange
// as it moves through the pipeline: the authenticated client, the
// resolved scope, and finally the resource owner bound by the grant.
type GrantTypeData struct {
	Client          *clients.Client
	ResourceOwnerID string
	Scope           string

	// Parameters and Metadata are copied onto the issued token records.
	Parameters *databag.DataBag
	Metadata   *databag.DataBag

	// IssueRefreshToken is set by the grant when a refresh token should
	// accompany the access token (still subject to the client having
	// registered the refresh_token grant).
	IssueRefreshToken bool

	// consumedRefreshToken is populated by the refresh_token grant so
	// the endpoint can rotate it after successful issuance.
	consumedRefreshToken *token.RefreshToken
}

// NewGrantTypeData starts the pipeline state for a client.
func NewGrantTypeData(client *clients.Client) *GrantTypeData {
	return &GrantTypeData{
		Client:     client,
		Parameters: databag.New(),
		Metadata:   databag.New(),
	}
}

// ConsumedRefreshToken returns the refresh token consumed by this
// exchange, if any.
func (d *GrantTypeData) ConsumedRefreshToken() *token.RefreshToken {
	return d.consumedRefreshToken
}

// GrantType is a named token-endpoint strategy.
type GrantType interface {
	// Name is the grant_type parameter value this strategy serves.
	Name() oauth2.GrantType

	// AssociatedResponseTypes lists the authorization-endpoint response
	// types this grant backs, used by registration compatibility rules.
	AssociatedResponseTypes() []oauth2.ResponseType

	// CheckRequest verifies the required parameters are present,
	// returning invalid_request otherwise.
	CheckRequest(r *http.Request) error

	// PrepareResponse is a pre-issuance hook; often a no-op.
	PrepareResponse(ctx context.Context, r *http.Request, data *GrantTypeData) error

	// Grant resolves and binds the resource owner, or fails with
	// invalid_grant.
	Grant(ctx context.Context, r *http.Request, data *GrantTypeData) error
}

// Registry is the immutable grant-type name map built at process start.
type Registry struct {
	grantTypes map[oauth2.GrantType]GrantType
	names      []oauth2.GrantType
}

// NewRegistry registers grant types in order.
func NewRegistry(grantTypes ...GrantType) *Registry {
	r := &Registry{grantTypes: make(map[oauth2.GrantType]GrantType)}
	for _, g := range grantTypes {
		if _, ok := r.grantTypes[g.Name()]; !ok {
			r.names = append(r.names, g.Name())
		}
		r.grantTypes[g.Name()] = g
	}
	return r
}

// Get resolves a grant type by name.
func (r *Registry) Get(name oauth2.GrantType) (GrantType, bool) {
	g, ok := r.grantTypes[name]
	return g, ok
}

// Has reports whether a grant type name is registered.
func (r *Registry) Has(name oauth2.GrantType) bool {
	_, ok := r.grantTypes[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []oauth2.GrantType {
	out := make([]oauth2.GrantType, len(r.names))
	copy(out, r.names)
	return out
}

// ResponseTypesFor aggregates the response types associated with a set
// of grant-type names, for registration compatibility checks.
func (r *Registry) ResponseTypesFor(grantTypeNames []string) []oauth2.ResponseType {
	seen := make(map[oauth2.ResponseType]bool)
	var out []oauth2.ResponseType
	for _, name := range grantTypeNames {
		g, ok := r.grantTypes[oauth2.GrantType(name)]
		if !ok {
			continue
		}
		for _, rt := range g.AssociatedResponseTypes() {
			if !seen[rt] {
				seen[rt] = true
				out = append(out, rt)
			}
		}
	}
	return out
}
