// Package clients defines the registered OAuth2 client aggregate and its
// repository contract.
package clients

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/jrsteele09/go-oidc-provider/databag"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Metadata keys recognised on a registered client. They mirror the
// RFC 7591 client metadata names so a registration response can be
// produced from the bag directly.
const (
	MetadataGrantTypes              = "grant_types"
	MetadataResponseTypes           = "response_types"
	MetadataTokenEndpointAuthMethod = "token_endpoint_auth_method"
	MetadataRedirectURIs            = "redirect_uris"
	MetadataScope                   = "scope"
	MetadataScopePolicy             = "scope_policy"
	MetadataDefaultScope            = "default_scope"
	MetadataSubjectType             = "subject_type"
	MetadataSectorIdentifierURI     = "sector_identifier_uri"
	MetadataClientSecret            = "client_secret"
	MetadataClientSecretExpiresAt   = "client_secret_expires_at"
	MetadataClientName              = "client_name"
	MetadataContacts                = "contacts"
	MetadataSoftwareStatement       = "software_statement"
)

// Client is a registered OAuth2/OIDC client. Its behaviour is driven
// entirely by the registered metadata bag: the grant_types and
// response_types arrays bound which token- and authorization-endpoint
// strategies may be invoked on the client's behalf.
type Client struct {
	ID       string           `json:"client_id"`
	OwnerID  string           `json:"owner_id,omitempty"`
	Metadata *databag.DataBag `json:"metadata"`
}

// New builds a client over a metadata bag. A nil bag is replaced with an
// empty one.
func New(id string, metadata *databag.DataBag) *Client {
	if metadata == nil {
		metadata = databag.New()
	}
	return &Client{ID: id, Metadata: metadata}
}

// GrantTypes returns the grant types the client may invoke.
func (c *Client) GrantTypes() []string {
	return c.Metadata.GetStringSlice(MetadataGrantTypes)
}

// HasGrantType reports whether the client registered the grant type.
func (c *Client) HasGrantType(name string) bool {
	for _, g := range c.GrantTypes() {
		if g == name {
			return true
		}
	}
	return false
}

// ResponseTypes returns the response types the client may request. Each
// entry may itself be a space-separated combination ("code token").
func (c *Client) ResponseTypes() []string {
	return c.Metadata.GetStringSlice(MetadataResponseTypes)
}

// HasResponseType reports whether the requested combination is covered
// by one of the registered response_types entries, order-insensitively.
func (c *Client) HasResponseType(requested []string) bool {
	for _, registered := range c.ResponseTypes() {
		if sameResponseTypeSet(strings.Fields(registered), requested) {
			return true
		}
	}
	return false
}

func sameResponseTypeSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

// TokenEndpointAuthMethod returns the registered client authentication
// method, defaulting to client_secret_basic per RFC 7591.
func (c *Client) TokenEndpointAuthMethod() oauth2.AuthMethod {
	method := c.Metadata.GetString(MetadataTokenEndpointAuthMethod)
	if method == "" {
		return oauth2.AuthMethodClientSecretBasic
	}
	return oauth2.AuthMethod(method)
}

// IsPublic reports whether the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod() == oauth2.AuthMethodNone
}

// RedirectURIs returns the registered redirect URI whitelist.
func (c *Client) RedirectURIs() []string {
	return c.Metadata.GetStringSlice(MetadataRedirectURIs)
}

// HasRedirectURI reports whether uri exactly matches a registered one.
// Exact matching prevents open-redirect attacks.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs() {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowedScopes returns the scopes the client may be granted.
func (c *Client) AllowedScopes() []string {
	return strings.Fields(c.Metadata.GetString(MetadataScope))
}

// HasScope checks a single scope against the allowed set.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.AllowedScopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopePolicy returns the per-client scope policy name, or "" when the
// server-wide default applies.
func (c *Client) ScopePolicy() string {
	return c.Metadata.GetString(MetadataScopePolicy)
}

// DefaultScope returns the client's default scope, substituted when an
// empty requested scope meets the "default" policy.
func (c *Client) DefaultScope() string {
	return c.Metadata.GetString(MetadataDefaultScope)
}

// SubjectType returns the client's subject identifier type, defaulting
// to public.
func (c *Client) SubjectType() oauth2.SubjectType {
	if t := c.Metadata.GetString(MetadataSubjectType); t != "" {
		return oauth2.SubjectType(t)
	}
	return oauth2.SubjectTypePublic
}

// SectorIdentifierURI returns the registered sector identifier URI, if any.
func (c *Client) SectorIdentifierURI() string {
	return c.Metadata.GetString(MetadataSectorIdentifierURI)
}

// CheckSecret compares the candidate secret in constant time and honours
// the registered secret lifetime. The two failure modes are deliberately
// indistinguishable to the caller.
func (c *Client) CheckSecret(candidate string, now time.Time) bool {
	secret := c.Metadata.GetString(MetadataClientSecret)
	if secret == "" {
		return false
	}
	if expiresAt := c.Metadata.GetInt64(MetadataClientSecretExpiresAt); expiresAt > 0 {
		if now.Unix() >= expiresAt {
			return false
		}
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(candidate)) == 1
}
