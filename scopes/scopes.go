// Package scopes resolves and validates requested token scope against
// server policy and per-client configuration.
package scopes

import (
	"strings"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Policy names stable across configuration and client metadata.
const (
	PolicyNone    = "none"
	PolicyDefault = "default"
	PolicyError   = "error"
)

// Policy decides what happens when a request carries an empty scope.
// Apply must be idempotent on a non-empty scope: it returns the input
// unchanged.
type Policy interface {
	Name() string
	Apply(scope string, client *clients.Client) (string, error)
}

// NonePolicy leaves an empty scope empty.
type NonePolicy struct{}

func (NonePolicy) Name() string { return PolicyNone }

func (NonePolicy) Apply(scope string, _ *clients.Client) (string, error) {
	return scope, nil
}

// DefaultPolicy substitutes the client's default_scope, falling back to
// the server-wide default.
type DefaultPolicy struct {
	ServerDefault string
}

func (DefaultPolicy) Name() string { return PolicyDefault }

func (p DefaultPolicy) Apply(scope string, client *clients.Client) (string, error) {
	if scope != "" {
		return scope, nil
	}
	if clientDefault := client.DefaultScope(); clientDefault != "" {
		return clientDefault, nil
	}
	return p.ServerDefault, nil
}

// ErrorPolicy rejects requests that omit the scope entirely.
type ErrorPolicy struct{}

func (ErrorPolicy) Name() string { return PolicyError }

func (ErrorPolicy) Apply(scope string, _ *clients.Client) (string, error) {
	if scope != "" {
		return scope, nil
	}
	return "", oauth2.NewError(oauth2.ErrCodeInvalidScope, "An empty scope is not allowed.")
}

// Manager is the immutable policy registry plus the process-wide default
// selection. Built once at start; safe for concurrent reads.
type Manager struct {
	policies      map[string]Policy
	names         []string
	defaultPolicy string
}

// NewManager registers policies in order and selects the process-wide
// default by name. An empty defaultPolicy disables policy substitution
// for clients without a scope_policy of their own.
func NewManager(defaultPolicy string, policies ...Policy) *Manager {
	m := &Manager{policies: make(map[string]Policy), defaultPolicy: defaultPolicy}
	for _, p := range policies {
		if _, ok := m.policies[p.Name()]; !ok {
			m.names = append(m.names, p.Name())
		}
		m.policies[p.Name()] = p
	}
	return m
}

// Get resolves a policy by name.
func (m *Manager) Get(name string) (Policy, bool) {
	p, ok := m.policies[name]
	return p, ok
}

// Names returns registered policy names in registration order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Has reports whether a policy name is registered.
func (m *Manager) Has(name string) bool {
	_, ok := m.policies[name]
	return ok
}

// Apply resolves the effective policy (client scope_policy metadata over
// the server default) and applies it. A non-empty scope always passes
// through unchanged.
func (m *Manager) Apply(scope string, client *clients.Client) (string, error) {
	if scope != "" {
		return scope, nil
	}
	policyName := client.ScopePolicy()
	if policyName == "" {
		policyName = m.defaultPolicy
	}
	if policyName == "" {
		return scope, nil
	}
	policy, ok := m.policies[policyName]
	if !ok {
		// An unknown policy on a stored client is a configuration fault,
		// not a client mistake.
		return "", oauth2.ServerError()
	}
	return policy.Apply(scope, client)
}

// Check validates that every requested scope token is inside the
// client's allowed scope set.
func (m *Manager) Check(scope string, client *clients.Client) error {
	for _, s := range strings.Fields(scope) {
		if !client.HasScope(s) {
			return oauth2.NewError(oauth2.ErrCodeInvalidScope, "An unsupported scope was requested.")
		}
	}
	return nil
}
