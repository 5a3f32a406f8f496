// Package authorizefakerepo provides in-memory stores for the
// authorization engine, used in tests and local development.
package authorizefakerepo

import (
	"sync"

	"github.com/jrsteele09/go-oidc-provider/authorize"
)

// FakeAuthorizationRepo stores standing approvals in memory, keyed by
// client and resource owner.
type FakeAuthorizationRepo struct {
	mu        sync.RWMutex
	approvals map[string]*authorize.PreConfiguredAuthorization
}

var _ authorize.PreConfiguredAuthorizationRepo = (*FakeAuthorizationRepo)(nil)

// NewFakeAuthorizationRepo creates an empty store.
func NewFakeAuthorizationRepo() *FakeAuthorizationRepo {
	return &FakeAuthorizationRepo{approvals: make(map[string]*authorize.PreConfiguredAuthorization)}
}

func approvalKey(clientID, resourceOwnerID string) string {
	return clientID + "\x00" + resourceOwnerID
}

// Get returns the approval for the client and resource owner.
func (r *FakeAuthorizationRepo) Get(clientID, resourceOwnerID string) (*authorize.PreConfiguredAuthorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	approval, ok := r.approvals[approvalKey(clientID, resourceOwnerID)]
	if !ok {
		return nil, authorize.ErrPreConfiguredNotFound
	}
	copied := *approval
	return &copied, nil
}

// Save stores the approval.
func (r *FakeAuthorizationRepo) Save(approval *authorize.PreConfiguredAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *approval
	r.approvals[approvalKey(approval.ClientID, approval.ResourceOwnerID)] = &copied
	return nil
}

// Delete removes the approval with the given id.
func (r *FakeAuthorizationRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, approval := range r.approvals {
		if approval.ID == id {
			delete(r.approvals, key)
			return nil
		}
	}
	return authorize.ErrPreConfiguredNotFound
}

// FakePendingAuthorizationStore records requests authorized with the
// "none" response type.
type FakePendingAuthorizationStore struct {
	mu      sync.RWMutex
	pending []*authorize.Request
}

var _ authorize.PendingAuthorizationStore = (*FakePendingAuthorizationStore)(nil)

// NewFakePendingAuthorizationStore creates an empty store.
func NewFakePendingAuthorizationStore() *FakePendingAuthorizationStore {
	return &FakePendingAuthorizationStore{}
}

// Save records the request.
func (s *FakePendingAuthorizationStore) Save(req *authorize.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, req)
	return nil
}

// All returns the recorded requests.
func (s *FakePendingAuthorizationStore) All() []*authorize.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authorize.Request, len(s.pending))
	copy(out, s.pending)
	return out
}
