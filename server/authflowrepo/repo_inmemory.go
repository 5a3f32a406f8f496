package authflowrepo

import (
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]*ParkedFlow
}

// NewInMemoryRepo creates a new in-memory parked-flow repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		flows: make(map[string]*ParkedFlow),
	}
}

// Upsert stores or updates a parked flow
func (r *InMemoryRepo) Upsert(flowID string, flow *ParkedFlow) error {
	if flowID == "" {
		return errors.New("flowID cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.flows[flowID] = flow
	return nil
}

// Get retrieves a parked flow by its id
func (r *InMemoryRepo) Get(flowID string) (*ParkedFlow, error) {
	if flowID == "" {
		return nil, errors.New("flowID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[flowID]
	if !exists {
		return nil, errors.New("flow not found")
	}
	return flow, nil
}

// Delete removes a parked flow
func (r *InMemoryRepo) Delete(flowID string) error {
	if flowID == "" {
		return errors.New("flowID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, flowID)
	return nil
}
