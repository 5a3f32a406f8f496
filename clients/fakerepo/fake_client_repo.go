package fakeclientrepo

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-oidc-provider/clients"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Save(client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	r.clients[client.ID] = client
	return nil
}

func (r *FakeClientRepo) Get(clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok || client == nil {
		return nil, clients.ErrNotFound
	}
	return client, nil
}

func (r *FakeClientRepo) Delete(clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.clients, clientID)
	return nil
}
