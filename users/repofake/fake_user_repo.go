package fakeuserrepo

import (
	"sync"

	"github.com/jrsteele09/go-oidc-provider/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byID       map[string]*users.Account
	byUsername map[string]string // username to account ID
	lock       sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:       make(map[string]*users.Account),
		byUsername: make(map[string]string),
	}
}

func (r *FakeUserRepo) Upsert(account *users.Account) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.byID[account.ID] = account
	r.byUsername[account.Username] = account.ID
	return nil
}

func (r *FakeUserRepo) GetByID(id string) (*users.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return account, nil
}

func (r *FakeUserRepo) GetByUsername(username string) (*users.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	return r.byID[id], nil
}
