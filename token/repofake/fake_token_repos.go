package tokenfakerepo

import (
	"sync"

	"github.com/jrsteele09/go-oidc-provider/token"
)

var (
	_ token.AccessTokenRepo        = (*FakeAccessTokenRepo)(nil)
	_ token.RefreshTokenRepo       = (*FakeRefreshTokenRepo)(nil)
	_ token.AuthorizationCodeRepo  = (*FakeAuthorizationCodeRepo)(nil)
	_ token.InitialAccessTokenRepo = (*FakeInitialAccessTokenRepo)(nil)
)

type FakeAccessTokenRepo struct {
	tokens map[string]*token.AccessToken
	lock   sync.RWMutex
}

func NewFakeAccessTokenRepo() *FakeAccessTokenRepo {
	return &FakeAccessTokenRepo{tokens: make(map[string]*token.AccessToken)}
}

func (r *FakeAccessTokenRepo) Save(accessToken *token.AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[accessToken.ID] = accessToken
	return nil
}

func (r *FakeAccessTokenRepo) Get(id string) (*token.AccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, token.ErrNotFound
	}
	return t, nil
}

func (r *FakeAccessTokenRepo) Revoke(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return token.ErrNotFound
	}
	t.Revoked = true
	return nil
}

type FakeRefreshTokenRepo struct {
	tokens map[string]*token.RefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{tokens: make(map[string]*token.RefreshToken)}
}

func (r *FakeRefreshTokenRepo) Save(refreshToken *token.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[refreshToken.Token] = refreshToken
	return nil
}

func (r *FakeRefreshTokenRepo) Get(tokenStr string) (*token.RefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tokens[tokenStr]
	if !ok {
		return nil, token.ErrNotFound
	}
	return t, nil
}

func (r *FakeRefreshTokenRepo) Revoke(tokenStr string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.tokens[tokenStr]
	if !ok {
		return token.ErrNotFound
	}
	t.Revoked = true
	return nil
}

type FakeAuthorizationCodeRepo struct {
	codes map[string]*token.AuthorizationCode
	lock  sync.RWMutex
}

func NewFakeAuthorizationCodeRepo() *FakeAuthorizationCodeRepo {
	return &FakeAuthorizationCodeRepo{codes: make(map[string]*token.AuthorizationCode)}
}

func (r *FakeAuthorizationCodeRepo) Save(authorizationCode *token.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.codes[authorizationCode.Code] = authorizationCode
	return nil
}

func (r *FakeAuthorizationCodeRepo) Get(code string) (*token.AuthorizationCode, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, token.ErrNotFound
	}
	return c, nil
}

func (r *FakeAuthorizationCodeRepo) MarkUsed(code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return token.ErrNotFound
	}
	if c.Used {
		return token.ErrNotFound // single use: a second consumption must fail
	}
	c.Used = true
	return nil
}

func (r *FakeAuthorizationCodeRepo) Revoke(code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return token.ErrNotFound
	}
	c.Revoked = true
	return nil
}

type FakeInitialAccessTokenRepo struct {
	tokens map[string]*token.InitialAccessToken
	lock   sync.RWMutex
}

func NewFakeInitialAccessTokenRepo() *FakeInitialAccessTokenRepo {
	return &FakeInitialAccessTokenRepo{tokens: make(map[string]*token.InitialAccessToken)}
}

func (r *FakeInitialAccessTokenRepo) Save(initialAccessToken *token.InitialAccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[initialAccessToken.ID] = initialAccessToken
	return nil
}

func (r *FakeInitialAccessTokenRepo) Get(id string) (*token.InitialAccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, token.ErrNotFound
	}
	return t, nil
}

func (r *FakeInitialAccessTokenRepo) Revoke(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return token.ErrNotFound
	}
	t.Revoked = true
	return nil
}
