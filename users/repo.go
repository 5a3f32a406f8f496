package users

import "errors"

// ErrNotFound is returned by repositories when no account matches.
var ErrNotFound = errors.New("account not found")

// Repo is the resource-owner discovery contract.
type Repo interface {
	GetByID(id string) (*Account, error)
	GetByUsername(username string) (*Account, error)
	Upsert(account *Account) error
}

// CredentialValidator implements the resource-owner password credential
// check for the password grant over a Repo. A credential mismatch and an
// unknown user are deliberately indistinguishable.
type CredentialValidator struct {
	repo Repo
}

// NewCredentialValidator builds a validator over the account repo.
func NewCredentialValidator(repo Repo) *CredentialValidator {
	return &CredentialValidator{repo: repo}
}

// Check returns the account id when the username/password pair is valid.
func (v *CredentialValidator) Check(username, password string) (string, bool) {
	account, err := v.repo.GetByUsername(username)
	if err != nil || account == nil || account.Blocked {
		return "", false
	}
	if !CheckPasswordHash(password, account.PasswordHash) {
		return "", false
	}
	return account.ID, true
}
