// Package users models resource-owner accounts: the people (or service
// identities) on whose behalf tokens are issued.
package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-oidc-provider/databag"
)

// Account is a resource owner known to the server. Claims carries the
// profile data surfaced through ID tokens and the userinfo endpoint.
type Account struct {
	ID           string           `json:"id,omitempty"`       // Unique identifier, the default "sub" value
	Username     string           `json:"username,omitempty"` // Unique login name
	PasswordHash string           `json:"-"`                  // Hashed password - never serialize
	Claims       *databag.DataBag `json:"claims,omitempty"`   // OIDC profile claims (email, name, ...)
	LastLoginAt  time.Time        `json:"last_login_at,omitempty"`
	Blocked      bool             `json:"blocked,omitempty"`
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash reports whether password matches the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// AuthenticatedWithin reports whether the account's last login is recent
// enough for the given max_age requirement.
func (a *Account) AuthenticatedWithin(maxAge time.Duration, now time.Time) bool {
	if a == nil {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return now.Sub(a.LastLoginAt) <= maxAge
}
