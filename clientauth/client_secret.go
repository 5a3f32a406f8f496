package clientauth

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// ClientSecretBasic authenticates with the client id and secret in the
// HTTP Basic Authorization header (RFC 6749 section 2.3.1).
type ClientSecretBasic struct{}

func (ClientSecretBasic) Name() oauth2.AuthMethod { return oauth2.AuthMethodClientSecretBasic }

func (ClientSecretBasic) FindCredentials(r *http.Request) (*Credentials, bool) {
	clientID, secret, ok := r.BasicAuth()
	if !ok || clientID == "" {
		return nil, false
	}
	return &Credentials{ClientID: clientID, Secret: secret}, true
}

func (ClientSecretBasic) Validate(client *clients.Client, credentials *Credentials, now time.Time) error {
	if !client.CheckSecret(credentials.Secret, now) {
		return errors.New("[ClientSecretBasic.Validate] secret check failed")
	}
	return nil
}

// ClientSecretPost authenticates with client_id and client_secret in the
// request body (RFC 6749 section 2.3.1).
type ClientSecretPost struct{}

func (ClientSecretPost) Name() oauth2.AuthMethod { return oauth2.AuthMethodClientSecretPost }

func (ClientSecretPost) FindCredentials(r *http.Request) (*Credentials, bool) {
	clientID := r.PostFormValue("client_id")
	secret := r.PostFormValue("client_secret")
	if clientID == "" || secret == "" {
		return nil, false
	}
	return &Credentials{ClientID: clientID, Secret: secret}, true
}

func (ClientSecretPost) Validate(client *clients.Client, credentials *Credentials, now time.Time) error {
	if !client.CheckSecret(credentials.Secret, now) {
		return errors.New("[ClientSecretPost.Validate] secret check failed")
	}
	return nil
}

// None identifies public clients: a bare client_id with no credential.
// Must be registered after the credentialed methods since its shape is a
// subset of theirs.
type None struct{}

func (None) Name() oauth2.AuthMethod { return oauth2.AuthMethodNone }

func (None) FindCredentials(r *http.Request) (*Credentials, bool) {
	clientID := r.PostFormValue("client_id")
	if clientID == "" {
		clientID = r.URL.Query().Get("client_id")
	}
	if clientID == "" || r.PostFormValue("client_secret") != "" || r.PostFormValue("client_assertion") != "" {
		return nil, false
	}
	return &Credentials{ClientID: clientID}, true
}

func (None) Validate(client *clients.Client, _ *Credentials, _ time.Time) error {
	if !client.IsPublic() {
		return errors.New("[None.Validate] confidential client without a credential")
	}
	return nil
}
