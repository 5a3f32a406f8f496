package clients

import "errors"

// ErrNotFound is returned by repositories when no client matches.
var ErrNotFound = errors.New("client not found")

// Repo is the client persistence contract. Implementations own
// consistency concerns (the engine performs no retries or locking).
type Repo interface {
	Get(clientID string) (*Client, error)
	Save(client *Client) error
	Delete(clientID string) error
}
