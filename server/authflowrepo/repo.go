// Package authflowrepo stores authorization requests parked while the
// resource owner completes a login or consent step.
package authflowrepo

import (
	"time"

	"github.com/jrsteele09/go-oidc-provider/authorize"
)

type ParkedFlow struct {
	Request   *authorize.Request
	CreatedAt time.Time
}

type Repo interface {
	Upsert(flowID string, flow *ParkedFlow) error
	Get(flowID string) (*ParkedFlow, error)
	Delete(flowID string) error
}
