package engine

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/xjonsson/kin-api-server/internal/metrics"
	"github.com/xjonsson/kin-api-server/internal/store"
)

// RequestContext is the per-request execution context threaded through the
// engine: the authenticated user in a single mutable slot, an outbound
// request counter and a correlation id for diagnostics.
//
// The user slot is explicit because the retry ladder replaces the aggregate
// on reload (to observe another worker's completed refresh); callers must
// read it back through User() after an Execute.
type RequestContext struct {
	ID               string
	OutboundRequests int
	Metrics          *metrics.Collector
	Log              *slog.Logger

	user *store.User
}

// NewRequestContext creates a context for one API request.
func NewRequestContext(u *store.User) *RequestContext {
	return &RequestContext{
		ID:   uuid.NewString(),
		user: u,
	}
}

// User returns the current user aggregate.
func (rc *RequestContext) User() *store.User { return rc.user }

// SetUser replaces the user aggregate, typically after a reload.
func (rc *RequestContext) SetUser(u *store.User) { rc.user = u }

func (rc *RequestContext) logger() *slog.Logger {
	if rc.Log != nil {
		return rc.Log
	}
	return slog.Default()
}
