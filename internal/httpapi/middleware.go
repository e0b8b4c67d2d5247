package httpapi

import (
	"context"
	"net/http"

	"github.com/xjonsson/kin-api-server/internal/engine"
	"github.com/xjonsson/kin-api-server/internal/model"
)

type ctxKey int

const requestContextKey ctxKey = iota

// requestContext returns the engine context attached by ensureLoggedIn,
// nil on unauthenticated routes.
func requestContext(r *http.Request) *engine.RequestContext {
	rc, _ := r.Context().Value(requestContextKey).(*engine.RequestContext)
	return rc
}

// ensureLoggedIn resolves the session token, loads the user and attaches a
// request context. After the handler runs, a dirty user is saved; handlers
// that mutate the aggregate do not save themselves.
func (a *API) ensureLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := a.sessions.UserID(r)
		if err != nil {
			writeError(w, a.log, "", model.NewUnauthenticatedError())
			return
		}
		u, err := a.st.Load(ctx, userID)
		if err != nil {
			writeError(w, a.log, "", err)
			return
		}
		rc := a.svc.NewRequestContext(u)
		a.log.Debug("IN", "correlation_id", rc.ID, "method", r.Method, "path", r.URL.Path)

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, requestContextKey, rc)))

		// The request may have replaced the aggregate on reload; read it
		// back through the context before saving.
		if u := rc.User(); u.Dirty() {
			if err := u.Save(ctx); err != nil {
				a.log.Error("failed to save dirty user",
					"correlation_id", rc.ID,
					"user_id", u.ID(),
					"error", err)
			} else {
				a.log.Debug("saved dirty user", "correlation_id", rc.ID, "user_id", u.ID())
			}
		}
	})
}
