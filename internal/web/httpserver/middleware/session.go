package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"myidoru.app/web/internal/web/observability"
	appsession "myidoru.app/web/internal/web/session"
)

type sessionContextKey string

const requestSessionKey sessionContextKey = "web.session"

// SessionStore abstracts the session manager for middleware integration.
type SessionStore interface {
	Load(*http.Request) (*appsession.Session, error)
	New() *appsession.Session
	Save(http.ResponseWriter, *appsession.Session) error
}

// Session attaches the decoded session to the request context and persists
// it to the client cookie just before the response headers are sent.
func Session(store SessionStore) func(http.Handler) http.Handler {
	if store == nil {
		panic("session store is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			sess, err := store.Load(r)
			if errors.Is(err, appsession.ErrExpired) {
				logger.Debug("session expired: resetting")
				sess = store.New()
			} else if err != nil || sess == nil {
				if err != nil {
					logger.Warn("session load failed", zap.Error(err))
				}
				sess = store.New()
			}

			save := func(w http.ResponseWriter) {
				if err := store.Save(w, sess); err != nil {
					logger.Error("session save failed", zap.Error(err))
				}
			}
			hw := newHookWriter(w, save)

			ctx := context.WithValue(r.Context(), requestSessionKey, sess)
			next.ServeHTTP(hw, r.WithContext(ctx))

			// Nothing written (e.g. an empty 200); persist now.
			hw.fire()
		})
	}
}

// SessionFromContext retrieves the session attached to this request.
func SessionFromContext(ctx context.Context) (*appsession.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(requestSessionKey).(*appsession.Session)
	return sess, ok && sess != nil
}
