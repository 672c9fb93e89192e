package api

import (
	"context"
	"net/http"
	"sync"

	"mspro-labs/coffee-finder/internal/state"
)

// SessionCookie carries the visitor's session id.
const SessionCookie = "coffee_session"

type sessionKey struct{}

// session resolves the visitor's store on first use, so requests that never
// touch state never allocate a session.
type session struct {
	reg   *state.Registry
	w     http.ResponseWriter
	r     *http.Request
	once  sync.Once
	store *state.Store
}

func (s *session) resolve() *state.Store {
	s.once.Do(func() {
		if c, err := s.r.Cookie(SessionCookie); err == nil {
			if store, ok := s.reg.Lookup(c.Value); ok {
				s.store = store
				return
			}
		}
		var id string
		id, s.store = s.reg.NewSession()
		http.SetCookie(s.w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	})
	return s.store
}

// Sessions makes the visitor's state store available through
// StoreFromContext. The cookie is read, or a new session started, the first
// time a handler asks for the store; it must do so before writing the body.
func Sessions(reg *state.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &session{reg: reg, w: w, r: r}
			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreFromContext returns the session store for the request, starting a
// session when the cookie is absent or expired. It returns nil outside the
// Sessions middleware.
func StoreFromContext(ctx context.Context) *state.Store {
	s, ok := ctx.Value(sessionKey{}).(*session)
	if !ok {
		return nil
	}
	return s.resolve()
}
