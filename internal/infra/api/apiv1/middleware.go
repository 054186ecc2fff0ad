package apiv1

import (
	"context"
	"net/http"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

type ctxKey struct{}

// authenticate resolves the session to an existing user or answers 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.sessions.ParseFromRequest(r)
		if err != nil {
			s.writeError(w, r, domain.Unauthorized("User not authenticated"))
			return
		}
		user, err := s.users.Authenticate(r.Context(), claims.UserID())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		ctx = logging.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}

func userID(r *http.Request) string {
	if u := userFrom(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

func urlParam(r *http.Request, name string) string { return chi.URLParam(r, name) }
