package middleware

import (
	"context"
	"net/http"
	"strings"

	"auction-service/internal/domain"
	"auction-service/pkg/response"
)

type contextKey string

const (
	ContextUserID contextKey = "userID"
	ContextRole   contextKey = "role"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Actor copies the identity headers set by the upstream gateway into the
// request context. Requests without them pass through anonymously.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))))
		if role == "" {
			role = domain.RoleBuyer
		}
		ctx := context.WithValue(r.Context(), ContextUserID, userID)
		ctx = context.WithValue(ctx, ContextRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetActor(ctx context.Context) (domain.Actor, bool) {
	userID, ok := ctx.Value(ContextUserID).(string)
	if !ok || userID == "" {
		return domain.Actor{}, false
	}
	role, _ := ctx.Value(ContextRole).(domain.Role)
	return domain.Actor{ID: userID, Role: role}, true
}

// RequireActor rejects anonymous requests and unknown roles.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActor(r.Context())
		if !ok {
			response.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !actor.Role.Valid() {
			response.Error(w, http.StatusUnauthorized, "Unknown role "+string(actor.Role))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only the listed roles. It must run after RequireActor.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := GetActor(r.Context())
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden, "Forbidden")
		})
	}
}
