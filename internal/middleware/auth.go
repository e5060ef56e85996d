package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/checkout/internal/auth"
	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
)

type Storage interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

type contextKey string

const UserContextKey contextKey = "user"

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(UserContextKey).(model.User)
	return user, ok
}

func AuthMiddleware(store Storage, tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := tm.ParseToken(tokenStr)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := store.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, errs.ErrUserNotFound) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			// роль берём из базы, а не из токена: её могли поменять
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if user.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
