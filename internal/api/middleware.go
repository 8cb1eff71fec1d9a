package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/kalambet/whatnow/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

// JWTAuth verifies the bearer token and stores the user ID in the request
// context for downstream handlers.
func JWTAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing bearer token")
				return
			}

			userID, err := auth.ParseToken(secret, header[len(prefix):])
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// requestUserID returns the authenticated user ID stored by JWTAuth.
func requestUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
