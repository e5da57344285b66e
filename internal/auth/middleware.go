package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

type contextKey string

const StaffIDKey contextKey = "staff_id"

// StaffID returns the staff id stored by JWTMiddleware.
func StaffID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(StaffIDKey).(uint)
	return id, ok
}

// JWTMiddleware guards plain chi routes. It accepts an API key or the session
// cookie and slides the session once it is past half its lifetime.
func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-KEY"); apiKey != "" {
			staffID, err := h.staffForAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), StaffIDKey, staffID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		cookie, err := r.Cookie(TokenCookieName)
		if err != nil {
			http.Error(w, "Unauthorized: No token found", http.StatusUnauthorized)
			return
		}

		claims, err := h.parseToken(cookie.Value)
		if err != nil {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		if time.Until(claims.expires) < TokenDuration/2 {
			if newToken, err := h.GenerateToken(claims.staffID); err == nil {
				http.SetCookie(w, h.tokenCookie(newToken))
			}
		}

		ctx := context.WithValue(r.Context(), StaffIDKey, claims.staffID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if se, ok := err.(huma.StatusError); ok {
		status = se.GetStatus()
	}
	http.Error(w, err.Error(), status)
}
