package middleware

import (
	"context"
	"net/http"
	"strings"
)

// 1. Context key for the authenticated caller
type contextKey string

const CallerKey contextKey = "caller"

// Caller is who the auth collaborator says is calling. It is trusted as is.
type Caller struct {
	Identity string
	Role     string
}

// 2. Define what we need from the token service
// This interface decouples 'middleware' from 'auth'
type TokenValidator interface {
	ValidateToken(tokenString string) (Caller, error)
}

// 3. The Middleware Structure
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// 4. The actual Handler
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		// Check Authorization Header
		authHeader := r.Header.Get("Authorization")
		if scheme, token, ok := strings.Cut(authHeader, " "); ok && strings.EqualFold(scheme, "Bearer") {
			tokenString = strings.TrimSpace(token)
		}

		// Fallback: Check Query Param (browsers cannot set headers on websocket upgrades)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		caller, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, CallerKey, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(CallerKey).(Caller)
	return c, ok
}
