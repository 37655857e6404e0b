package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// Middleware creates an authentication middleware
func Middleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization header required"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				http.Error(w, `{"error":"invalid authorization format"}`, http.StatusUnauthorized)
				return
			}

			// Validate token
			claims, err := authService.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			// Add user info to context
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UsernameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware extracts user info if present, but doesn't require auth
func OptionalMiddleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
					if claims, err := authService.ValidateToken(parts[1]); err == nil {
						ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
						ctx = context.WithValue(ctx, UsernameKey, claims.Username)
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}

// GetUsername extracts username from context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// RequireAuth is a helper for handlers that need authentication
func RequireAuth(ctx context.Context) (uuid.UUID, error) {
	id, ok := GetUserID(ctx)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return id, nil
}

var ErrUnauthorized = &HTTPError{Status: http.StatusUnauthorized, Message: "unauthorized"}

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Identity is the outcome of resolving a socket handshake's bearer token:
// either an authenticated user or a guest.
type Identity struct {
	Authenticated bool
	UserID        uuid.UUID
	Username      string
}

// ResolveHandshake runs the Auth Gate's socket-side half (spec 4.D): a
// valid bearer token in handshake metadata yields an authenticated
// identity; anything else (absent, malformed, expired, invalid signature)
// yields a guest, never a rejection. Called once at connection setup,
// never from a subsequent message event.
func (s *Service) ResolveHandshake(ctx context.Context, token string) Identity {
	if token == "" {
		return Identity{Authenticated: false}
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return Identity{Authenticated: false}
	}

	username := claims.Username
	if user, err := s.GetUser(ctx, claims.UserID); err == nil {
		username = user.Username
	} else {
		username = "User_" + claims.UserID.String()
	}

	return Identity{
		Authenticated: true,
		UserID:        claims.UserID,
		Username:      username,
	}
}
