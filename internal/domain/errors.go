package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Credential Store
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrValidation         = errors.New("validation failed")

	// Room Store
	ErrRoomNotFound = errors.New("room not found")

	// Broker-level auth
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
