package domain

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenCollision   = errors.New("token collision")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidInput     = errors.New("invalid input")
)

// IsTokenFailure reports whether err is one of the token-level resolution
// failures that must be indistinguishable to public callers.
func IsTokenFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenAlreadyUsed)
}
