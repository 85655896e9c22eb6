package domain

import "errors"

// Domain errors
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidGame     = errors.New("invalid game name")
	ErrInvalidScore    = errors.New("invalid score value")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsValidationError checks if an error belongs to the input validation
// class, i.e. the request was malformed before any storage was touched
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUsername) ||
		errors.Is(err, ErrInvalidGame) ||
		errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrInvalidRequest)
}
