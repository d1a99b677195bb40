package auth

import "errors"

// Portal login sentinels; handlers map the first to 400 and the credential
// failures to 401.
var (
	ErrEmailPasswordRequired = errors.New("Email and password are required")
	ErrInvalidEmail          = errors.New("No portal account found for this email")
	ErrIncorrectPassword     = errors.New("Incorrect password")
	ErrNotAuthenticated      = errors.New("Not authenticated")
)
