// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned when GitHub responds with HTTP 401 to a token.
// Callers can check for it using errors.Is to drop the session.
var ErrUnauthorized = errors.New("unauthorized")

// ErrAlreadyInProgress is returned when a login is started while another
// attempt is still waiting for the user.
var ErrAlreadyInProgress = errors.New("login already in progress")
