package auth

import (
	"fmt"
	"unicode/utf8"

	"github.com/waabox/ghlogin/internal/domain"
)

const maxBodyInError = 200

// ProtocolError is returned when GitHub answers with a status or body the
// device flow cannot use. Status and Body are kept so they can be shown to the user.
type ProtocolError struct {
	Msg    string
	Status int
	Body   string
}

func (e *ProtocolError) Error() string {
	if e.Status == 0 && e.Body == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (status %d): %s", e.Msg, e.Status, truncate(e.Body, maxBodyInError))
}

// AuthError is returned when GitHub refuses a token on the profile endpoint.
// A 401 unwraps to domain.ErrUnauthorized.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github rejected the token (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error {
	if e.Status == 401 {
		return domain.ErrUnauthorized
	}
	return nil
}

// TransientError wraps connection failures and 5xx responses. The poll loop
// retries on it; other callers report it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
