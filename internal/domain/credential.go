package domain

import "time"

// Credential is the durable access token persisted across restarts.
type Credential struct {
	AccessToken string
	ObtainedAt  time.Time
}

// Valid reports whether the credential carries a token.
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}
