package domain

// Identity is the GitHub account a credential belongs to.
type Identity struct {
	Username   string
	RawProfile map[string]any
}
