package auth

import (
	"time"

	"github.com/waabox/ghlogin/internal/domain"
)

// StateKind names the phase an authenticator is in.
type StateKind string

const (
	StateLoggedOut                 StateKind = "logged_out"
	StateAwaitingDeviceCode        StateKind = "awaiting_device_code"
	StateAwaitingUserAuthorization StateKind = "awaiting_user_authorization"
	StateAuthenticated             StateKind = "authenticated"
	StateFailed                    StateKind = "failed"
)

// FailureReason explains a StateFailed.
type FailureReason string

const (
	ReasonExpired      FailureReason = "expired"
	ReasonDenied       FailureReason = "denied"
	ReasonProtocol     FailureReason = "protocol"
	ReasonNetwork      FailureReason = "network"
	ReasonPollError    FailureReason = "poll_error"
	ReasonUnauthorized FailureReason = "unauthorized"
	ReasonIdentity     FailureReason = "identity"
)

// State is an immutable snapshot of the authenticator. Values are never
// modified after being published; Identity.RawProfile must be treated as read-only.
type State struct {
	Kind          StateKind
	Seq           uint64
	At            time.Time
	AttemptID     string
	Authorization *domain.DeviceAuthorization
	Identity      *domain.Identity
	StatusText    string
	Reason        FailureReason
	Detail        string
	StoreErr      string
}

// Active reports whether a login attempt is in flight.
func (s State) Active() bool {
	return s.Kind == StateAwaitingDeviceCode || s.Kind == StateAwaitingUserAuthorization
}

// Snapshot is the view of a State handed to user interfaces.
// It never carries the device code.
type Snapshot struct {
	State           StateKind `json:"state"`
	Seq             uint64    `json:"seq"`
	AttemptID       string    `json:"attempt_id,omitempty"`
	UserCode        string    `json:"user_code,omitempty"`
	VerificationURI string    `json:"verification_uri,omitempty"`
	StatusText      string    `json:"status_text,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Error           string    `json:"error,omitempty"`
	Username        string    `json:"username,omitempty"`
	StorageError    string    `json:"storage_error,omitempty"`
}

// Snapshot converts s into its user-facing view.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		State:        s.Kind,
		Seq:          s.Seq,
		AttemptID:    s.AttemptID,
		StatusText:   s.StatusText,
		Reason:       string(s.Reason),
		Error:        s.Detail,
		StorageError: s.StoreErr,
	}
	if s.Authorization != nil && s.Kind == StateAwaitingUserAuthorization {
		snap.UserCode = s.Authorization.UserCode
		snap.VerificationURI = s.Authorization.VerificationURI
	}
	if s.Identity != nil {
		snap.Username = s.Identity.Username
	}
	return snap
}
