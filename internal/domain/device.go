package domain

import "time"

// DeviceAuthorization holds the response from a device authorization request.
// DeviceCode is a secret and must never be shown to the user.
type DeviceAuthorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int // seconds until the device code expires
	Interval        int // minimum polling interval in seconds
}

// Lifetime returns ExpiresIn as a duration.
func (d DeviceAuthorization) Lifetime() time.Duration {
	return time.Duration(d.ExpiresIn) * time.Second
}

// PollInterval returns Interval as a duration.
func (d DeviceAuthorization) PollInterval() time.Duration {
	return time.Duration(d.Interval) * time.Second
}
