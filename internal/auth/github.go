package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/waabox/ghlogin/internal/domain"
)

const (
	githubDefaultBaseURL = "https://github.com"
	githubDefaultAPIURL  = "https://api.github.com"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// used when GitHub omits expires_in or interval
	defaultExpiresIn = 900
	defaultInterval  = 5
)

// IdentityClient is the set of GitHub calls the device flow needs.
// Implementations perform exactly one HTTP request per call and never retry.
type IdentityClient interface {
	RequestDeviceCode(ctx context.Context, clientID, scope string) (domain.DeviceAuthorization, error)
	PollToken(ctx context.Context, clientID, deviceCode string) (PollResult, error)
	FetchUser(ctx context.Context, accessToken string) (domain.Identity, error)
}

// GitHubClient talks to GitHub's device flow and user endpoints.
// See https://docs.github.com/en/apps/oauth-apps/building-oauth-apps/authorizing-oauth-apps#device-flow
type GitHubClient struct {
	baseURL string
	apiURL  string
	http    *resty.Client
}

var _ IdentityClient = (*GitHubClient)(nil)

// NewGitHubClient creates a GitHubClient.
// Pass empty URLs to use github.com and api.github.com. Pass a test server URL in tests.
func NewGitHubClient(baseURL, apiURL string) *GitHubClient {
	if baseURL == "" {
		baseURL = githubDefaultBaseURL
	}
	if apiURL == "" {
		apiURL = githubDefaultAPIURL
	}
	return &GitHubClient{
		baseURL: baseURL,
		apiURL:  apiURL,
		http: resty.New().
			SetDebug(false).
			SetTimeout(15*time.Second).
			SetHeader("User-Agent", "ghlogin"),
	}
}

// RequestDeviceCode requests a device code and user code from GitHub.
// The returned UserCode must be shown to the user along with VerificationURI.
func (c *GitHubClient) RequestDeviceCode(ctx context.Context, clientID, scope string) (domain.DeviceAuthorization, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/login/device/code")
	if err != nil {
		return domain.DeviceAuthorization{}, fmt.Errorf("building URL: %w", err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"client_id": clientID,
			"scope":     scope,
		}).
		Post(endpoint)
	if err != nil {
		return domain.DeviceAuthorization{}, requestError(ctx, "requesting device code", err)
	}
	if res.IsError() {
		return domain.DeviceAuthorization{}, &ProtocolError{Msg: "device code request failed", Status: res.StatusCode(), Body: res.String()}
	}

	var raw struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
		Error           string `json:"error"`
	}
	if err := json.Unmarshal(res.Body(), &raw); err != nil {
		return domain.DeviceAuthorization{}, &ProtocolError{Msg: "decoding device code response", Status: res.StatusCode(), Body: res.String()}
	}
	if raw.Error != "" {
		return domain.DeviceAuthorization{}, &ProtocolError{Msg: "device code request rejected: " + raw.Error, Status: res.StatusCode(), Body: res.String()}
	}
	if raw.DeviceCode == "" || raw.UserCode == "" || raw.VerificationURI == "" {
		return domain.DeviceAuthorization{}, &ProtocolError{Msg: "device code response is missing required fields", Status: res.StatusCode(), Body: res.String()}
	}
	if raw.ExpiresIn <= 0 {
		raw.ExpiresIn = defaultExpiresIn
	}
	if raw.Interval <= 0 {
		raw.Interval = defaultInterval
	}
	return domain.DeviceAuthorization{
		DeviceCode:      raw.DeviceCode,
		UserCode:        raw.UserCode,
		VerificationURI: raw.VerificationURI,
		ExpiresIn:       raw.ExpiresIn,
		Interval:        raw.Interval,
	}, nil
}

// PollToken asks the token endpoint once whether the user has authorized the device.
// Handles authorization_pending, slow_down, expired_token, and access_denied error codes.
// Connection failures and 5xx responses are returned as *TransientError.
func (c *GitHubClient) PollToken(ctx context.Context, clientID, deviceCode string) (PollResult, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/login/oauth/access_token")
	if err != nil {
		return PollResult{}, fmt.Errorf("building URL: %w", err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"client_id":   clientID,
			"device_code": deviceCode,
			"grant_type":  deviceGrantType,
		}).
		Post(endpoint)
	if err != nil {
		return PollResult{}, requestError(ctx, "polling token", err)
	}
	if res.StatusCode() >= 500 {
		return PollResult{}, &TransientError{Err: fmt.Errorf("token endpoint returned %s", res.Status())}
	}

	var raw struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Interval         int    `json:"interval"`
	}
	if err := json.Unmarshal(res.Body(), &raw); err != nil {
		return PollResult{Kind: PollOtherError, Detail: fmt.Sprintf("unreadable token response (status %d)", res.StatusCode())}, nil
	}

	switch raw.Error {
	case "":
		if raw.AccessToken != "" {
			return PollResult{Kind: PollGranted, AccessToken: raw.AccessToken}, nil
		}
		if res.IsError() {
			return PollResult{Kind: PollOtherError, Detail: fmt.Sprintf("token endpoint returned status %d", res.StatusCode())}, nil
		}
		// neither token nor error: keep waiting
		return PollResult{Kind: PollPending}, nil
	case "authorization_pending":
		return PollResult{Kind: PollPending}, nil
	case "slow_down":
		return PollResult{Kind: PollSlowDown, Interval: raw.Interval}, nil
	case "expired_token":
		return PollResult{Kind: PollExpired}, nil
	case "access_denied":
		return PollResult{Kind: PollDenied}, nil
	default:
		detail := raw.Error
		if raw.ErrorDescription != "" {
			detail += ": " + raw.ErrorDescription
		}
		return PollResult{Kind: PollOtherError, Detail: truncate(detail, 100)}, nil
	}
}

// FetchUser returns the profile of the account owning accessToken.
// A 4xx response is returned as *AuthError; 401 means the token is invalid or
// revoked. Rate limit responses are returned as *TransientError.
func (c *GitHubClient) FetchUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	endpoint, err := url.JoinPath(c.apiURL, "/user")
	if err != nil {
		return domain.Identity{}, fmt.Errorf("building URL: %w", err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Accept", "application/vnd.github+json").
		Get(endpoint)
	if err != nil {
		return domain.Identity{}, requestError(ctx, "fetching user", err)
	}
	if res.StatusCode() >= 500 || rateLimited(res) {
		return domain.Identity{}, &TransientError{Err: fmt.Errorf("user endpoint returned %s", res.Status())}
	}
	if res.IsError() {
		return domain.Identity{}, &AuthError{Status: res.StatusCode(), Body: truncate(res.String(), maxBodyInError)}
	}

	var profile map[string]any
	if err := json.Unmarshal(res.Body(), &profile); err != nil {
		return domain.Identity{}, &ProtocolError{Msg: "decoding user profile", Status: res.StatusCode(), Body: res.String()}
	}
	login, _ := profile["login"].(string)
	if login == "" {
		return domain.Identity{}, &ProtocolError{Msg: "user profile has no login", Status: res.StatusCode()}
	}
	return domain.Identity{Username: login, RawProfile: profile}, nil
}

// rateLimited reports a 429, or a 403 that GitHub sends for an exhausted or
// secondary rate limit. Neither says anything about the token.
func rateLimited(res *resty.Response) bool {
	switch res.StatusCode() {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return res.Header().Get("X-RateLimit-Remaining") == "0" || res.Header().Get("Retry-After") != ""
	}
	return false
}

// requestError keeps context cancellation distinguishable from network failures.
func requestError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return &TransientError{Err: fmt.Errorf("%s: %w", op, err)}
}
