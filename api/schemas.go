package api

import "github.com/spenselabs/partnersdk/device"

// Binding status values reported by the bind endpoint.
const (
	BindingStatusPending = "PENDING"
	BindingStatusSuccess = "SUCCESS"
	BindingStatusFailure = "FAILURE"
)

// CodeDeviceSessionFailure is returned by the device-session endpoint when
// the backend refuses to attach the device to the session.
const CodeDeviceSessionFailure = "DEVICE_BINDED_SESSION_FAILURE"

// LoginRequest exchanges the host-supplied bearer token for a backend
// session.
type LoginRequest struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	Type string `json:"type"`
}

type LoggedInResponse struct {
	Type       string `json:"type"`
	IsLoggedIn int    `json:"is_loggedin"`
}

// OnboardingNextResponse reports the next onboarding step for a bank. A path
// containing "/onboarding/success" or "/onboarding/complete" means device
// binding has already finished.
type OnboardingNextResponse struct {
	Path string `json:"path"`
}

// ServerTimeResponse carries the backend clock in epoch milliseconds. The
// PIN gate uses it instead of the local clock so rotation and lockout cannot
// be defeated by changing the device time.
type ServerTimeResponse struct {
	Time int64 `json:"time"`
}

// InitiateBindingRequest opens a binding challenge for this device.
type InitiateBindingRequest struct {
	DeviceBindingID string `json:"device_binding_id"`
	device.Fingerprint
}

// InitiateBindingResponse returns the auth code the user relays out-of-band
// (SMS) and the device id the backend assigned.
type InitiateBindingResponse struct {
	DeviceAuth string `json:"device_auth"`
	DeviceID   int    `json:"device_id"`
}

type BindingStatusResponse struct {
	Status string `json:"status"`
}

// FailBindingRequest releases server-side pending state for an abandoned or
// timed-out challenge.
type FailBindingRequest struct {
	DeviceBindingID string `json:"device_binding_id"`
}

type DeviceSessionResponse struct {
	Code string `json:"code"`
}

// NetworkKey is one entry of the published signing key set.
type NetworkKey struct {
	Public string `json:"public"`
	Kid    string `json:"kid"`
	Expiry string `json:"expiry"` // "2006-01-02 15:04:05"
}

// WebViewConfig is the server-driven browser-surface configuration. Redirect
// and logout paths extend the classifier's built-in defaults.
type WebViewConfig struct {
	RedirectPaths []string `json:"redirectPaths"`
	LogoutPaths   []string `json:"logoutPaths"`
	UserAgent     string   `json:"customUserAgent"`
}

type sdkConfigEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Info struct {
			WebView struct {
				URLHandling WebViewConfig `json:"urlHandling"`
			} `json:"webview"`
		} `json:"info"`
	} `json:"data"`
}

// AnalyticsEvent is a single batched analytics record.
type AnalyticsEvent struct {
	Time  string         `json:"time"`
	Event map[string]any `json:"event"`
}

type analyticsBatchRequest struct {
	Data []AnalyticsEvent `json:"data"`
}
