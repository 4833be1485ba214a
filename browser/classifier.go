package browser

import (
	"net/url"
	"strings"

	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
)

// Class is the category a navigation request falls into. Rules are checked
// in a fixed order; the first match wins.
type Class int

const (
	ClassRedirect Class = iota // cancel navigation, terminal outcome
	ClassLogout                // cancel navigation, terminal outcome
	ClassDownload              // cancel navigation, fetch + preview, stay open
	ClassAllow                 // let the surface load the URL in-page
	ClassExternal              // cancel navigation, open in system browser
)

// Default patterns, extended (not replaced) by the server-driven webview
// config.
var (
	defaultRedirectPaths   = []string{"/redirect"}
	defaultLogoutPaths     = []string{"/logout", "/session-expired", "/session_expired"}
	defaultDownloadMarkers = []string{".pdf", "/pdf", "/download", "/statements"}
)

// Rules holds the classification inputs for one handoff session.
type Rules struct {
	RedirectPaths []string // callback paths terminating the handoff
	LogoutPaths   []string // session-expiry paths terminating the handoff
	Whitelist     []string // caller-supplied substrings allowed in-page
	BaseHost      string   // backend host, always allowed in-page
}

// NewRules merges the defaults with server-supplied and caller-supplied
// patterns.
func NewRules(redirectPaths, logoutPaths, whitelist []string, baseHost string) Rules {
	return Rules{
		RedirectPaths: append(append([]string{}, defaultRedirectPaths...), redirectPaths...),
		LogoutPaths:   append(append([]string{}, defaultLogoutPaths...), logoutPaths...),
		Whitelist:     whitelist,
		BaseHost:      baseHost,
	}
}

// Classification is the decision for a single navigation request.
type Classification struct {
	Class  Class
	Status string // redirect status, populated for ClassRedirect
}

// Classify buckets a navigation request. Order is fixed: redirect, logout,
// download, whitelist/same-host, external. A malformed URL is a local error
// raised before any navigation side effect.
func (r Rules) Classify(rawURL string) (Classification, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Classification{}, sdkerrors.Wrapf(sdkerrors.ErrInvalidURL, "[Rules.Classify] %q", rawURL)
	}

	for _, path := range r.RedirectPaths {
		if path != "" && strings.Contains(rawURL, path) {
			return Classification{Class: ClassRedirect, Status: redirectStatus(parsed)}, nil
		}
	}

	for _, path := range r.LogoutPaths {
		if path != "" && strings.Contains(rawURL, path) {
			return Classification{Class: ClassLogout}, nil
		}
	}

	lowered := strings.ToLower(rawURL)
	for _, marker := range defaultDownloadMarkers {
		if strings.Contains(lowered, marker) {
			return Classification{Class: ClassDownload}, nil
		}
	}

	if r.BaseHost != "" && parsed.Hostname() == r.BaseHost {
		return Classification{Class: ClassAllow}, nil
	}
	for _, entry := range r.Whitelist {
		if entry != "" && strings.Contains(rawURL, entry) {
			return Classification{Class: ClassAllow}, nil
		}
	}

	return Classification{Class: ClassExternal}, nil
}

// redirectStatus extracts the flow result from a redirect URL: the "status"
// query parameter when present, the value after the last "=" otherwise, and
// the trailing path segment as a final fallback.
func redirectStatus(u *url.URL) string {
	if status := u.Query().Get("status"); status != "" {
		return status
	}
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "=")
		return parts[len(parts)-1]
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}
