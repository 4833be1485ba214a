package config

import (
	"strings"

	"github.com/pkg/errors"
)

// Settings holds the process-wide configuration supplied by the host
// application when the library is initialised.
type Settings struct {
	BaseHost             string   // e.g. "https://partner.example.com"
	DeviceBindingEnabled bool     // feature flag, per partner build
	WhitelistedURLs      []string // substrings allowed to load in-page
	NavigationBarHidden  bool     // host UI hint, passed through to screens
	SMSRelayRecipient    string   // number the binding auth code is relayed to
	SMSRelayPrefix       string   // keyword prepended to the relayed auth code
	DownloadDir          string   // cache directory for downloaded documents
}

// New builds Settings from host arguments, filling unset values from the
// environment defaults.
func New(baseHost string, deviceBindingEnabled bool, whitelistedURLs []string, navigationBarHidden bool) (Settings, error) {
	if strings.TrimSpace(baseHost) == "" {
		baseHost = defaultBaseHost()
	}
	if baseHost == "" {
		return Settings{}, errors.New("[config.New] base host is required")
	}
	baseHost = strings.TrimRight(baseHost, "/")
	if !strings.HasPrefix(baseHost, "http://") && !strings.HasPrefix(baseHost, "https://") {
		return Settings{}, errors.Errorf("[config.New] base host %q must include a scheme", baseHost)
	}

	return Settings{
		BaseHost:             baseHost,
		DeviceBindingEnabled: deviceBindingEnabled,
		WhitelistedURLs:      whitelistedURLs,
		NavigationBarHidden:  navigationBarHidden,
		SMSRelayRecipient:    defaultSMSRecipient(),
		SMSRelayPrefix:       defaultSMSPrefix(),
		DownloadDir:          defaultDownloadDir(),
	}, nil
}

// Host returns the bare host portion of the base URL, used for same-origin
// navigation checks.
func (s Settings) Host() string {
	host := s.BaseHost
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/:"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
