package library

import "github.com/spenselabs/partnersdk/internal/config"

// Settings is the host-facing configuration for one Library instance.
type Settings = config.Settings

// NewSettings validates the host arguments and fills the remaining fields
// from environment defaults.
func NewSettings(baseHost string, deviceBindingEnabled bool, whitelistedURLs []string, navigationBarHidden bool) (Settings, error) {
	return config.New(baseHost, deviceBindingEnabled, whitelistedURLs, navigationBarHidden)
}
