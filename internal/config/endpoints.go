package config

import "strings"

// Endpoint is a path template relative to the API root. Templates contain
// placeholders of the form {bank} or {partner} that are substituted at call
// time.
type Endpoint string

// Backend endpoints consumed by the SDK. Paths mirror the partner API
// contract; the SDK never constructs URLs outside this table.
const (
	apiSlug     = "/api"
	userSlug    = apiSlug + "/user"
	bankingSlug = apiSlug + "/banking/{bank}"
	globalSlug  = apiSlug + "/global"
	deviceSlug  = apiSlug + "/device/{partner}"

	EndpointLogin          Endpoint = userSlug + "/token"
	EndpointLoggedIn       Endpoint = userSlug + "/logged_in"
	EndpointOnboardingNext Endpoint = bankingSlug + "/onboarding/next"
	EndpointServerTime     Endpoint = globalSlug + "/time"
	EndpointDeviceBind     Endpoint = deviceSlug + "/bind"
	EndpointDeviceSession  Endpoint = deviceSlug + "/session"
	EndpointNetworkKeys    Endpoint = apiSlug + "/network/keys"
	EndpointAnalytics      Endpoint = apiSlug + "/analytics"
	EndpointSDKConfig      Endpoint = apiSlug + "/sdk/config"
)

// Expand substitutes {placeholder} segments with the supplied parameters and
// prefixes the base host.
func (e Endpoint) Expand(baseHost string, params map[string]string) string {
	path := string(e)
	for key, value := range params {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}
	return strings.TrimRight(baseHost, "/") + path
}
