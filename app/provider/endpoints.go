package provider

import "strings"

const (
	MainnetKey = "mainnet"
	MainnetURL = "https://api.mainnet-beta.solana.com"
)

type Endpoint struct {
	Key     string
	Name    string
	URL     string
	Enabled bool
}

func (e Endpoint) usable() bool {
	return e.Enabled && strings.TrimSpace(e.URL) != ""
}

func EnabledEndpoints(endpoints []Endpoint) []Endpoint {
	enabled := make([]Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.usable() {
			enabled = append(enabled, endpoint)
		}
	}
	return enabled
}

// ResolveEndpoint picks the default endpoint when it is enabled, otherwise the
// first enabled endpoint in configured order, otherwise public mainnet.
func ResolveEndpoint(endpoints []Endpoint, defaultKey string) Endpoint {
	defaultKey = strings.TrimSpace(defaultKey)
	enabled := EnabledEndpoints(endpoints)

	for _, endpoint := range enabled {
		if endpoint.Key == defaultKey {
			return endpoint
		}
	}
	if len(enabled) > 0 {
		return enabled[0]
	}

	return Endpoint{Key: MainnetKey, Name: "Mainnet Beta", URL: MainnetURL, Enabled: true}
}
