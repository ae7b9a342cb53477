package provider

import "testing"

func TestResolveEndpointPrefersEnabledDefault(t *testing.T) {
	endpoints := []Endpoint{
		{Key: "mainnet", URL: "https://main", Enabled: true},
		{Key: "devnet", URL: "https://dev", Enabled: true},
	}

	got := ResolveEndpoint(endpoints, "devnet")
	if got.Key != "devnet" || got.URL != "https://dev" {
		t.Fatalf("expected devnet, got %+v", got)
	}
}

func TestResolveEndpointFallsBackToFirstEnabled(t *testing.T) {
	endpoints := []Endpoint{
		{Key: "mainnet", URL: "https://main", Enabled: false},
		{Key: "testnet", URL: "https://test", Enabled: true},
		{Key: "devnet", URL: "https://dev", Enabled: true},
	}

	if got := ResolveEndpoint(endpoints, "mainnet"); got.Key != "testnet" {
		t.Fatalf("expected first enabled endpoint, got %+v", got)
	}
	if got := ResolveEndpoint(endpoints, "unknown"); got.Key != "testnet" {
		t.Fatalf("expected first enabled endpoint for unknown default, got %+v", got)
	}
}

func TestResolveEndpointFallsBackToMainnet(t *testing.T) {
	endpoints := []Endpoint{
		{Key: "devnet", URL: "https://dev", Enabled: false},
		{Key: "custom", URL: "  ", Enabled: true},
	}

	for _, items := range [][]Endpoint{nil, endpoints} {
		got := ResolveEndpoint(items, "devnet")
		if got.Key != MainnetKey || got.URL != MainnetURL {
			t.Fatalf("expected mainnet fallback, got %+v", got)
		}
	}
}

func TestEnabledEndpointsKeepsOrder(t *testing.T) {
	endpoints := []Endpoint{
		{Key: "a", URL: "https://a", Enabled: true},
		{Key: "b", URL: "https://b", Enabled: false},
		{Key: "c", URL: "https://c", Enabled: true},
	}

	got := EnabledEndpoints(endpoints)
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "c" {
		t.Fatalf("unexpected enabled endpoints: %+v", got)
	}
}
