package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

func TestRegistryDefaultFollowsResolution(t *testing.T) {
	reg := NewRegistry([]Endpoint{
		{Key: "mainnet", URL: "https://main", Enabled: false},
		{Key: "devnet", URL: "https://dev", Enabled: true},
	}, "mainnet", time.Second)

	if got := reg.Default().Endpoint().Key; got != "devnet" {
		t.Fatalf("expected devnet default, got %s", got)
	}
	if _, err := reg.Get("mainnet"); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected disabled endpoint to be unavailable, got %v", err)
	}
	if len(reg.Endpoints()) != 1 {
		t.Fatalf("expected one endpoint, got %+v", reg.Endpoints())
	}
}

func TestRegistryFallsBackToMainnet(t *testing.T) {
	reg := NewRegistry(nil, "devnet", 0)

	client := reg.Default()
	if client == nil || client.Endpoint().URL != MainnetURL {
		t.Fatalf("expected mainnet client, got %+v", client)
	}
	if client.timeout != defaultRequestTimeout {
		t.Fatalf("expected default timeout, got %s", client.timeout)
	}
	if got, err := reg.Get(MainnetKey); err != nil || got != client {
		t.Fatalf("expected mainnet lookup to return default client, got %v %v", got, err)
	}
}

func TestRegistrySkipsDuplicateKeys(t *testing.T) {
	reg := NewRegistry([]Endpoint{
		{Key: "devnet", URL: "https://dev-1", Enabled: true},
		{Key: "devnet", URL: "https://dev-2", Enabled: true},
		{Key: "testnet", URL: "https://test", Enabled: true},
	}, "testnet", time.Second)

	endpoints := reg.Endpoints()
	if len(endpoints) != 2 || endpoints[0].URL != "https://dev-1" || endpoints[1].Key != "testnet" {
		t.Fatalf("unexpected endpoints: %+v", endpoints)
	}
	if reg.Default().Endpoint().Key != "testnet" {
		t.Fatalf("expected testnet default, got %s", reg.Default().Endpoint().Key)
	}
}

func TestRegistryBalance(t *testing.T) {
	_, server := newFakeNode(t, map[string]string{
		"getBalance": `{"context":{"slot":9},"value":42}`,
	})
	reg := NewRegistry([]Endpoint{
		{Key: "devnet", Name: "Devnet", URL: server.URL, Enabled: true},
	}, "devnet", time.Second)
	address := solana.NewWallet().PublicKey().String()

	lamports, endpoint, err := reg.Balance(context.Background(), "", address)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lamports != 42 || endpoint.Key != "devnet" {
		t.Fatalf("unexpected balance %d from %+v", lamports, endpoint)
	}
	if reg.DefaultKey() != "devnet" {
		t.Fatalf("expected devnet default key, got %s", reg.DefaultKey())
	}

	if _, _, err := reg.Balance(context.Background(), "testnet", address); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}
