package provider

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrEndpointNotFound = errors.New("rpc endpoint is not configured")

// Registry holds one RPC client per enabled endpoint plus the resolved
// default. The default always exists: with nothing enabled it targets
// public mainnet.
type Registry struct {
	clients    map[string]*SolanaClient
	order      []string
	defaultKey string
}

func NewRegistry(endpoints []Endpoint, defaultKey string, timeout time.Duration) *Registry {
	enabled := EnabledEndpoints(endpoints)
	reg := &Registry{
		clients: make(map[string]*SolanaClient, len(enabled)+1),
		order:   make([]string, 0, len(enabled)+1),
	}
	for _, endpoint := range enabled {
		if _, exists := reg.clients[endpoint.Key]; exists {
			continue
		}
		reg.clients[endpoint.Key] = NewSolanaClient(endpoint, timeout)
		reg.order = append(reg.order, endpoint.Key)
	}

	resolved := ResolveEndpoint(endpoints, defaultKey)
	if _, ok := reg.clients[resolved.Key]; !ok {
		reg.clients[resolved.Key] = NewSolanaClient(resolved, timeout)
		reg.order = append(reg.order, resolved.Key)
	}
	reg.defaultKey = resolved.Key

	return reg
}

func (r *Registry) Default() *SolanaClient {
	return r.clients[r.defaultKey]
}

func (r *Registry) Get(key string) (*SolanaClient, error) {
	client, ok := r.clients[key]
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return client, nil
}

func (r *Registry) Endpoints() []Endpoint {
	items := make([]Endpoint, 0, len(r.order))
	for _, key := range r.order {
		items = append(items, r.clients[key].Endpoint())
	}
	return items
}

func (r *Registry) DefaultKey() string {
	return r.defaultKey
}

// Balance reads the balance of address through the endpoint named by key, or
// through the default endpoint when key is empty.
func (r *Registry) Balance(ctx context.Context, key, address string) (uint64, Endpoint, error) {
	client := r.Default()
	if key = strings.TrimSpace(key); key != "" {
		var err error
		if client, err = r.Get(key); err != nil {
			return 0, Endpoint{}, err
		}
	}

	lamports, err := client.GetBalance(ctx, address)
	if err != nil {
		return 0, client.Endpoint(), err
	}
	return lamports, client.Endpoint(), nil
}

// Health checks the default endpoint.
func (r *Registry) Health(ctx context.Context) error {
	return r.Default().GetHealth(ctx)
}
