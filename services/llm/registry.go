package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps provider keys to constructed clients and resolves
// "provider/model" candidate references.
//
// Providers register once at startup; lookups are concurrent-safe.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its Provider() key, replacing any previous
// registration for that provider.
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Provider()] = client
}

// Resolve splits a "provider/model" reference and returns the client plus
// the bare model name. Model names may themselves contain slashes
// (e.g. "ollama/library/llama3"); only the first segment is the provider.
func (r *Registry) Resolve(ref string) (Client, string, error) {
	provider, model, found := strings.Cut(ref, "/")
	if !found || provider == "" || model == "" {
		return nil, "", fmt.Errorf("malformed candidate reference %q (want provider/model)", ref)
	}

	r.mu.RLock()
	client, ok := r.clients[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("no client registered for provider %q", provider)
	}
	return client, model, nil
}

// Providers returns the registered provider keys, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
