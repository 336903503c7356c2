package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vipul43/ledger-sync-worker/internal/models"
)

type registryKey struct {
	code         string
	providerType models.ProviderType
}

// Registry maps (provider code, provider type) to a connector. New providers
// are added by registering them at process start; the processor never needs
// to change.
type Registry struct {
	mu         sync.RWMutex
	connectors map[registryKey]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[registryKey]Connector)}
}

// Register adds c under code for every provider type it implements.
func (r *Registry) Register(code string, c Connector) error {
	var types []models.ProviderType
	for _, pt := range []models.ProviderType{models.ProviderTypeAccounting, models.ProviderTypeBank} {
		if Implements(c, pt) {
			types = append(types, pt)
		}
	}
	if len(types) == 0 {
		return fmt.Errorf("register %s: %w", code, ErrNoCapability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pt := range types {
		if _, exists := r.connectors[registryKey{code, pt}]; exists {
			return fmt.Errorf("register %s (%s): %w", code, pt, ErrAlreadyRegistered)
		}
	}
	for _, pt := range types {
		r.connectors[registryKey{code, pt}] = c
	}
	return nil
}

// Resolve returns the connector for (code, type). A missing registration is
// fatal: retrying will not make a connector appear.
func (r *Registry) Resolve(code string, pt models.ProviderType) (Connector, error) {
	r.mu.RLock()
	c, ok := r.connectors[registryKey{code, pt}]
	r.mu.RUnlock()
	if !ok {
		return nil, Fatal(fmt.Errorf("%w for provider %s (%s)", ErrConnectorNotFound, code, pt))
	}
	return c, nil
}

// Codes lists registered provider codes, sorted.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var codes []string
	for k := range r.connectors {
		if !seen[k.code] {
			seen[k.code] = true
			codes = append(codes, k.code)
		}
	}
	sort.Strings(codes)
	return codes
}
