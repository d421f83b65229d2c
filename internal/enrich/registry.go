package enrich

import (
	"fmt"
	"sort"
	"strings"
)

// Registry stores metadata providers and resolves them by role.
type Registry struct {
	providers map[string]Provider
	primary   string
	secondary string
}

func NewRegistry(primary, secondary string) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		primary:   normalizeProviderName(primary),
		secondary: normalizeProviderName(secondary),
	}
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Primary returns the quota-metered provider, or nil when unregistered.
func (r *Registry) Primary() Provider {
	if r == nil {
		return nil
	}
	return r.providers[r.primary]
}

// Secondary returns the best-effort fallback provider, or nil.
func (r *Registry) Secondary() Provider {
	if r == nil {
		return nil
	}
	return r.providers[r.secondary]
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
