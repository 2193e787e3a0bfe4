// Package flags provides runtime feature toggles. The HTTP layer consults a
// Provider instead of configuration directly so a flag backend can be swapped
// in without touching the callers.
package flags

import "sync"

// Flag names understood by the loan service.
const (
	// ManualApproval routes simulated loans above the approval threshold to
	// manual review. With the flag off every simulated loan is auto-approved.
	ManualApproval = "manual_approval"
)

// Provider reports whether a named feature flag is on. Unknown flags are off.
type Provider interface {
	Enabled(name string) bool
}

// StaticProvider is a Provider backed by an in-memory map, seeded from
// configuration at startup. Set allows tests and admin tooling to flip flags
// at runtime.
type StaticProvider struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewStaticProvider creates a provider with the given initial flag values.
func NewStaticProvider(values map[string]bool) *StaticProvider {
	copied := make(map[string]bool, len(values))
	for name, on := range values {
		copied[name] = on
	}
	return &StaticProvider{values: copied}
}

// Enabled implements Provider.
func (p *StaticProvider) Enabled(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[name]
}

// Set overrides a flag value.
func (p *StaticProvider) Set(name string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = on
}
