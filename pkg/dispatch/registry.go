package dispatch

import (
	"fmt"
	"sync"
)

// Registry owns the identifier→Transport mapping. Registration normally
// happens once at setup time, but the read path is lock-guarded so a
// deployment that registers late cannot race dispatch.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry creates an empty registry. Each dispatcher gets its own
// registry instance; there is no process-wide transport state.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register stores the transport under identifier. Registration is
// write-once: re-registering an identifier fails with
// ErrTransportRegistered and leaves the first registration intact.
func (r *Registry) Register(identifier string, transport Transport) error {
	if identifier == "" {
		return fmt.Errorf("register transport: %w", ErrInvalidTransportID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transports[identifier]; exists {
		return fmt.Errorf("transport %q: %w", identifier, ErrTransportRegistered)
	}
	r.transports[identifier] = transport
	return nil
}

// Resolve returns the transport registered under identifier, or an error
// satisfying errors.Is(err, ErrUnsupportedTransport).
func (r *Registry) Resolve(identifier string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transport, ok := r.transports[identifier]
	if !ok {
		return nil, fmt.Errorf("transport %q: %w", identifier, ErrUnsupportedTransport)
	}
	return transport, nil
}
