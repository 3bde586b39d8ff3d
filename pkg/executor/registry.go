// Package executor provides the BlockHandler registry the Compiler and
// Dispatcher consult to look up a block type's declared handles and runtime
// implementation. Grounded on the teacher's pkg/executor/registry.go
// (RWMutex-guarded map registry) and pkg/executor/executor.go (BaseExecutor
// config-accessor helpers), renamed to spec.md §6's BlockHandler/
// HandlerRegistry vocabulary.
package executor

import (
	"fmt"
	"sync"

	"github.com/netrun/flowengine/pkg/models"
	"github.com/netrun/flowengine/pkg/ports"
)

// Registry implements ports.HandlerRegistry with thread-safe registration.
// Reads never block scheduler progress (spec §5): lookups take an RLock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ports.BlockHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ports.BlockHandler)}
}

// Register adds or replaces the handler for a block type.
func (r *Registry) Register(blockType string, h ports.BlockHandler) error {
	if blockType == "" {
		return fmt.Errorf("%w: block type cannot be empty", models.ErrUnknownBlockType)
	}
	if h == nil {
		return fmt.Errorf("%w: handler cannot be nil", models.ErrUnknownBlockType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[blockType] = h
	return nil
}

// Unregister removes a previously registered handler.
func (r *Registry) Unregister(blockType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[blockType]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownBlockType, blockType)
	}
	delete(r.handlers, blockType)
	return nil
}

// Lookup implements ports.HandlerRegistry.
func (r *Registry) Lookup(blockType string) (ports.BlockHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[blockType]
	return h, ok
}

// List returns every registered block type.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
