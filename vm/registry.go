package vm

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/tolmarket/core"
)

// Handler applies one transaction payload. Returning an error reverts every
// write the handler made.
type Handler func(ctx *Context, payload json.RawMessage) error

// Registry maps transaction types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]Handler)}
}

// Register associates typ with h. Registering a type twice panics.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxType %q", typ))
	}
	r.handlers[typ] = h
}

func (r *Registry) lookup(typ core.TxType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Execute dispatches payload to the handler registered for typ.
func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	h, ok := r.lookup(typ)
	if !ok {
		return fmt.Errorf("vm: no handler registered for TxType %q", typ)
	}
	return h(ctx, payload)
}

// Types lists the registered transaction types in sorted order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.TxType, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// globalRegistry is filled by module init functions.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
func Register(typ core.TxType, h Handler) {
	globalRegistry.Register(typ, h)
}

// Registered reports whether a handler exists for typ.
func Registered(typ core.TxType) bool {
	_, ok := globalRegistry.lookup(typ)
	return ok
}

// Types lists the globally registered transaction types.
func Types() []core.TxType {
	return globalRegistry.Types()
}
