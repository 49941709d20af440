package bots

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/threadline/threadline/internal/threads"
)

// Definition is a registry entry binding an alias to a handler constructor
// and its static settings. Definitions are immutable after registration.
type Definition struct {
	// Alias is the unique registration key exposed to API callers.
	Alias string
	// ID is the fully qualified handler type identifier describing the
	// implementing type. Filled in at registration.
	ID string
	// Name is the human readable handler name stored on resolution.
	Name        string
	Description string
	// Unique limits the handler to a single action per thread and to at
	// most one execution per inbound message evaluation.
	Unique bool
	// Authorize requires the constructed handler to pass its Authorize
	// check before it can be attached to a thread.
	Authorize bool
	// Match, when set, overrides any caller-supplied match method.
	Match MatchMethod
	// Triggers, when set together with a non-any Match override, replaces
	// caller-supplied triggers.
	Triggers []string
	// New constructs a fresh handler instance per operation.
	New func() Handler
}

// Registry maps aliases and type identifiers to handler definitions. All
// registration happens at bootstrap; lookups afterwards are read-only.
type Registry struct {
	mu      sync.RWMutex
	byAlias map[string]Definition
	byID    map[string]Definition
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byAlias: map[string]Definition{},
		byID:    map[string]Definition{},
	}
}

// Register validates and stores a handler definition. Duplicate aliases and
// incomplete definitions fail with a ConfigurationError.
func (r *Registry) Register(def Definition) error {
	def.Alias = strings.TrimSpace(strings.ToLower(def.Alias))
	if def.Alias == "" {
		return &ConfigurationError{Reason: "alias is required"}
	}
	if strings.TrimSpace(def.Name) == "" {
		return &ConfigurationError{Alias: def.Alias, Reason: "name is required"}
	}
	if def.New == nil {
		return &ConfigurationError{Alias: def.Alias, Reason: "constructor is required"}
	}
	if def.Match != "" && !def.Match.Valid() {
		return &ConfigurationError{Alias: def.Alias, Reason: "invalid match method override: " + def.Match.String()}
	}
	handler := def.New()
	if handler == nil {
		return &ConfigurationError{Alias: def.Alias, Reason: "constructor returned nil"}
	}
	if def.Authorize {
		if _, ok := handler.(Authorizer); !ok {
			return &ConfigurationError{Alias: def.Alias, Reason: "authorize set but handler does not implement Authorizer"}
		}
	}
	def.ID = handlerID(handler)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAlias[def.Alias]; exists {
		return &ConfigurationError{Alias: def.Alias, Reason: "alias already registered"}
	}
	if _, exists := r.byID[def.ID]; exists {
		return &ConfigurationError{Alias: def.Alias, Reason: "handler type already registered: " + def.ID}
	}
	r.byAlias[def.Alias] = def
	r.byID[def.ID] = def
	r.order = append(r.order, def.Alias)
	return nil
}

// MustRegister calls Register and panics on error. Registration failures are
// programming mistakes and should stop bootstrap.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Resolve returns the definition for an alias or a fully qualified handler
// type identifier.
func (r *Registry) Resolve(aliasOrID string) (Definition, error) {
	key := strings.TrimSpace(aliasOrID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.byAlias[strings.ToLower(key)]; ok {
		return def, nil
	}
	if def, ok := r.byID[key]; ok {
		return def, nil
	}
	return Definition{}, NewBotError("invalid handler", ErrInvalidHandler)
}

// Aliases returns all registered aliases in registration order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	aliases := make([]string, len(r.order))
	copy(aliases, r.order)
	return aliases
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, alias := range r.order {
		defs = append(defs, r.byAlias[alias])
	}
	return defs
}

// Authorized returns the definitions an owner may attach to the given
// thread. Definitions without the Authorize flag always pass.
func (r *Registry) Authorized(ctx context.Context, thread threads.Thread, ownerID string) []Definition {
	var out []Definition
	for _, def := range r.Definitions() {
		if def.Authorize {
			authorizer, ok := def.New().(Authorizer)
			if !ok || !authorizer.Authorize(ctx, thread, ownerID) {
				continue
			}
		}
		out = append(out, def)
	}
	return out
}

func handlerID(h Handler) string {
	t := reflect.TypeOf(h)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
