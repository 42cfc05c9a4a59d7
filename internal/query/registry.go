package query

import (
	"fmt"
	"sort"
	"sync"

	"github.com/queryreg/engine/internal/queryerr"
)

// Registry is the process-wide, thread-safe store of published query
// definitions. Registration is publish-once: a definition is fully
// built and validated before it ever becomes visible to a concurrent
// Get, so readers never observe a partially-constructed QueryDefinition.
type Registry struct {
	mu      sync.RWMutex
	queries map[string]*QueryDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queries: make(map[string]*QueryDefinition)}
}

// Register publishes def under its own name. It fails if a definition is
// already registered under that name — callers that want to replace a
// definition must do so explicitly via Remove followed by Register.
func (r *Registry) Register(def *QueryDefinition) error {
	if def == nil {
		return queryerr.New(queryerr.CodeDefinitionErr, "cannot register a nil query definition")
	}
	if err := Validate(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queries[def.Name]; exists {
		return queryerr.Wrap(queryerr.CodeDefinitionErr,
			fmt.Sprintf("query %q is already registered", def.Name),
			queryerr.ErrDuplicateQueryName).WithQuery(def.Name)
	}
	r.queries[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*QueryDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.queries[name]
	if !ok {
		return nil, queryerr.Wrap(queryerr.CodeQueryNotFound,
			fmt.Sprintf("no query registered as %q", name),
			queryerr.ErrUnknownQuery).WithQuery(name)
	}
	return def, nil
}

// Exists reports whether a query is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queries[name]
	return ok
}

// Size returns the number of registered definitions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queries)
}

// Remove unregisters name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queries, name)
}

// Clear removes every registered definition.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = make(map[string]*QueryDefinition)
}

// Names returns every registered query name, sorted for stable output
// (used by diagnostics and by the metadata pre-warm fan-out).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	out := make([]string, 0, len(r.queries))
	for name := range r.queries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every registered definition, sorted by name.
func (r *Registry) All() []*QueryDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.namesLocked()
	out := make([]*QueryDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.queries[name])
	}
	return out
}
