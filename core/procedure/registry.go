package procedure

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry accumulates the procedure definitions of one declaring
// unit. Finalize validates the collection, builds the by-name and
// by-kind indexes, and freezes it; the router refuses to mount a
// registry that fails finalisation.
type Registry struct {
	mu sync.RWMutex

	unit      string
	defs      []Definition
	byName    map[string]*Definition
	byKind    map[Kind][]*Definition
	funcs     map[string]Handler
	finalized bool
}

// NewRegistry creates a registry for the named declaring unit.
func NewRegistry(unit string) *Registry {
	return &Registry{
		unit:   unit,
		byName: make(map[string]*Definition),
		byKind: make(map[Kind][]*Definition),
		funcs:  make(map[string]Handler),
	}
}

// Unit returns the declaring unit identifier.
func (r *Registry) Unit() string {
	return r.unit
}

// Register adds a definition. Registration order is preserved; the
// definition's source unit is stamped here.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return fmt.Errorf("registry %q is finalized", r.unit)
	}
	def.Source.Unit = r.unit
	r.defs = append(r.defs, def)
	return nil
}

// MustRegister registers and panics on error, for declaration blocks.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(fmt.Sprintf("procedure: %v", err))
	}
}

// Func registers a named handler binding on the unit. A definition
// without an explicit handler resolves to the binding matching its
// name — at call time, so the binding may be registered after the
// definition.
func (r *Registry) Func(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = h
}

// HandlerFor resolves the effective handler for a definition: the
// explicit handler when set, otherwise the unit binding with the
// definition's name.
func (r *Registry) HandlerFor(def *Definition) (Handler, bool) {
	if def.Handler != nil {
		return def.Handler, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.funcs[def.Name]
	return h, ok
}

// Finalize validates every definition and freezes the registry.
// Failures carry the declaration's file and line.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil
	}

	var problems []string
	fail := func(def *Definition, format string, args ...any) {
		problems = append(problems,
			fmt.Sprintf("%s %q at %s: %s", def.Kind, def.Name, def.Source, fmt.Sprintf(format, args...)))
	}

	seen := make(map[string]*Definition, len(r.defs))
	for i := range r.defs {
		def := &r.defs[i]

		if !ValidName(def.Name) {
			fail(def, "name must match [a-z][a-z0-9_]*")
		}
		if !def.Kind.Valid() {
			fail(def, "unknown kind %q", def.Kind)
		}
		if prev, dup := seen[def.Name]; dup {
			fail(def, "duplicate name, first declared at %s", prev.Source)
		}
		seen[def.Name] = def

		if def.Handler == nil {
			if _, ok := r.funcs[def.Name]; !ok {
				fail(def, "no handler and no unit binding named %q", def.Name)
			}
		}

		if def.Route != nil {
			if !routeMethods[def.Route.Method] {
				fail(def, "route method %q is not one of GET, POST, PUT, PATCH, DELETE", def.Route.Method)
			}
			if def.Route.PathTemplate == "" {
				fail(def, "route path template is empty")
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("registry %q finalize failed:\n  - %s", r.unit, strings.Join(problems, "\n  - "))
	}

	for i := range r.defs {
		def := &r.defs[i]
		r.byName[def.Name] = def
		r.byKind[def.Kind] = append(r.byKind[def.Kind], def)
	}
	r.finalized = true
	return nil
}

// Finalized reports whether Finalize has completed successfully.
func (r *Registry) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// ListAll returns every definition in registration order.
func (r *Registry) ListAll() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Definition(nil), r.defs...)
}

// ListByKind returns the definitions of one kind, in registration order.
func (r *Registry) ListByKind(kind Kind) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.byKind[kind]))
	for _, def := range r.byKind[kind] {
		defs = append(defs, *def)
	}
	return defs
}

// ByName returns the definition with the given name.
func (r *Registry) ByName(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// Has reports whether a definition with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.ByName(name)
	return ok
}

// Names returns all definition names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for i := range r.defs {
		names = append(names, r.defs[i].Name)
	}
	sort.Strings(names)
	return names
}
