package router

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/executor"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/telemetry"
)

// Entry is one frozen routing-table row: canonical path, kind, the
// pre-composed middleware chain, and the back-reference used to
// resolve the procedure definition at call time.
type Entry struct {
	// Path is the canonical dotted path.
	Path string

	// Segments is the path split into identifiers.
	Segments []string

	// ProcedureName is the definition's name in its registry.
	ProcedureName string

	// Kind is the procedure kind.
	Kind procedure.Kind

	// Unit is the declaring unit identifier.
	Unit string

	// Chain is the fully resolved middleware chain: router level, then
	// scopes outer to inner, then procedure-local, minus skipped
	// modules.
	Chain []middleware.Resolved

	// Source is the procedure's declaration site.
	Source procedure.SourceLocation

	registry *procedure.Registry
}

// Alias maps an alternate path to a canonical one.
type Alias struct {
	From       string
	To         string
	Deprecated bool
}

// Table is the immutable routing table. Safe for unbounded concurrent
// reads; dispatch shares no mutable state between calls.
type Table struct {
	name    string
	entries []*Entry
	byPath  map[string]*Entry
	aliases map[string]Alias
	units   map[string]*procedure.Registry
	logger  zerolog.Logger
	emitter *telemetry.Emitter
	limits  func() Limits
	exec    *executor.Executor
}

// Name returns the router name.
func (t *Table) Name() string {
	return t.name
}

// Paths returns every canonical path, sorted.
func (t *Table) Paths() []string {
	paths := make([]string, 0, len(t.byPath))
	for p := range t.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entry returns the entry for a canonical path.
func (t *Table) Entry(path string) (*Entry, bool) {
	e, ok := t.byPath[path]
	return e, ok
}

// Has reports whether a canonical path exists.
func (t *Table) Has(path string) bool {
	_, ok := t.byPath[path]
	return ok
}

// Entries returns every entry in declaration order.
func (t *Table) Entries() []*Entry {
	return append([]*Entry(nil), t.entries...)
}

// EntriesByPrefix returns entries whose path is under the dotted
// prefix ("users" matches "users.get" but not "username.get"),
// sorted by path.
func (t *Table) EntriesByPrefix(prefix string) []*Entry {
	var matched []*Entry
	for _, e := range t.entries {
		if e.Path == prefix || strings.HasPrefix(e.Path, prefix+".") {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })
	return matched
}

// Queries returns every query entry, sorted by path.
func (t *Table) Queries() []*Entry {
	return t.byKind(procedure.KindQuery)
}

// Mutations returns every mutation entry, sorted by path.
func (t *Table) Mutations() []*Entry {
	return t.byKind(procedure.KindMutation)
}

// Subscriptions returns every subscription entry, sorted by path.
func (t *Table) Subscriptions() []*Entry {
	return t.byKind(procedure.KindSubscription)
}

func (t *Table) byKind(kind procedure.Kind) []*Entry {
	var matched []*Entry
	for _, e := range t.entries {
		if e.Kind == kind {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })
	return matched
}

// Aliases returns every alias, sorted by From.
func (t *Table) Aliases() []Alias {
	aliases := make([]Alias, 0, len(t.aliases))
	for _, a := range t.aliases {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].From < aliases[j].From })
	return aliases
}

// Resolve returns the canonical path for a path or alias.
func (t *Table) Resolve(path string) (string, bool) {
	if _, ok := t.byPath[path]; ok {
		return path, true
	}
	if a, ok := t.aliases[path]; ok {
		return a.To, true
	}
	return "", false
}

// MiddlewareFor returns the module names of the resolved chain for a
// path or alias.
func (t *Table) MiddlewareFor(path string) ([]string, bool) {
	entry, ok := t.lookup(path)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(entry.Chain))
	for _, res := range entry.Chain {
		names = append(names, res.Module.Name())
	}
	return names, true
}

// ProcedureFor returns the definition behind a path or alias.
func (t *Table) ProcedureFor(path string) (*procedure.Definition, bool) {
	entry, ok := t.lookup(path)
	if !ok {
		return nil, false
	}
	return entry.registry.ByName(entry.ProcedureName)
}

// DeclaringUnits returns the unit identifiers behind the table, sorted.
func (t *Table) DeclaringUnits() []string {
	units := make([]string, 0, len(t.units))
	for u := range t.units {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// lookup resolves a path directly or through one alias hop.
func (t *Table) lookup(path string) (*Entry, bool) {
	if e, ok := t.byPath[path]; ok {
		return e, true
	}
	if a, ok := t.aliases[path]; ok {
		e, ok := t.byPath[a.To]
		return e, ok
	}
	return nil, false
}
