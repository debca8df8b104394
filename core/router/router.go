// Package router builds and serves the routing table of the dispatch
// engine. A Declaration accumulates root middleware, nested scopes,
// procedure registrations, and path aliases; Build walks the tree,
// composes per-entry middleware chains, validates the result, and
// freezes it into an immutable Table. The Table is the public surface
// transports dispatch through (Call, Batch) and introspect.
package router

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/executor"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/telemetry"
)

// Limits bound batch execution. Supplied as a getter so hot-reloaded
// configuration takes effect without a rebuild.
type Limits struct {
	// MaxBatchSize is the largest accepted batch.
	MaxBatchSize int

	// MaxConcurrency caps in-flight calls during a batch.
	MaxConcurrency int

	// CallTimeout is the per-call deadline inside a batch.
	CallTimeout time.Duration
}

// DefaultLimits returns the engine defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxBatchSize:   50,
		MaxConcurrency: 10,
		CallTimeout:    30 * time.Second,
	}
}

// Option configures a Declaration.
type Option func(*Declaration)

// WithName sets the router name used in telemetry metadata.
func WithName(name string) Option {
	return func(d *Declaration) { d.name = name }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Declaration) { d.logger = logger }
}

// WithEmitter sets the telemetry emitter.
func WithEmitter(emitter *telemetry.Emitter) Option {
	return func(d *Declaration) { d.emitter = emitter }
}

// WithExecutorConfig sets the getter for process-wide execution flags.
func WithExecutorConfig(config func() executor.Config) Option {
	return func(d *Declaration) { d.execConfig = config }
}

// WithLimits sets the getter for batch limits.
func WithLimits(limits func() Limits) Option {
	return func(d *Declaration) { d.limits = limits }
}

// Declaration is the mutable builder for a routing table. Items keep
// declaration order: middleware declared inside a scope applies only to
// registrations that follow it in the same scope body.
type Declaration struct {
	name       string
	logger     zerolog.Logger
	emitter    *telemetry.Emitter
	execConfig func() executor.Config
	limits     func() Limits
	root       *scopeNode
	aliases    []aliasItem
}

type scopeNode struct {
	prefix string
	items  []item
	file   string
	line   int
}

// item is one declaration-tree node; exactly one field is set.
type item struct {
	mw    *middleware.Entry
	scope *scopeNode
	mount *mountItem
}

type mountItem struct {
	registry *procedure.Registry
	at       string
	skip     []string
	file     string
	line     int
}

type aliasItem struct {
	from       string
	to         string
	deprecated bool
	file       string
	line       int
}

// New creates an empty declaration.
func New(opts ...Option) *Declaration {
	d := &Declaration{
		name:   "rpcgate",
		logger: zerolog.Nop(),
		root:   &scopeNode{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.emitter == nil {
		d.emitter = telemetry.NewEmitter(d.logger, telemetry.NewLogSink(d.logger))
	}
	if d.execConfig == nil {
		d.execConfig = executor.DefaultConfig
	}
	if d.limits == nil {
		d.limits = DefaultLimits
	}
	return d
}

// Use appends router-level middleware, applied to every registration
// declared after it.
func (d *Declaration) Use(m middleware.Module, opts map[string]any) *Declaration {
	d.root.items = append(d.root.items, item{mw: &middleware.Entry{Module: m, Opts: opts}})
	return d
}

// Scope opens a nested declaration frame contributing prefix as a path
// segment and its own middleware list to every descendant.
func (d *Declaration) Scope(prefix string, body func(*Scope)) *Declaration {
	node := &scopeNode{prefix: prefix}
	node.file, node.line = callerLocation()
	d.root.items = append(d.root.items, item{scope: node})
	body(&Scope{node: node})
	return d
}

// Mount registers every procedure of reg under the given segment.
// Modules named in skip are removed from the composed chain for these
// entries.
func (d *Declaration) Mount(reg *procedure.Registry, at string, skip ...string) *Declaration {
	m := &mountItem{registry: reg, at: at, skip: skip}
	m.file, m.line = callerLocation()
	d.root.items = append(d.root.items, item{mount: m})
	return d
}

// Alias declares an alternate path resolving to canonical path to.
func (d *Declaration) Alias(from, to string) *Declaration {
	a := aliasItem{from: from, to: to}
	a.file, a.line = callerLocation()
	d.aliases = append(d.aliases, a)
	return d
}

// DeprecatedAlias declares an alias flagged as deprecated; dispatch
// through it emits the deprecation in the alias-resolved event.
func (d *Declaration) DeprecatedAlias(from, to string) *Declaration {
	a := aliasItem{from: from, to: to, deprecated: true}
	a.file, a.line = callerLocation()
	d.aliases = append(d.aliases, a)
	return d
}

// Scope is the declaration frame passed to Scope bodies.
type Scope struct {
	node *scopeNode
}

// Use appends scope middleware, applied to registrations declared
// after it within this scope.
func (s *Scope) Use(m middleware.Module, opts map[string]any) *Scope {
	s.node.items = append(s.node.items, item{mw: &middleware.Entry{Module: m, Opts: opts}})
	return s
}

// Scope opens a nested scope.
func (s *Scope) Scope(prefix string, body func(*Scope)) *Scope {
	node := &scopeNode{prefix: prefix}
	node.file, node.line = callerLocation()
	s.node.items = append(s.node.items, item{scope: node})
	body(&Scope{node: node})
	return s
}

// Mount registers every procedure of reg under the given segment
// inside this scope.
func (s *Scope) Mount(reg *procedure.Registry, at string, skip ...string) *Scope {
	m := &mountItem{registry: reg, at: at, skip: skip}
	m.file, m.line = callerLocation()
	s.node.items = append(s.node.items, item{mount: m})
	return s
}

func callerLocation() (string, int) {
	if _, file, line, ok := runtime.Caller(2); ok {
		return file, line
	}
	return "", 0
}

// BuildError aggregates every problem found during a build, in the
// teacher-of-record style of enumerating all conflicts at once.
type BuildError struct {
	Problems []string
}

// Error returns the aggregated build failure message.
func (e *BuildError) Error() string {
	msg := "router build failed:"
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

// buildState accumulates walk output.
type buildState struct {
	entries  []*Entry
	problems []string
}

func (b *buildState) failf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// Build walks the declaration tree, composes entries, validates the
// result, and returns the frozen table.
func (d *Declaration) Build() (*Table, error) {
	state := &buildState{}

	d.walk(d.root, nil, nil, state)

	byPath := make(map[string]*Entry, len(state.entries))
	for _, entry := range state.entries {
		if prev, dup := byPath[entry.Path]; dup {
			state.failf("duplicate path %q declared at %s and %s",
				entry.Path, prev.Source, entry.Source)
			continue
		}
		byPath[entry.Path] = entry
	}

	aliases := d.validateAliases(byPath, state)

	if len(state.problems) > 0 {
		return nil, &BuildError{Problems: state.problems}
	}

	units := make(map[string]*procedure.Registry)
	for _, entry := range state.entries {
		units[entry.Unit] = entry.registry
	}

	t := &Table{
		name:    d.name,
		entries: state.entries,
		byPath:  byPath,
		aliases: aliases,
		units:   units,
		logger:  d.logger,
		emitter: d.emitter,
		limits:  d.limits,
		exec:    executor.New(d.logger, d.emitter, d.execConfig),
	}
	d.logger.Debug().
		Int("entries", len(t.entries)).
		Int("aliases", len(t.aliases)).
		Msg("routing table built")
	return t, nil
}

// walk descends the tree carrying the scope prefix stack and the
// middleware accumulated by each enclosing frame up to this point of
// its body.
func (d *Declaration) walk(node *scopeNode, prefixes []string, inherited []middleware.Resolved, state *buildState) {
	if node.prefix != "" && !procedure.ValidName(node.prefix) {
		state.failf("scope prefix %q at %s:%d must match [a-z][a-z0-9_]*",
			node.prefix, node.file, node.line)
	}

	current := append([]middleware.Resolved(nil), inherited...)
	for _, it := range node.items {
		switch {
		case it.mw != nil:
			cfg, err := it.mw.Module.Init(it.mw.Opts)
			if err != nil {
				state.failf("middleware %q init: %v", it.mw.Module.Name(), err)
				continue
			}
			current = append(current, middleware.Resolved{Module: it.mw.Module, Config: cfg})

		case it.scope != nil:
			d.walk(it.scope,
				append(append([]string(nil), prefixes...), it.scope.prefix),
				append([]middleware.Resolved(nil), current...),
				state)

		case it.mount != nil:
			d.mount(it.mount, prefixes, current, state)
		}
	}
}

func (d *Declaration) mount(m *mountItem, prefixes []string, inherited []middleware.Resolved, state *buildState) {
	if !procedure.ValidName(m.at) {
		state.failf("mount segment %q at %s:%d must match [a-z][a-z0-9_]*", m.at, m.file, m.line)
		return
	}
	if err := m.registry.Finalize(); err != nil {
		state.failf("mount at %s:%d: %v", m.file, m.line, err)
		return
	}

	skip := make(map[string]bool, len(m.skip))
	for _, name := range m.skip {
		skip[name] = true
	}

	for _, def := range m.registry.ListAll() {
		local, err := resolveEntries(def.Middleware)
		if err != nil {
			state.failf("%s %q at %s: %v", def.Kind, def.Name, def.Source, err)
			continue
		}

		full := make([]middleware.Resolved, 0, len(inherited)+len(local))
		full = append(full, inherited...)
		full = append(full, local...)

		chain := full[:0:0]
		for _, res := range full {
			if !skip[res.Module.Name()] {
				chain = append(chain, res)
			}
		}

		segments := make([]string, 0, len(prefixes)+2)
		segments = append(segments, prefixes...)
		segments = append(segments, m.at, def.Name)

		state.entries = append(state.entries, &Entry{
			Path:          joinPath(segments),
			Segments:      segments,
			ProcedureName: def.Name,
			Kind:          def.Kind,
			Unit:          m.registry.Unit(),
			Chain:         chain,
			Source:        def.Source,
			registry:      m.registry,
		})
	}
}

func resolveEntries(entries []middleware.Entry) ([]middleware.Resolved, error) {
	resolved := make([]middleware.Resolved, 0, len(entries))
	for _, e := range entries {
		cfg, err := e.Module.Init(e.Opts)
		if err != nil {
			return nil, fmt.Errorf("middleware %q init: %w", e.Module.Name(), err)
		}
		resolved = append(resolved, middleware.Resolved{Module: e.Module, Config: cfg})
	}
	return resolved, nil
}

// validateAliases applies the alias rules: relaxed grammar on from,
// existing target, no shadowing of a real path, no alias-to-alias, no
// duplicates. Cycles are structurally impossible once targets must be
// real paths; the walk below is retained as defence-in-depth.
func (d *Declaration) validateAliases(byPath map[string]*Entry, state *buildState) map[string]Alias {
	declared := make(map[string]aliasItem, len(d.aliases))
	for _, a := range d.aliases {
		declared[a.from] = a
	}

	aliases := make(map[string]Alias, len(d.aliases))
	for _, a := range d.aliases {
		if !ValidAliasPath(a.from) {
			state.failf("alias %q at %s:%d: name must match the relaxed path grammar", a.from, a.file, a.line)
			continue
		}
		if a.from == a.to {
			state.failf("alias %q at %s:%d: points to itself", a.from, a.file, a.line)
			continue
		}
		if _, shadowed := byPath[a.from]; shadowed {
			state.failf("alias %q at %s:%d: shadows an existing procedure path", a.from, a.file, a.line)
			continue
		}
		if _, chained := declared[a.to]; chained {
			state.failf("alias %q at %s:%d: target %q is itself an alias", a.from, a.file, a.line, a.to)
			continue
		}
		if _, exists := byPath[a.to]; !exists {
			state.failf("alias %q at %s:%d: target %q does not exist", a.from, a.file, a.line, a.to)
			continue
		}
		if _, dup := aliases[a.from]; dup {
			state.failf("alias %q at %s:%d: declared more than once", a.from, a.file, a.line)
			continue
		}
		aliases[a.from] = Alias{From: a.from, To: a.to, Deprecated: a.deprecated}
	}

	for from := range aliases {
		seen := map[string]bool{from: true}
		next := aliases[from].To
		for {
			a, ok := aliases[next]
			if !ok {
				break
			}
			if seen[a.To] {
				state.failf("alias cycle detected through %q", from)
				break
			}
			seen[a.To] = true
			next = a.To
		}
	}

	return aliases
}

func joinPath(segments []string) string {
	path := ""
	for i, s := range segments {
		if i > 0 {
			path += "."
		}
		path += s
	}
	return path
}
