// Package procedure defines procedure declarations: a named unit of
// RPC work with declared input/output schemas, a handler, metadata,
// and an optional REST route. Declarations accumulate in a per-unit
// Registry which is validated and frozen before the router mounts it.
package procedure

import (
	"context"
	"fmt"
	"regexp"
	"runtime"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/schema"
)

// Kind classifies a procedure.
type Kind string

const (
	// KindQuery is a read-only, safe-to-retry procedure.
	KindQuery Kind = "query"
	// KindMutation is a side-effecting, non-idempotent procedure.
	KindMutation Kind = "mutation"
	// KindSubscription yields a lazy sequence (see core/subscription).
	KindSubscription Kind = "subscription"
)

// Valid reports whether k is a recognised kind.
func (k Kind) Valid() bool {
	switch k {
	case KindQuery, KindMutation, KindSubscription:
		return true
	}
	return false
}

// Handler executes a procedure. The input is the typed value produced
// by the procedure's input schema (the empty map when no schema is
// declared).
type Handler func(ctx context.Context, c call.Context, input any) (any, error)

// Route declares an optional REST binding consumed by HTTP adapters.
type Route struct {
	// Method is one of GET, POST, PUT, PATCH, DELETE.
	Method string

	// PathTemplate is the route template, e.g. "/users/{id}".
	PathTemplate string
}

var routeMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// SourceLocation records where a procedure was declared, for build
// diagnostics.
type SourceLocation struct {
	File string
	Line int
	Unit string
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Unit)
}

// nameRE is the strict identifier grammar for procedure names and
// canonical path segments.
var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidName reports whether s matches the strict identifier grammar.
func ValidName(s string) bool {
	return nameRE.MatchString(s)
}

// Definition is an immutable procedure record. Build one with the
// builder (NewQuery/NewMutation/NewSubscription) and register it on a
// Registry; fields are exported for the engine and introspection, not
// for post-registration mutation.
type Definition struct {
	// Name is the procedure identifier, unique within its unit.
	Name string

	// Kind is the procedure kind.
	Kind Kind

	// Input and Output are the declared schemas; nil means undeclared.
	Input  schema.Schema
	Output schema.Schema

	// Handler executes the procedure. May be nil, in which case the
	// executor resolves a binding named Name on the declaring unit at
	// call time.
	Handler Handler

	// Meta carries recognised options plus arbitrary extra keys.
	Meta Meta

	// Route is the optional REST binding.
	Route *Route

	// Middleware is the procedure-local middleware, appended after the
	// router and scope chains.
	Middleware []middleware.Entry

	// Source records the declaration site.
	Source SourceLocation
}

// Builder assembles a Definition fluently.
type Builder struct {
	def Definition
}

func newBuilder(name string, kind Kind) *Builder {
	b := &Builder{def: Definition{
		Name: name,
		Kind: kind,
		Meta: Meta{},
	}}
	if _, file, line, ok := runtime.Caller(2); ok {
		b.def.Source.File = file
		b.def.Source.Line = line
	}
	return b
}

// NewQuery starts a query definition.
func NewQuery(name string) *Builder { return newBuilder(name, KindQuery) }

// NewMutation starts a mutation definition.
func NewMutation(name string) *Builder { return newBuilder(name, KindMutation) }

// NewSubscription starts a subscription definition.
func NewSubscription(name string) *Builder { return newBuilder(name, KindSubscription) }

// Input declares the input schema.
func (b *Builder) Input(s schema.Schema) *Builder {
	b.def.Input = s
	return b
}

// Output declares the output schema.
func (b *Builder) Output(s schema.Schema) *Builder {
	b.def.Output = s
	return b
}

// Handler sets the handler function.
func (b *Builder) Handler(h Handler) *Builder {
	b.def.Handler = h
	return b
}

// Meta sets one metadata option.
func (b *Builder) Meta(key string, value any) *Builder {
	b.def.Meta[key] = value
	return b
}

// Route declares a REST binding.
func (b *Builder) Route(method, pathTemplate string) *Builder {
	b.def.Route = &Route{Method: method, PathTemplate: pathTemplate}
	return b
}

// Use appends a procedure-local middleware entry.
func (b *Builder) Use(m middleware.Module, opts map[string]any) *Builder {
	b.def.Middleware = append(b.def.Middleware, middleware.Entry{Module: m, Opts: opts})
	return b
}

// Build returns the assembled Definition.
func (b *Builder) Build() Definition {
	return b.def
}
