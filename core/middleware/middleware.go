// Package middleware defines the two-operation middleware contract and
// the continuation-passing chain runner used by the executor.
//
// A middleware module is initialised once per declaration site
// (Init(opts) -> config, at router build time) and invoked per call
// (Call(ctx, cfg, next)). Call receives the continuation for the rest
// of the chain; the handler sits after the innermost middleware.
package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/rpcgate/core/call"
)

// Next is the continuation for the remainder of the chain. The
// returned Context is the one accumulated by downstream middleware.
type Next func(ctx context.Context, c call.Context) (call.Context, error)

// Module is a middleware implementation.
type Module interface {
	// Name identifies the module in skip lists and diagnostics.
	Name() string

	// Init resolves declaration-site options into a per-site config.
	// It runs once, at router build time.
	Init(opts map[string]any) (any, error)

	// Call wraps one call. It must either invoke next (exactly once),
	// return an error, or return a Terminate to short-circuit with a
	// result. Returning nil without invoking next is a protocol
	// violation surfaced to the caller as an internal error.
	Call(ctx context.Context, c call.Context, cfg any, next Next) (call.Context, error)
}

// Entry is a declared (module, opts) pair, before Init.
type Entry struct {
	Module Module
	Opts   map[string]any
}

// Resolved is a chain element after Init: the module plus its
// declaration-site config.
type Resolved struct {
	Module Module
	Config any
}

// Terminate is returned (as an error) by a middleware that
// intentionally short-circuits the chain: the handler is skipped and
// Result becomes the call's value. This makes the short-circuit
// explicit and distinguishable from a middleware that forgot next.
type Terminate struct {
	Result any
}

// Error implements the error interface so Terminate can travel the
// chain's error return.
func (t *Terminate) Error() string {
	return "middleware terminated the chain"
}

// ProtocolError reports a middleware that returned ok without calling
// next and without terminating.
type ProtocolError struct {
	Module string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("middleware %q completed without calling next or returning an error", e.Module)
}

// Handler is the function invoked after the innermost middleware.
type Handler func(ctx context.Context, c call.Context) (any, error)

// Run executes the resolved chain in declaration order, ending in
// handler. Middleware errors propagate unchanged; a Terminate converts
// to success with its Result; a middleware that neither calls next nor
// errors yields a ProtocolError.
func Run(ctx context.Context, c call.Context, chain []Resolved, handler Handler) (any, error) {
	var result any

	var step func(ctx context.Context, c call.Context, idx int) (call.Context, error)
	step = func(ctx context.Context, c call.Context, idx int) (call.Context, error) {
		if idx == len(chain) {
			v, err := handler(ctx, c)
			if err != nil {
				return c, err
			}
			result = v
			return c, nil
		}

		elem := chain[idx]
		called := false
		next := func(ctx context.Context, nc call.Context) (call.Context, error) {
			called = true
			return step(ctx, nc, idx+1)
		}

		out, err := elem.Module.Call(ctx, c, elem.Config, next)
		if err != nil {
			var term *Terminate
			if errors.As(err, &term) {
				result = term.Result
				return out, nil
			}
			return out, err
		}
		if !called {
			return out, &ProtocolError{Module: elem.Module.Name()}
		}
		return out, nil
	}

	if _, err := step(ctx, c, 0); err != nil {
		return nil, err
	}
	return result, nil
}

// Func adapts plain functions into a Module, for middleware that does
// not need its own type.
type Func struct {
	// ModuleName is the module's name.
	ModuleName string

	// InitFunc resolves options; nil means the opts map is the config.
	InitFunc func(opts map[string]any) (any, error)

	// CallFunc wraps one call.
	CallFunc func(ctx context.Context, c call.Context, cfg any, next Next) (call.Context, error)
}

// Name returns the module name.
func (f *Func) Name() string { return f.ModuleName }

// Init resolves declaration-site options.
func (f *Func) Init(opts map[string]any) (any, error) {
	if f.InitFunc == nil {
		return opts, nil
	}
	return f.InitFunc(opts)
}

// Call wraps one call.
func (f *Func) Call(ctx context.Context, c call.Context, cfg any, next Next) (call.Context, error) {
	return f.CallFunc(ctx, c, cfg, next)
}

// Ensure interface compliance.
var _ Module = (*Func)(nil)
