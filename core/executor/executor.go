// Package executor runs the per-call pipeline: telemetry bracketing,
// before-hooks, input validation, the middleware chain, the handler
// (with a panic trap), output validation, and after-hooks. Panics are
// trapped exactly once, here; every failure leaves the executor as an
// *rpcerror.Error value.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/rpcerror"
	"github.com/artpar/rpcgate/core/schema"
	"github.com/artpar/rpcgate/core/telemetry"
)

// Config carries the process-wide execution flags. It is supplied as a
// getter so a hot-reloaded configuration takes effect without
// rebuilding the routing table.
type Config struct {
	// ValidateOutput is the process-wide default for response
	// validation. Per-call options and procedure metadata take
	// precedence, in that order.
	ValidateOutput bool

	// IncludeExceptionDetails attaches trapped panic details to
	// internal errors. Off by default; enable only for development.
	IncludeExceptionDetails bool
}

// DefaultConfig returns the defaults: output validation on, exception
// details off.
func DefaultConfig() Config {
	return Config{ValidateOutput: true}
}

// BeforeHook runs before input validation. It may replace the call
// context; the first error short-circuits the pipeline.
type BeforeHook func(ctx context.Context, c call.Context, raw map[string]any, def *procedure.Definition) (call.Context, error)

// AfterHook runs after output validation. It may replace the value;
// the first error short-circuits.
type AfterHook func(ctx context.Context, c call.Context, value any, def *procedure.Definition) (any, error)

// Options configures one execution.
type Options struct {
	// BeforeHooks run sequentially before validation.
	BeforeHooks []BeforeHook

	// AfterHooks run sequentially after the handler.
	AfterHooks []AfterHook

	// ValidateOutput overrides response validation for this call.
	// Nil leaves the decision to procedure metadata, then Config.
	ValidateOutput *bool

	// Chain is the pre-composed middleware chain, normally supplied by
	// the routing table entry.
	Chain []middleware.Resolved
}

// Executor executes procedures.
type Executor struct {
	logger  zerolog.Logger
	emitter *telemetry.Emitter
	config  func() Config
}

// New creates an executor. A nil config getter means DefaultConfig.
func New(logger zerolog.Logger, emitter *telemetry.Emitter, config func() Config) *Executor {
	if config == nil {
		config = DefaultConfig
	}
	return &Executor{logger: logger, emitter: emitter, config: config}
}

// Execute runs one call through the full pipeline. reg is the
// declaring unit's registry, consulted at call time for implicit
// handler bindings.
func (e *Executor) Execute(ctx context.Context, reg *procedure.Registry, def *procedure.Definition, raw map[string]any, c call.Context, opts Options) (any, error) {
	meta := map[string]any{
		"procedure": def.Name,
		"kind":      string(def.Kind),
		"unit":      def.Source.Unit,
	}
	e.emitter.Emit(ctx, telemetry.EventProcedureStart,
		map[string]any{"system_time": time.Now()}, meta)
	start := time.Now()

	value, err := e.run(ctx, reg, def, raw, c, opts)

	duration := time.Since(start)
	if err != nil {
		rpcErr := rpcerror.From(err)
		e.emitter.Emit(ctx, telemetry.EventProcedureException,
			map[string]any{"duration": duration},
			map[string]any{
				"procedure":  def.Name,
				"kind":       string(def.Kind),
				"unit":       def.Source.Unit,
				"error_kind": string(rpcErr.Kind),
				"reason":     rpcErr.Message,
			})
		return nil, rpcErr
	}

	e.emitter.Emit(ctx, telemetry.EventProcedureStop,
		map[string]any{"duration": duration}, meta)
	return value, nil
}

func (e *Executor) run(ctx context.Context, reg *procedure.Registry, def *procedure.Definition, raw map[string]any, c call.Context, opts Options) (any, error) {
	// Before-hooks, first error short-circuits.
	for _, hook := range opts.BeforeHooks {
		next, err := hook(ctx, c, raw, def)
		if err != nil {
			return nil, err
		}
		c = next
	}

	// Input validation with coercion; a nil schema substitutes the
	// empty map so handlers always receive a well-formed input.
	typed, fieldErrs := schema.Parse(def.Input, raw)
	if len(fieldErrs) > 0 {
		return nil, rpcerror.Validation(schema.GroupByPath(fieldErrs))
	}

	// Middleware chain ending in the handler, under a single panic
	// trap. Panics in middleware and handler alike surface here.
	value, err := e.runTrapped(ctx, reg, def, typed, c, opts.Chain)
	if err != nil {
		return nil, err
	}

	// Output validation. Subscriptions yield stream handles, which are
	// the transport's to consume; they are never response-validated.
	if def.Kind != procedure.KindSubscription && e.effectiveValidateOutput(opts, def) {
		if validated, ok, verr := e.validateOutput(def, value); verr != nil {
			return nil, verr
		} else if ok {
			value = validated
		}
	}

	// After-hooks, first error short-circuits.
	for _, hook := range opts.AfterHooks {
		next, err := hook(ctx, c, value, def)
		if err != nil {
			return nil, err
		}
		value = next
	}

	return value, nil
}

// runTrapped runs the middleware chain and handler under the panic
// trap. This is the only recover point in the engine.
func (e *Executor) runTrapped(ctx context.Context, reg *procedure.Registry, def *procedure.Definition, input any, c call.Context, chain []middleware.Resolved) (value any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			stack := debug.Stack()
			e.logger.Error().
				Str("procedure", def.Name).
				Str("unit", def.Source.Unit).
				Interface("panic", rv).
				Bytes("stack", stack).
				Msg("trapped panic in procedure call")

			rpcErr := rpcerror.Internal()
			if e.config().IncludeExceptionDetails {
				rpcErr.Details = map[string]any{
					"panic": stringify(rv),
					"stack": string(stack),
				}
			}
			value, err = nil, rpcErr
		}
	}()

	value, err = middleware.Run(ctx, c, chain, func(ctx context.Context, c call.Context) (any, error) {
		handler, ok := reg.HandlerFor(def)
		if !ok {
			e.logger.Error().
				Str("procedure", def.Name).
				Str("unit", def.Source.Unit).
				Msg("no handler resolvable for procedure")
			return nil, rpcerror.Internal()
		}
		v, herr := handler(ctx, c, input)
		if herr != nil {
			return nil, rpcerror.From(herr)
		}
		return v, nil
	})

	var perr *middleware.ProtocolError
	if errors.As(err, &perr) {
		e.logger.Error().
			Str("procedure", def.Name).
			Str("middleware", perr.Module).
			Msg("middleware completed without calling next or returning an error")
		return nil, rpcerror.Internal()
	}
	return value, err
}

// effectiveValidateOutput applies the precedence: per-call option,
// then procedure metadata, then process-wide config.
func (e *Executor) effectiveValidateOutput(opts Options, def *procedure.Definition) bool {
	if opts.ValidateOutput != nil {
		return *opts.ValidateOutput
	}
	if v, ok := def.Meta.ValidateOutput(); ok {
		return v
	}
	return e.config().ValidateOutput
}

// validateOutput checks the handler's value against the output schema.
// Only map-shaped values are checkable against a map schema; other
// shapes pass through untouched. Validator details never reach the
// caller.
func (e *Executor) validateOutput(def *procedure.Definition, value any) (any, bool, error) {
	if def.Output == nil {
		return nil, false, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false, nil
	}

	typed, fieldErrs := def.Output.Parse(m)
	if len(fieldErrs) > 0 {
		e.logger.Error().
			Str("procedure", def.Name).
			Str("unit", def.Source.Unit).
			Str("mismatch", schema.FormatErrors(fieldErrs)).
			Msg("response validation failed")
		return nil, false, rpcerror.New(rpcerror.KindInternal, "Response validation failed")
	}
	return typed, true, nil
}

func stringify(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}
