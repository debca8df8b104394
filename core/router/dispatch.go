package router

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/executor"
	"github.com/artpar/rpcgate/core/rpcerror"
	"github.com/artpar/rpcgate/core/telemetry"
)

// CallOption configures a single Call or Batch invocation.
type CallOption func(*callOptions)

type callOptions struct {
	before         []executor.BeforeHook
	after          []executor.AfterHook
	validateOutput *bool
	maxBatchSize   int
	maxConcurrency int
	callTimeout    time.Duration
}

// WithBeforeHooks adds per-call before hooks.
func WithBeforeHooks(hooks ...executor.BeforeHook) CallOption {
	return func(o *callOptions) { o.before = append(o.before, hooks...) }
}

// WithAfterHooks adds per-call after hooks.
func WithAfterHooks(hooks ...executor.AfterHook) CallOption {
	return func(o *callOptions) { o.after = append(o.after, hooks...) }
}

// WithValidateOutput overrides response validation for this call,
// taking precedence over procedure metadata and process config.
func WithValidateOutput(v bool) CallOption {
	return func(o *callOptions) { o.validateOutput = &v }
}

// WithMaxBatchSize overrides the batch size limit for one Batch.
func WithMaxBatchSize(n int) CallOption {
	return func(o *callOptions) { o.maxBatchSize = n }
}

// WithMaxConcurrency overrides the in-flight cap for one Batch.
func WithMaxConcurrency(n int) CallOption {
	return func(o *callOptions) { o.maxConcurrency = n }
}

// WithCallTimeout overrides the per-call deadline for one Batch.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.callTimeout = d }
}

func (t *Table) resolveOptions(opts []CallOption) callOptions {
	limits := t.limits()
	o := callOptions{
		maxBatchSize:   limits.MaxBatchSize,
		maxConcurrency: limits.MaxConcurrency,
		callTimeout:    limits.CallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Call dispatches one procedure call: path validation, entry lookup
// with alias resolution and suggestions on miss, context tagging, and
// execution through the entry's pre-composed chain.
func (t *Table) Call(ctx context.Context, c call.Context, path string, input map[string]any, opts ...CallOption) (any, error) {
	o := t.resolveOptions(opts)
	return t.dispatch(ctx, c, path, input, o)
}

func (t *Table) dispatch(ctx context.Context, c call.Context, path string, input map[string]any, o callOptions) (value any, err error) {
	t.emitter.Emit(ctx, telemetry.EventLookupStart,
		map[string]any{"system_time": time.Now()},
		map[string]any{"router": t.name, "path": path})
	start := time.Now()
	found := false
	defer func() {
		t.emitter.Emit(ctx, telemetry.EventLookupStop,
			map[string]any{"duration": time.Since(start)},
			map[string]any{"router": t.name, "path": path, "found": found})
	}()

	if !ValidPath(path) && !ValidAliasPath(path) {
		return nil, rpcerror.InvalidPath(path)
	}

	entry, ok := t.byPath[path]
	if !ok {
		alias, hasAlias := t.aliases[path]
		if hasAlias {
			entry, ok = t.byPath[alias.To]
			if ok {
				t.emitter.Emit(ctx, telemetry.EventAliasResolved, map[string]any{},
					map[string]any{
						"router":     t.name,
						"from":       alias.From,
						"to":         alias.To,
						"deprecated": alias.Deprecated,
					})
			}
		}
		if !ok {
			return nil, rpcerror.NotFound(path, t.suggest(path))
		}
	}
	found = true

	c = c.WithProcedure(entry.Path, string(entry.Kind))

	// Runtime indirection: the definition is resolved from its
	// registry per call, so handlers holding captured closures need
	// not be embedded in the frozen table.
	def, ok := entry.registry.ByName(entry.ProcedureName)
	if !ok {
		t.logger.Error().
			Str("path", entry.Path).
			Str("unit", entry.Unit).
			Msg("routing table entry references a missing definition")
		return nil, rpcerror.Internal()
	}

	return t.exec.Execute(ctx, entry.registry, def, input, c, executor.Options{
		BeforeHooks:    o.before,
		AfterHooks:     o.after,
		ValidateOutput: o.validateOutput,
		Chain:          entry.Chain,
	})
}

// BatchCall is one element of a batch.
type BatchCall struct {
	Path  string
	Input map[string]any
}

// BatchResult is the outcome of one batch element. Exactly one of
// Value and Err is meaningful; Err is set on failure.
type BatchResult struct {
	Value any
	Err   *rpcerror.Error
}

// Batch fans calls out with bounded parallelism and a per-call
// timeout, returning results positionally in input order. A batch over
// the size limit yields a single BatchTooLarge result.
func (t *Table) Batch(ctx context.Context, c call.Context, calls []BatchCall, opts ...CallOption) []BatchResult {
	o := t.resolveOptions(opts)

	if len(calls) == 0 {
		return []BatchResult{}
	}
	if len(calls) > o.maxBatchSize {
		return []BatchResult{{Err: rpcerror.BatchTooLarge(len(calls), o.maxBatchSize)}}
	}

	paths := make([]string, len(calls))
	for i, bc := range calls {
		paths[i] = bc.Path
	}
	t.emitter.Emit(ctx, telemetry.EventBatchStart,
		map[string]any{"system_time": time.Now(), "batch_size": len(calls)},
		map[string]any{"router": t.name, "paths": paths})
	start := time.Now()

	results := make([]BatchResult, len(calls))
	sem := semaphore.NewWeighted(int64(o.maxConcurrency))
	done := make(chan int, len(calls))

	for i := range calls {
		go func(i int) {
			defer func() { done <- i }()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = BatchResult{Err: rpcerror.Timeout()}
				return
			}
			defer sem.Release(1)
			results[i] = t.runBatchCall(ctx, c, calls[i], o)
		}(i)
	}
	for range calls {
		<-done
	}

	success, failure := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failure++
		} else {
			success++
		}
	}
	t.emitter.Emit(ctx, telemetry.EventBatchStop,
		map[string]any{
			"duration":      time.Since(start),
			"success_count": success,
			"error_count":   failure,
		},
		map[string]any{"router": t.name})

	return results
}

// runBatchCall runs one element under the per-call deadline. The
// result slot is filled with a Timeout error when the deadline passes,
// even if the underlying handler has not yet noticed the cancellation.
func (t *Table) runBatchCall(ctx context.Context, c call.Context, bc BatchCall, o callOptions) BatchResult {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	resCh := make(chan BatchResult, 1)
	go func() {
		value, err := t.dispatch(callCtx, c, bc.Path, bc.Input, o)
		if err != nil {
			resCh <- BatchResult{Err: rpcerror.From(err)}
			return
		}
		resCh <- BatchResult{Value: value}
	}()

	select {
	case res := <-resCh:
		// A handler that noticed the cancellation reports a context
		// error; normalise it to the timeout kind.
		if res.Err != nil && callCtx.Err() != nil && ctx.Err() == nil {
			return BatchResult{Err: rpcerror.Timeout()}
		}
		return res
	case <-callCtx.Done():
		return BatchResult{Err: rpcerror.Timeout()}
	}
}
