// Package telemetry emits named events at well-defined points of the
// dispatch pipeline to pluggable sinks. Collection is external; the
// engine only emits. Sinks must be safe for concurrent emission.
package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event names emitted by the engine.
const (
	EventProcedureStart     = "procedure.start"
	EventProcedureStop      = "procedure.stop"
	EventProcedureException = "procedure.exception"
	EventLookupStart        = "router.lookup.start"
	EventLookupStop         = "router.lookup.stop"
	EventAliasResolved      = "router.alias.resolved"
	EventBatchStart         = "router.batch.start"
	EventBatchStop          = "router.batch.stop"
)

// Event is a single emitted telemetry event.
type Event struct {
	// Name is the hierarchical event name (e.g. "procedure.stop").
	Name string

	// Measurements carries numeric/timing values (duration, system_time).
	Measurements map[string]any

	// Metadata carries identifying context (procedure, kind, path).
	Metadata map[string]any
}

// Sink consumes emitted events. Implementations include the zerolog
// LogSink below and the Prometheus collector in adapters/metrics.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Emitter fans events out to registered sinks. A sink that panics is
// logged and skipped; emission never fails the call being measured.
type Emitter struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger zerolog.Logger
}

// NewEmitter creates an emitter with the given sinks.
func NewEmitter(logger zerolog.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger}
}

// Attach registers an additional sink.
func (e *Emitter) Attach(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit delivers the event to every sink in registration order.
func (e *Emitter) Emit(ctx context.Context, name string, measurements, metadata map[string]any) {
	if e == nil {
		return
	}
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()

	event := Event{Name: name, Measurements: measurements, Metadata: metadata}
	for _, sink := range sinks {
		e.emitOne(ctx, sink, event)
	}
}

func (e *Emitter) emitOne(ctx context.Context, sink Sink, event Event) {
	defer func() {
		if rv := recover(); rv != nil {
			e.logger.Error().
				Str("event", event.Name).
				Interface("panic", rv).
				Msg("telemetry sink panic")
		}
	}()
	sink.Emit(ctx, event)
}

// LogSink writes events to a zerolog logger at debug level. NewEmitter
// attaches no sink by itself; router.New installs an emitter with a
// LogSink when no emitter option is given.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event with its measurements and metadata as fields.
func (s *LogSink) Emit(_ context.Context, event Event) {
	ev := s.logger.Debug().Str("event", event.Name)
	for k, v := range event.Measurements {
		ev = ev.Interface(k, v)
	}
	for k, v := range event.Metadata {
		ev = ev.Interface(k, v)
	}
	ev.Msg("telemetry")
}
