// Package metrics provides a Prometheus telemetry sink for the
// dispatch engine. It translates engine events into counters and
// histograms; scraping and alerting are external concerns.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/rpcgate/core/telemetry"
)

// Collector holds all Prometheus metrics for the dispatch engine and
// implements telemetry.Sink.
type Collector struct {
	// Procedure metrics
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	CallErrors   *prometheus.CounterVec

	// Router metrics
	LookupsTotal   *prometheus.CounterVec
	AliasResolved  *prometheus.CounterVec
	BatchesTotal   prometheus.Counter
	BatchSize      prometheus.Histogram
	BatchDuration  prometheus.Histogram
	BatchCallsOK   prometheus.Counter
	BatchCallsFail prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector on a custom registry. Useful for
// testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "procedure_calls_total",
				Help:      "Total number of procedure calls started",
			},
			[]string{"procedure", "kind", "unit"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpcgate",
				Name:      "procedure_duration_seconds",
				Help:      "Procedure execution duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"procedure", "kind"},
		),
		CallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "procedure_errors_total",
				Help:      "Total number of failed procedure calls",
			},
			[]string{"procedure", "kind", "error_kind"},
		),
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "router_lookups_total",
				Help:      "Total number of path lookups",
			},
			[]string{"found"},
		),
		AliasResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "router_alias_resolutions_total",
				Help:      "Total number of calls dispatched through an alias",
			},
			[]string{"from", "deprecated"},
		),
		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "router_batches_total",
				Help:      "Total number of batch dispatches",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rpcgate",
				Name:      "router_batch_size",
				Help:      "Number of calls per batch",
				Buckets:   []float64{1, 2, 5, 10, 20, 50},
			},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rpcgate",
				Name:      "router_batch_duration_seconds",
				Help:      "Batch wall-clock duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		BatchCallsOK: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "router_batch_calls_success_total",
				Help:      "Total batch calls that succeeded",
			},
		),
		BatchCallsFail: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rpcgate",
				Name:      "router_batch_calls_error_total",
				Help:      "Total batch calls that failed",
			},
		),
	}
}

// Emit translates one telemetry event into metric updates.
func (c *Collector) Emit(_ context.Context, event telemetry.Event) {
	switch event.Name {
	case telemetry.EventProcedureStart:
		c.CallsTotal.WithLabelValues(
			metaString(event, "procedure"),
			metaString(event, "kind"),
			metaString(event, "unit"),
		).Inc()

	case telemetry.EventProcedureStop:
		c.CallDuration.WithLabelValues(
			metaString(event, "procedure"),
			metaString(event, "kind"),
		).Observe(durationSeconds(event))

	case telemetry.EventProcedureException:
		c.CallDuration.WithLabelValues(
			metaString(event, "procedure"),
			metaString(event, "kind"),
		).Observe(durationSeconds(event))
		c.CallErrors.WithLabelValues(
			metaString(event, "procedure"),
			metaString(event, "kind"),
			metaString(event, "error_kind"),
		).Inc()

	case telemetry.EventLookupStop:
		found := "false"
		if b, ok := event.Metadata["found"].(bool); ok && b {
			found = "true"
		}
		c.LookupsTotal.WithLabelValues(found).Inc()

	case telemetry.EventAliasResolved:
		deprecated := "false"
		if b, ok := event.Metadata["deprecated"].(bool); ok && b {
			deprecated = "true"
		}
		c.AliasResolved.WithLabelValues(metaString(event, "from"), deprecated).Inc()

	case telemetry.EventBatchStart:
		c.BatchesTotal.Inc()
		if n, ok := event.Measurements["batch_size"].(int); ok {
			c.BatchSize.Observe(float64(n))
		}

	case telemetry.EventBatchStop:
		c.BatchDuration.Observe(durationSeconds(event))
		if n, ok := event.Measurements["success_count"].(int); ok {
			c.BatchCallsOK.Add(float64(n))
		}
		if n, ok := event.Measurements["error_count"].(int); ok {
			c.BatchCallsFail.Add(float64(n))
		}
	}
}

func metaString(event telemetry.Event, key string) string {
	s, _ := event.Metadata[key].(string)
	return s
}

func durationSeconds(event telemetry.Event) float64 {
	if d, ok := event.Measurements["duration"].(time.Duration); ok {
		return d.Seconds()
	}
	return 0
}

// Ensure interface compliance.
var _ telemetry.Sink = (*Collector)(nil)
