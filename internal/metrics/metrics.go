package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketstream"

// Metrics holds every collector the streamer exports.
type Metrics struct {
	ConnectionState *prometheus.GaugeVec
	Reconnects      *prometheus.CounterVec
	Messages        *prometheus.CounterVec
	StatusRecords   *prometheus.CounterVec
	MalformedFrames *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	RouterDropped   *prometheus.CounterVec
	WriterRows      *prometheus.CounterVec
	WriterErrors    *prometheus.CounterVec
	WriterBatch     *prometheus.HistogramVec
	CacheErrors     *prometheus.CounterVec
	CacheDropped    *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current state of each feed connection, 0 otherwise.",
		}, []string{"market", "state"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnection attempts per market.",
		}, []string{"market"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Normalized events received per market and category.",
		}, []string{"market", "category"}),
		StatusRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_records_total",
			Help:      "Status records received per market and status value.",
		}, []string{"market", "status"}),
		MalformedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that could not be decoded.",
		}, []string{"market"}),
		HandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked.",
		}, []string{"market"}),
		RouterDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_dropped_total",
			Help:      "Events dropped by the router because a buffer was full or closed.",
		}, []string{"category"}),
		WriterRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_rows_total",
			Help:      "Rows submitted to the database per table.",
		}, []string{"table"}),
		WriterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Failed batch inserts per table.",
		}, []string{"table"}),
		WriterBatch: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writer_batch_duration_seconds",
			Help:      "Time spent sending one batch to the database.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Failed cache writes or publishes per market.",
		}, []string{"market"}),
		CacheDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_dropped_total",
			Help:      "Events not cached because the publish queue was full or stopped.",
		}, []string{"market"}),
	}
}

// SetConnectionState marks state as the only active state for market.
func (m *Metrics) SetConnectionState(market, state string) {
	if m == nil {
		return
	}
	m.ConnectionState.DeletePartialMatch(prometheus.Labels{"market": market})
	m.ConnectionState.WithLabelValues(market, state).Set(1)
}

func (m *Metrics) IncReconnect(market string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(market).Inc()
}

func (m *Metrics) IncMessage(market, category string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(market, category).Inc()
}

func (m *Metrics) IncStatus(market, status string) {
	if m == nil {
		return
	}
	m.StatusRecords.WithLabelValues(market, status).Inc()
}

func (m *Metrics) IncMalformed(market string) {
	if m == nil {
		return
	}
	m.MalformedFrames.WithLabelValues(market).Inc()
}

func (m *Metrics) IncHandlerError(market string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(market).Inc()
}

func (m *Metrics) IncRouterDropped(category string) {
	if m == nil {
		return
	}
	m.RouterDropped.WithLabelValues(category).Inc()
}

// ObserveBatch records one batch insert into table.
func (m *Metrics) ObserveBatch(table string, rows int, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.WriterBatch.WithLabelValues(table).Observe(took.Seconds())
	if err != nil {
		m.WriterErrors.WithLabelValues(table).Inc()
		return
	}
	m.WriterRows.WithLabelValues(table).Add(float64(rows))
}

func (m *Metrics) IncCacheError(market string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(market).Inc()
}

func (m *Metrics) IncCacheDropped(market string) {
	if m == nil {
		return
	}
	m.CacheDropped.WithLabelValues(market).Inc()
}
