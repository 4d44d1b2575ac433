package metrics

import (
	"github.com/jd3nn1s/seanboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

// PromObserver exports poller activity. Every numeric and boolean field of the
// latest pushed record is mirrored into a gauge.
type PromObserver struct {
	counters   map[string]prometheus.Counter
	sinkErrors *prometheus.CounterVec
	cycle      prometheus.Histogram
	fields     *prometheus.GaugeVec
	lastPush   prometheus.Gauge
}

// NewPromObserver registers its collectors with reg, or with the default
// registerer when reg is nil.
func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seanboard_connect_attempts_total",
		Help: "Connection attempts made to the telemetry store.",
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seanboard_connect_timeouts_total",
		Help: "Connection attempts abandoned after the connect timeout.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seanboard_connect_failures_total",
		Help: "Connection attempts that failed before the timeout.",
	})
	pushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seanboard_snapshots_pushed_total",
		Help: "Records accepted by the sink.",
	})
	sinkErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seanboard_sink_errors_total",
		Help: "Transient sink failures.",
	}, []string{"sink"})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "seanboard_cycle_seconds",
		Help:    "Time from connect attempt to accepted push.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	fields := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seanboard_field_value",
		Help: "Latest value of each telemetry field, booleans as 0 or 1.",
	}, []string{"field"})
	lastPush := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seanboard_last_push_timestamp_seconds",
		Help: "Unix time of the last accepted push.",
	})

	reg.MustRegister(attempts, timeouts, failures, pushed, sinkErrors, cycle, fields, lastPush)

	return &PromObserver{
		counters: map[string]prometheus.Counter{
			"attempts": attempts,
			"timeouts": timeouts,
			"failures": failures,
			"pushed":   pushed,
		},
		sinkErrors: sinkErrors,
		cycle:      cycle,
		fields:     fields,
		lastPush:   lastPush,
	}
}

func (p *PromObserver) ConnectAttempt(addr string) {
	p.counters["attempts"].Inc()
}

func (p *PromObserver) ConnectFailed(addr string, err error, timedOut bool) {
	if timedOut {
		p.counters["timeouts"].Inc()
		return
	}
	p.counters["failures"].Inc()
}

func (p *PromObserver) SnapshotPushed(rec *seanboard.TelemetryRecord, cycle time.Duration) {
	p.counters["pushed"].Inc()
	p.cycle.Observe(cycle.Seconds())
	p.lastPush.SetToCurrentTime()
	if rec != nil {
		p.setFields(rec)
	}
}

func (p *PromObserver) SinkError(name string, err error) {
	p.sinkErrors.WithLabelValues(name).Inc()
}

func (p *PromObserver) setFields(rec *seanboard.TelemetryRecord) {
	for _, spec := range seanboard.Fields() {
		v, ok := rec.Value(spec.Name)
		if !ok {
			continue
		}
		switch v.Kind() {
		case seanboard.KindNumber:
			n, _ := v.Number()
			p.fields.WithLabelValues(spec.Name).Set(n)
		case seanboard.KindBool:
			b, _ := v.Bool()
			if b {
				p.fields.WithLabelValues(spec.Name).Set(1)
			} else {
				p.fields.WithLabelValues(spec.Name).Set(0)
			}
		}
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
