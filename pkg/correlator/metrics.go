package correlator

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement outcomes, used as metric labels and in logs.
const (
    outcomeSuccess  = "success"
    outcomeRemote   = "remote_error"
    outcomeTimeout  = "timeout"
    outcomeSend     = "send_error"
    outcomeCanceled = "canceled"
    outcomeClosed   = "closed"
)

// Reasons an inbound message is discarded without settling anything.
const (
    discardLate    = "late"
    discardUnknown = "unknown"
    discardKind    = "kind"
)

// Metrics groups the correlator's Prometheus collectors. All Correlators
// share DefaultMetrics unless WithMetrics says otherwise.
type Metrics struct {
    Requests      prometheus.Counter
    Settled       *prometheus.CounterVec
    Discarded     *prometheus.CounterVec
    ParseFailures prometheus.Counter
    Notifications prometheus.Counter
    Pending       prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
    f := promauto.With(reg)
    return &Metrics{
        Requests: f.NewCounter(prometheus.CounterOpts{
            Name: "hostbridge_correlator_requests_total",
            Help: "Requests dispatched to the host.",
        }),
        Settled: f.NewCounterVec(prometheus.CounterOpts{
            Name: "hostbridge_correlator_settled_total",
            Help: "Settled requests by outcome.",
        }, []string{"outcome"}),
        Discarded: f.NewCounterVec(prometheus.CounterOpts{
            Name: "hostbridge_correlator_discarded_total",
            Help: "Inbound messages dropped without settling a request, by reason.",
        }, []string{"reason"}),
        ParseFailures: f.NewCounter(prometheus.CounterOpts{
            Name: "hostbridge_correlator_parse_failures_total",
            Help: "Inbound messages that could not be decoded.",
        }),
        Notifications: f.NewCounter(prometheus.CounterOpts{
            Name: "hostbridge_correlator_notifications_total",
            Help: "Notifications forwarded to the sink.",
        }),
        Pending: f.NewGauge(prometheus.GaugeOpts{
            Name: "hostbridge_correlator_pending",
            Help: "Requests waiting for a response.",
        }),
    }
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
