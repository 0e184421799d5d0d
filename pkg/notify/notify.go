// Package notify holds consumers for the out-of-band notifications a host
// pushes alongside responses. Every sink satisfies correlator.Notifier and
// none of them block the inbound path.
package notify

import (
    "sync/atomic"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "go.uber.org/zap"

    "hostbridge/pkg/correlator"
    "hostbridge/pkg/protocol"
)

var droppedTotal = promauto.NewCounterVec(
    prometheus.CounterOpts{
        Name: "hostbridge_notify_dropped_total",
        Help: "Notifications dropped by a sink, by reason.",
    },
    []string{"reason"},
)

// Func adapts a plain function to a sink.
type Func func(protocol.Envelope)

func (f Func) Notify(env protocol.Envelope) { f(env) }

// Log writes every notification to a zap logger at info level.
type Log struct {
    log *zap.Logger
}

func NewLog(l *zap.Logger) *Log {
    if l == nil { l = zap.L() }
    return &Log{log: l.Named("notify")}
}

func (s *Log) Notify(env protocol.Envelope) {
    s.log.Info("host notification", zap.Any("data", env.Payload), zap.Time("at", env.Time()))
}

// Channel hands notifications to a buffered channel. When the reader falls
// behind, new notifications are dropped and counted.
type Channel struct {
    ch      chan protocol.Envelope
    dropped atomic.Uint64
}

func NewChannel(buffer int) *Channel {
    if buffer <= 0 { buffer = 64 }
    return &Channel{ch: make(chan protocol.Envelope, buffer)}
}

func (s *Channel) Notify(env protocol.Envelope) {
    select {
    case s.ch <- env:
    default:
        s.dropped.Add(1)
        droppedTotal.WithLabelValues("full").Inc()
    }
}

// C returns the receive side.
func (s *Channel) C() <-chan protocol.Envelope { return s.ch }

// Dropped returns how many notifications did not fit in the buffer.
func (s *Channel) Dropped() uint64 { return s.dropped.Load() }

// Multi fans a notification out to every sink in order.
type Multi []correlator.Notifier

func (m Multi) Notify(env protocol.Envelope) {
    for _, s := range m {
        if s != nil { s.Notify(env) }
    }
}

var (
    _ correlator.Notifier = Func(nil)
    _ correlator.Notifier = (*Log)(nil)
    _ correlator.Notifier = (*Channel)(nil)
    _ correlator.Notifier = Multi(nil)
    _ correlator.Notifier = (*RateLimited)(nil)
)
