package correlator

import (
    "time"

    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "hostbridge/pkg/protocol/codec"
)

const (
    // DefaultTimeout applies when Request is called with a non-positive timeout.
    DefaultTimeout = 30 * time.Second
    // DefaultLateWindow is how long settled identities are remembered.
    DefaultLateWindow = 2 * time.Minute
)

// Option configures a Correlator.
type Option func(*Correlator)

func WithLogger(l *zap.Logger) Option {
    return func(c *Correlator) { if l != nil { c.log = l } }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk clockwork.Clock) Option {
    return func(c *Correlator) { if clk != nil { c.clock = clk } }
}

func WithNotifier(n Notifier) Option {
    return func(c *Correlator) { c.notifier = n }
}

// WithCodecs sets the registry used to decode binary inbound frames.
func WithCodecs(r *codec.Registry) Option {
    return func(c *Correlator) { if r != nil { c.codecs = r } }
}

func WithDefaultTimeout(d time.Duration) Option {
    return func(c *Correlator) { if d > 0 { c.defaultTimeout = d } }
}

// WithLateWindow sets how long settled identities are remembered for
// classifying late arrivals. Zero or negative disables the bookkeeping.
// The window is measured on the wall clock, not the clock from WithClock:
// it only affects how discards are labelled, never an outcome.
func WithLateWindow(d time.Duration) Option {
    return func(c *Correlator) { c.lateWindow = d }
}

func WithMetrics(m *Metrics) Option {
    return func(c *Correlator) { if m != nil { c.metrics = m } }
}
