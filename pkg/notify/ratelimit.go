package notify

import (
    "sync/atomic"

    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "hostbridge/pkg/correlator"
    "hostbridge/pkg/protocol"
)

// RateLimited forwards at most perSec notifications per second (with burst)
// to next and drops the rest. Hosts that report progress per tile can flood
// a terminal otherwise.
type RateLimited struct {
    next    correlator.Notifier
    limiter *rate.Limiter
    log     *zap.Logger
    dropped atomic.Uint64
}

// NewRateLimited wraps next. A non-positive perSec disables limiting.
func NewRateLimited(next correlator.Notifier, perSec float64, burst int) *RateLimited {
    limit := rate.Inf
    if perSec > 0 { limit = rate.Limit(perSec) }
    return &RateLimited{
        next:    next,
        limiter: rate.NewLimiter(limit, max(1, burst)),
        log:     zap.L().Named("notify"),
    }
}

func (r *RateLimited) Notify(env protocol.Envelope) {
    if !r.limiter.Allow() {
        if r.dropped.Add(1) == 1 { r.log.Debug("notification rate limited") }
        droppedTotal.WithLabelValues("rate").Inc()
        return
    }
    r.next.Notify(env)
}

// Dropped returns how many notifications were over budget.
func (r *RateLimited) Dropped() uint64 { return r.dropped.Load() }
