package correlator

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/jellydator/ttlcache/v3"
    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "hostbridge/pkg/protocol"
    "hostbridge/pkg/protocol/codec"
)

// Sender is the outbound half of the transport. Send is best effort and may
// fail synchronously; it must not block on a response.
type Sender interface {
    Send(env protocol.Envelope) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(protocol.Envelope) error

func (f SenderFunc) Send(env protocol.Envelope) error { return f(env) }

// ContextSender is a Sender whose writes can be abandoned. Request uses it
// when available so a stalled transport cannot hold the caller past the
// call's settlement.
type ContextSender interface {
    Sender
    SendContext(ctx context.Context, env protocol.Envelope) error
}

// Notifier consumes out-of-band notifications. Notify must not block.
type Notifier interface {
    Notify(env protocol.Envelope)
}

// Correlator multiplexes requests over a fire-and-forget transport.
// One instance serves one channel; it is safe for concurrent use.
type Correlator struct {
    log            *zap.Logger
    clock          clockwork.Clock
    sender         Sender
    notifier       Notifier
    codecs         *codec.Registry
    metrics        *Metrics
    defaultTimeout time.Duration
    lateWindow     time.Duration
    settled        *ttlcache.Cache[uint64, string]

    mu      sync.Mutex
    nextID  uint64
    pending map[uint64]*pending
    closed  bool
}

// pending is the bookkeeping for one outstanding request.
type pending struct {
    call    *Call
    timer   clockwork.Timer
    stopCtx func() bool
    abort   context.CancelFunc // ends an in-flight send
}

func (p *pending) disarm() {
    if p.timer != nil { p.timer.Stop() }
    if p.stopCtx != nil { p.stopCtx() }
    if p.abort != nil { p.abort() }
}

// New creates a Correlator sending through s.
func New(s Sender, opts ...Option) *Correlator {
    c := &Correlator{
        log:            zap.L(),
        clock:          clockwork.NewRealClock(),
        sender:         s,
        codecs:         codec.NewRegistry(),
        metrics:        DefaultMetrics,
        defaultTimeout: DefaultTimeout,
        lateWindow:     DefaultLateWindow,
        pending:        make(map[uint64]*pending),
    }
    for _, o := range opts { o(c) }
    c.log = c.log.Named("correlator")
    if c.lateWindow > 0 {
        // no Start loop: expired entries are swept on every settlement
        c.settled = ttlcache.New[uint64, string](
            ttlcache.WithTTL[uint64, string](c.lateWindow),
            ttlcache.WithDisableTouchOnHit[uint64, string](),
        )
    }
    return c
}

// Request sends op with payload to the host and returns the handle that
// settles with the response. A non-positive timeout means the default.
//
// The returned error is only non-nil when no request was made (the
// Correlator is closed). Send failures settle the returned Call instead.
// Cancelling ctx before the call settles releases it with ErrCanceled; a
// ctx that is already done settles the call without sending anything.
//
// With a ContextSender, Request returns no later than the call settles,
// whatever the transport is doing.
func (c *Correlator) Request(ctx context.Context, op string, payload any, timeout time.Duration) (*Call, error) {
    if timeout <= 0 { timeout = c.defaultTimeout }
    if ctx == nil { ctx = context.Background() }

    c.mu.Lock()
    if c.closed {
        c.mu.Unlock()
        return nil, ErrClosed
    }
    c.nextID++
    id := c.nextID
    env := protocol.NewRequest(id, op, payload, c.clock.Now())
    p := &pending{call: newCall(id, op)}
    c.pending[id] = p
    // callbacks below take c.mu, so they cannot observe p before it is complete
    sendCtx, abort := context.WithCancel(ctx)
    p.abort = abort
    p.timer = c.clock.AfterFunc(timeout, func() { c.expire(id, op, timeout) })
    if ctx.Done() != nil {
        p.stopCtx = context.AfterFunc(ctx, func() {
            c.settle(id, nil, canceled(ctx, id), outcomeCanceled)
        })
    }
    c.metrics.Requests.Inc()
    c.metrics.Pending.Inc()
    c.mu.Unlock()
    defer abort()

    if ctx.Err() != nil {
        c.settle(id, nil, canceled(ctx, id), outcomeCanceled)
        return p.call, nil
    }
    c.log.Debug("request dispatched", zap.Uint64("id", id), zap.String("op", op), zap.Duration("timeout", timeout))

    var err error
    if cs, ok := c.sender.(ContextSender); ok {
        err = cs.SendContext(sendCtx, env)
    } else {
        err = c.sender.Send(env)
    }
    if err != nil {
        if !c.settle(id, nil, &SendError{ID: id, Err: err}, outcomeSend) {
            c.log.Debug("send abandoned after settlement", zap.Uint64("id", id), zap.Error(err))
            return p.call, nil
        }
        c.log.Warn("send failed", zap.Uint64("id", id), zap.String("op", op), zap.Error(err))
    }
    return p.call, nil
}

func canceled(ctx context.Context, id uint64) error {
    return fmt.Errorf("%w: request %d: %w", ErrCanceled, id, context.Cause(ctx))
}

// Do issues a request and waits for its outcome.
func (c *Correlator) Do(ctx context.Context, op string, payload any, timeout time.Duration) (any, error) {
    call, err := c.Request(ctx, op, payload, timeout)
    if err != nil { return nil, err }
    return call.Wait(ctx)
}

// Cancel releases a pending request early, settling it with ErrCanceled.
// It reports false if id is not pending.
func (c *Correlator) Cancel(id uint64) bool {
    return c.settle(id, nil, fmt.Errorf("%w: request %d", ErrCanceled, id), outcomeCanceled)
}

// HandleInbound routes one message received from the host. It never panics
// and never returns an error: anything that cannot be attributed to a
// pending request is logged and dropped.
func (c *Correlator) HandleInbound(raw any) {
    env, err := protocol.Parse(c.codecs, raw)
    if err != nil {
        c.metrics.ParseFailures.Inc()
        c.log.Warn("discarding inbound message", zap.Error(err))
        return
    }
    switch env.Kind {
    case protocol.KindResponse:
        if env.IsSuccess() {
            c.resolve(env, env.Payload, nil, outcomeSuccess)
        } else {
            c.resolve(env, nil, newRemoteError(env), outcomeRemote)
        }
    case protocol.KindError:
        c.resolve(env, nil, newRemoteError(env), outcomeRemote)
    case protocol.KindNotification:
        c.notify(env)
    default:
        c.metrics.Discarded.WithLabelValues(discardKind).Inc()
        c.log.Debug("discarding message of unhandled kind", zap.String("kind", env.Kind), zap.Uint64("id", env.ID))
    }
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
    c.mu.Lock(); defer c.mu.Unlock()
    return len(c.pending)
}

// Close settles every outstanding request with ErrClosed and rejects new
// ones. It is safe to call more than once.
func (c *Correlator) Close() {
    c.mu.Lock()
    if c.closed {
        c.mu.Unlock()
        return
    }
    c.closed = true
    drained := c.pending
    c.pending = make(map[uint64]*pending)
    c.mu.Unlock()

    for id, p := range drained {
        p.disarm()
        c.finish(id, p, nil, fmt.Errorf("%w: request %d", ErrClosed, id), outcomeClosed)
    }
    if len(drained) > 0 {
        c.log.Info("closed with outstanding requests", zap.Int("count", len(drained)))
    }
}

func (c *Correlator) resolve(env protocol.Envelope, val any, err error, outcome string) {
    if c.settle(env.ID, val, err, outcome) { return }
    reason := discardUnknown
    if c.wasSettled(env.ID) { reason = discardLate }
    c.metrics.Discarded.WithLabelValues(reason).Inc()
    c.log.Debug("discarding unmatched message", zap.Uint64("id", env.ID), zap.String("kind", env.Kind), zap.String("reason", reason))
}

func (c *Correlator) expire(id uint64, op string, after time.Duration) {
    if !c.settle(id, nil, &TimeoutError{ID: id, Op: op, After: after}, outcomeTimeout) {
        c.log.Debug("deadline fired after settlement", zap.Uint64("id", id))
        return
    }
    c.log.Warn("request timed out", zap.Uint64("id", id), zap.String("op", op), zap.Duration("after", after))
}

// settle is the single arbitration point: whoever removes id from the
// pending set settles it. It reports whether this caller won.
func (c *Correlator) settle(id uint64, val any, err error, outcome string) bool {
    c.mu.Lock()
    p, ok := c.pending[id]
    if ok { delete(c.pending, id) }
    c.mu.Unlock()
    if !ok { return false }
    p.disarm()
    c.finish(id, p, val, err, outcome)
    return true
}

func (c *Correlator) finish(id uint64, p *pending, val any, err error, outcome string) {
    if c.settled != nil {
        c.settled.DeleteExpired()
        c.settled.Set(id, outcome, ttlcache.DefaultTTL)
    }
    c.metrics.Pending.Dec()
    c.metrics.Settled.WithLabelValues(outcome).Inc()
    p.call.settle(val, err)
}

func (c *Correlator) wasSettled(id uint64) bool {
    if c.settled == nil { return false }
    return c.settled.Get(id) != nil
}

func (c *Correlator) notify(env protocol.Envelope) {
    c.metrics.Notifications.Inc()
    if c.notifier == nil {
        c.log.Debug("notification dropped, no sink", zap.Any("data", env.Payload))
        return
    }
    defer func() {
        if r := recover(); r != nil {
            c.log.Error("notification sink panicked", zap.Any("panic", r))
        }
    }()
    c.notifier.Notify(env)
}

// Stats is a point-in-time view of a Correlator.
type Stats struct {
    Pending int
    Issued  uint64
    Closed  bool
}

func (c *Correlator) Stats() Stats {
    c.mu.Lock(); defer c.mu.Unlock()
    return Stats{Pending: len(c.pending), Issued: c.nextID, Closed: c.closed}
}
