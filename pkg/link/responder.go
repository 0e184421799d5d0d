package link

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "hostbridge/pkg/protocol"
)

// Handler serves one request op. A nil error answers with a successful
// response carrying the returned value.
type Handler func(ctx context.Context, req protocol.Envelope) (any, error)

// Reject makes a handler answer with an error envelope instead of a
// success=false response.
type Reject struct {
    Reason any
}

func (r *Reject) Error() string { return fmt.Sprint(r.Reason) }

// Failure makes a handler answer with success=false and Data as the
// payload. Plain errors are sent as their message.
type Failure struct {
    Data any
}

func (f *Failure) Error() string { return fmt.Sprint(f.Data) }

// Responder is the host side of a link. It answers each request envelope
// exactly once, on its own goroutine, with the id it arrived with.
type Responder struct {
    link  *Link
    clock clockwork.Clock
    log   *zap.Logger

    mu       sync.RWMutex
    handlers map[string]Handler
    wg       sync.WaitGroup
}

func NewResponder(l *Link) *Responder {
    return &Responder{
        link:     l,
        clock:    clockwork.NewRealClock(),
        log:      l.log.Named("responder"),
        handlers: make(map[string]Handler),
    }
}

// Handle registers h for op, replacing any previous handler.
func (r *Responder) Handle(op string, h Handler) {
    r.mu.Lock(); defer r.mu.Unlock()
    r.handlers[op] = h
}

// Ops lists the registered operations.
func (r *Responder) Ops() []string {
    r.mu.RLock(); defer r.mu.RUnlock()
    out := make([]string, 0, len(r.handlers))
    for op := range r.handlers { out = append(out, op) }
    return out
}

// Serve runs until the link closes or ctx ends, then waits for in-flight
// handlers. Handlers see a context that ends with Serve.
func (r *Responder) Serve(ctx context.Context) error {
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    err := r.link.Run(ctx, func(b []byte) { r.dispatch(ctx, b) })
    cancel()
    r.wg.Wait()
    return err
}

// Notify pushes an out-of-band notification to the client.
func (r *Responder) Notify(data any) error {
    return r.link.Send(protocol.NewNotification(data, r.clock.Now()))
}

func (r *Responder) dispatch(ctx context.Context, frame []byte) {
    env, err := protocol.Parse(r.link.codecs, frame)
    if err != nil {
        r.log.Warn("discarding inbound message", zap.Error(err))
        return
    }
    if env.Kind != protocol.KindRequest {
        r.log.Debug("ignoring non-request", zap.String("kind", env.Kind), zap.Uint64("id", env.ID))
        return
    }
    if env.ID == 0 {
        r.log.Warn("request without id", zap.String("op", env.Op))
        return
    }
    r.mu.RLock(); h := r.handlers[env.Op]; r.mu.RUnlock()
    if h == nil {
        r.reply(ctx, protocol.NewError(env.ID, fmt.Sprintf("unknown op: %q", env.Op), r.clock.Now()))
        return
    }
    r.wg.Add(1)
    go func() {
        defer r.wg.Done()
        r.reply(ctx, r.invoke(ctx, h, env))
    }()
}

func (r *Responder) invoke(ctx context.Context, h Handler, req protocol.Envelope) (resp protocol.Envelope) {
    defer func() {
        if p := recover(); p != nil {
            r.log.Error("handler panicked", zap.String("op", req.Op), zap.Any("panic", p))
            resp = protocol.NewFailure(req.ID, fmt.Sprintf("%s: internal error", req.Op), r.clock.Now())
        }
    }()
    val, err := h(ctx, req)
    now := r.clock.Now()
    if err == nil { return protocol.NewResponse(req.ID, val, now) }

    var rej *Reject
    var fail *Failure
    switch {
    case errors.As(err, &rej):
        return protocol.NewError(req.ID, rej.Reason, now)
    case errors.As(err, &fail):
        return protocol.NewFailure(req.ID, fail.Data, now)
    default:
        return protocol.NewFailure(req.ID, err.Error(), now)
    }
}

// reply gives up when Serve ends, so a client that stopped reading cannot
// hold Serve open.
func (r *Responder) reply(ctx context.Context, env protocol.Envelope) {
    if err := r.link.SendContext(ctx, env); err != nil {
        r.log.Warn("reply failed", zap.Uint64("id", env.ID), zap.String("kind", env.Kind), zap.Error(err))
    }
}
