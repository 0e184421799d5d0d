// Package refhost is a reference host: the process on the other side of the
// channel. It answers a small set of operations and pushes progress
// notifications, enough to drive a client end to end.
package refhost

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "go.uber.org/zap"

    "hostbridge/pkg/link"
    "hostbridge/pkg/netstack"
    "hostbridge/pkg/protocol"
    "hostbridge/pkg/transport"
)

// Host serves the reference operations on every accepted session.
type Host struct {
    Name     string
    LinkOpts []link.Option
    log      *zap.Logger
}

func New(name string, opts ...link.Option) *Host {
    return &Host{Name: name, LinkOpts: opts, log: zap.L().Named("refhost")}
}

// Serve accepts sessions from l until ctx ends.
func (h *Host) Serve(ctx context.Context, l transport.Listener) error {
    return netstack.Serve(ctx, l, h.handleSession)
}

func (h *Host) handleSession(ctx context.Context, s transport.Session) {
    defer s.Close()
    peer := string(s.Peer().ID)
    st, err := s.AcceptStream(ctx)
    if err != nil {
        h.log.Warn("accept stream failed", zap.String("peer", peer), zap.Error(err))
        return
    }
    lk, err := link.New(st, h.LinkOpts...)
    if err != nil {
        h.log.Error("link setup failed", zap.Error(err))
        return
    }
    r := link.NewResponder(lk)
    h.Register(r)
    h.log.Info("client connected", zap.String("peer", peer))
    if err := r.Serve(ctx); err != nil {
        h.log.Warn("session ended", zap.String("peer", peer), zap.Error(err))
        return
    }
    h.log.Info("client disconnected", zap.String("peer", peer))
}

// Register installs the reference operations on r.
func (h *Host) Register(r *link.Responder) {
    r.Handle("ping", func(context.Context, protocol.Envelope) (any, error) { return "pong", nil })
    r.Handle("echo", func(_ context.Context, req protocol.Envelope) (any, error) { return req.Payload, nil })
    r.Handle("info", func(context.Context, protocol.Envelope) (any, error) {
        return map[string]any{"name": h.Name, "ops": r.Ops()}, nil
    })
    r.Handle("sleep", func(ctx context.Context, req protocol.Envelope) (any, error) {
        var args struct {
            MS int `json:"ms"`
        }
        if err := decodeArgs(req.Payload, &args); err != nil { return nil, &link.Reject{Reason: err.Error()} }
        t := time.NewTimer(time.Duration(args.MS) * time.Millisecond)
        defer t.Stop()
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-t.C:
            return map[string]any{"slept_ms": args.MS}, nil
        }
    })
    r.Handle("fail", func(_ context.Context, req protocol.Envelope) (any, error) {
        // an empty reason exercises the client's generic failure message
        return nil, &link.Failure{Data: req.Payload}
    })
    r.Handle("reject", func(_ context.Context, req protocol.Envelope) (any, error) {
        return nil, &link.Reject{Reason: req.Payload}
    })
    r.Handle("generate", func(ctx context.Context, req protocol.Envelope) (any, error) {
        args := struct {
            Steps      int `json:"steps"`
            IntervalMS int `json:"interval_ms"`
        }{Steps: 3}
        if err := decodeArgs(req.Payload, &args); err != nil { return nil, &link.Reject{Reason: err.Error()} }
        for i := 1; i <= args.Steps; i++ {
            if args.IntervalMS > 0 {
                select {
                case <-ctx.Done():
                    return nil, ctx.Err()
                case <-time.After(time.Duration(args.IntervalMS) * time.Millisecond):
                }
            }
            if err := r.Notify(map[string]any{"request": req.ID, "step": i, "of": args.Steps}); err != nil {
                return nil, fmt.Errorf("progress: %w", err)
            }
        }
        return map[string]any{"steps": args.Steps}, nil
    })
}

func decodeArgs(payload any, v any) error {
    if payload == nil { return nil }
    b, err := json.Marshal(payload)
    if err != nil { return err }
    if err := json.Unmarshal(b, v); err != nil { return fmt.Errorf("bad arguments: %w", err) }
    return nil
}
