package netstack

import (
    "context"

    "go.uber.org/zap"

    "hostbridge/pkg/transport"
)

// SessionHandler takes ownership of an accepted session.
type SessionHandler func(ctx context.Context, s transport.Session)

// Serve accepts sessions from l and hands each to handle on its own
// goroutine. It returns when ctx ends or the listener fails.
func Serve(ctx context.Context, l transport.Listener, handle SessionHandler) error {
    for {
        s, err := l.Accept(ctx)
        if err != nil {
            select {
            case <-ctx.Done():
                return nil
            default:
            }
            zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
            return err
        }
        peer := s.Peer()
        zap.L().Info("inbound session", zap.String("peer", string(peer.ID)), zap.String("kind", s.TransportKind().String()), zap.Stringer("raddr", s.RemoteAddr()))
        go handle(ctx, s)
    }
}
