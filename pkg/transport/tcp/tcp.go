// Package tcp carries length-prefixed frames over plain TCP connections.
package tcp

import (
    "context"
    "errors"
    "net"
    "sync"

    "go.uber.org/zap"

    "hostbridge/pkg/transport"
)

var ErrClosed = errors.New("tcp listener closed")

// Transport implements a stream-based TCP transport with u32 LE length-prefixed frames.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    var lc net.ListenConfig
    l, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    tl := &listener{l: l, newCh: make(chan *transport.ConnSession, 8), closeCh: make(chan struct{})}
    go tl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = tl.Close()
        case <-tl.closeCh:
        }
    }()
    return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    d := &net.Dialer{}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    if peer.Addr == "" { peer.Addr = address }
    if peer.ID == "" { peer.ID = transport.TempPeerID(transport.KindTCP, c.RemoteAddr()) }
    return transport.NewConnSession(transport.KindTCP, peer, c), nil
}

type listener struct {
    l       net.Listener
    newCh   chan *transport.ConnSession
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, ErrClosed
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    var err error
    l.once.Do(func() {
        close(l.closeCh)
        err = l.l.Close()
    })
    return err
}

func (l *listener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil { return }
        s := transport.NewConnSession(transport.KindTCP, transport.PeerInfo{
            ID:   transport.TempPeerID(transport.KindTCP, c.RemoteAddr()),
            Addr: c.RemoteAddr().String(),
        }, c)
        select {
        case l.newCh <- s:
        default:
            zap.L().Warn("tcp accept backlog full, dropping connection", zap.Stringer("remote", c.RemoteAddr()))
            _ = s.Close()
        }
    }
}
