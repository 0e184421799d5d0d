// Package ws carries frames as WebSocket messages. Plugin panels that can
// only open WebSockets reach the host through it.
package ws

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "go.uber.org/zap"
    "nhooyr.io/websocket"

    "hostbridge/pkg/transport"
)

const (
    // Path is the HTTP path the listener upgrades on.
    Path = "/hostbridge"
    // Subprotocol is offered on dial and accepted on listen.
    Subprotocol = "hostbridge"
)

var ErrClosed = errors.New("ws listener closed")

// Transport implements a WebSocket transport. Each session carries exactly
// one stream; every frame is one message. JSON text frames travel as text
// messages, everything else as binary.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindWS }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    var lc net.ListenConfig
    ln, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    l := &listener{ln: ln, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    mux := http.NewServeMux()
    mux.Handle(Path, l)
    l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
    go func() {
        if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            zap.L().Warn("ws server stopped", zap.Error(err))
        }
    }()
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.closeCh:
        }
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    u := dialURL(address)
    c, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{Subprotocols: []string{Subprotocol}})
    if err != nil { return nil, fmt.Errorf("ws dial %s: %w", u, err) }
    remote := addr(u)
    if peer.Addr == "" { peer.Addr = address }
    if peer.ID == "" { peer.ID = transport.TempPeerID(transport.KindWS, remote) }
    return newSession(c, peer, addr("client"), remote), nil
}

// dialURL accepts either a full ws:// or wss:// URL or a bare host:port.
func dialURL(address string) string {
    if strings.Contains(address, "://") { return address }
    return "ws://" + address + Path
}

type addr string

func (a addr) Network() string { return "ws" }
func (a addr) String() string { return string(a) }

type listener struct {
    ln      net.Listener
    srv     *http.Server
    newCh   chan *session
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.ln.Addr() }

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
        err = l.srv.Close()
    })
    return err
}

func (l *listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
        Subprotocols: []string{Subprotocol},
        // plugin panels connect with host-specific origins
        InsecureSkipVerify: true,
    })
    if err != nil {
        zap.L().Debug("ws upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
        return
    }
    remote := addr(r.RemoteAddr)
    s := newSession(c, transport.PeerInfo{ID: transport.TempPeerID(transport.KindWS, remote), Addr: r.RemoteAddr}, l.ln.Addr(), remote)
    select {
    case l.newCh <- s:
    case <-l.closeCh:
        _ = s.Close()
        return
    default:
        zap.L().Warn("ws accept backlog full, dropping connection", zap.String("remote", r.RemoteAddr))
        _ = s.Close()
        return
    }
    // the connection is hijacked; hold the handler until the session ends
    <-s.ctx.Done()
}

// session is both the Session and its single Stream.
type session struct {
    mu            sync.Mutex
    peer          transport.PeerInfo
    c             *websocket.Conn
    local, remote net.Addr
    ctx           context.Context
    cancel        context.CancelFunc
    establishedAt time.Time
    lastSeen      atomic.Int64
    closeOnce     sync.Once
    closeErr      error
}

func newSession(c *websocket.Conn, peer transport.PeerInfo, local, remote net.Addr) *session {
    c.SetReadLimit(transport.MaxFrameSize)
    ctx, cancel := context.WithCancel(context.Background())
    return &session{peer: peer, c: c, local: local, remote: remote, ctx: ctx, cancel: cancel, establishedAt: time.Now()}
}

func (s *session) Peer() transport.PeerInfo {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.peer
}

func (s *session) SetPeer(pi transport.PeerInfo) {
    s.mu.Lock(); defer s.mu.Unlock()
    s.peer = pi
}

func (s *session) TransportKind() transport.Kind { return transport.KindWS }
func (s *session) LocalAddr() net.Addr           { return s.local }
func (s *session) RemoteAddr() net.Addr          { return s.remote }

func (s *session) OpenStream(context.Context) (transport.Stream, error)   { return s, nil }
func (s *session) AcceptStream(context.Context) (transport.Stream, error) { return s, nil }

func (s *session) Quality() transport.Quality {
    q := transport.Quality{EstablishedAt: s.establishedAt}
    if ns := s.lastSeen.Load(); ns > 0 { q.LastSeen = time.Unix(0, ns) }
    return q
}

func (s *session) SendBytes(b []byte) error { return s.SendBytesContext(context.Background(), b) }

// SendBytesContext writes one message. The library tears the connection
// down when ctx ends in the middle of a frame; a write still waiting for
// its turn returns without side effects.
func (s *session) SendBytesContext(ctx context.Context, b []byte) error {
    if len(b) > transport.MaxFrameSize { return fmt.Errorf("%w: %d bytes", transport.ErrFrameTooLarge, len(b)) }
    if err := ctx.Err(); err != nil { return err }
    wctx, cancel := context.WithCancel(ctx)
    defer cancel()
    stop := context.AfterFunc(s.ctx, cancel)
    defer stop()

    typ := websocket.MessageBinary
    if len(b) > 0 && b[0] == '{' { typ = websocket.MessageText }
    return s.c.Write(wctx, typ, b)
}

func (s *session) RecvBytes() ([]byte, error) {
    _, b, err := s.c.Read(s.ctx)
    if err != nil {
        if websocket.CloseStatus(err) != -1 { return nil, io.EOF }
        if s.ctx.Err() != nil { return nil, net.ErrClosed }
        return nil, err
    }
    s.lastSeen.Store(time.Now().UnixNano())
    return b, nil
}

func (s *session) Close() error {
    s.closeOnce.Do(func() {
        s.closeErr = s.c.Close(websocket.StatusNormalClosure, "")
        s.cancel()
    })
    return s.closeErr
}

var (
    _ transport.Session       = (*session)(nil)
    _ transport.ContextStream = (*session)(nil)
    _ transport.MutablePeer   = (*session)(nil)
)
