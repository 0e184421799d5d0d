// Package quic runs the frame protocol over a single bidirectional QUIC
// stream per connection.
package quic

import (
    "context"
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "crypto/x509/pkix"
    "errors"
    "fmt"
    "io"
    "math/big"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "hostbridge/pkg/transport"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "hostbridge"

// streamPreamble is written by the opener so the remote side sees the stream
// before the first real frame.
const streamPreamble byte = 0x00

var ErrClosed = errors.New("quic listener closed")

// Transport implements QUIC-based sessions. Each session exposes one control
// stream: opened by the dialer, accepted by the listener.
type Transport struct {
    tlsConf  *tls.Config
    quicConf *quicgo.Config
}

// New generates an ephemeral self-signed certificate for the listening side.
func New() (*Transport, error) {
    cert, err := selfSignedCert()
    if err != nil { return nil, fmt.Errorf("quic: certificate: %w", err) }
    tlsConf := &tls.Config{
        Certificates: []tls.Certificate{cert},
        NextProtos:   []string{ALPN},
        MinVersion:   tls.VersionTLS13,
    }
    return &Transport{tlsConf: tlsConf, quicConf: &quicgo.Config{KeepAlivePeriod: 10 * time.Second}}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
    if err != nil { return nil, err }
    ql := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    go ql.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = ql.Close()
        case <-ql.closeCh:
        }
    }()
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
    // The host is local and unauthenticated; identity is out of scope here.
    tlsClient := &tls.Config{
        InsecureSkipVerify: true,
        NextProtos:         []string{ALPN},
        MinVersion:         tls.VersionTLS13,
    }
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil { return nil, err }
    if peer.Addr == "" { peer.Addr = address }
    if peer.ID == "" { peer.ID = transport.TempPeerID(transport.KindQUIC, c.RemoteAddr()) }
    return newSession(peer, c, false), nil
}

// ---- Listener ----

type listener struct {
    l       *quicgo.Listener
    newCh   chan *session
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
        c, err := l.l.Accept(context.Background())
        if err != nil { return }
        peer := transport.PeerInfo{ID: transport.TempPeerID(transport.KindQUIC, c.RemoteAddr()), Addr: c.RemoteAddr().String()}
        s := newSession(peer, c, true)
        select {
        case l.newCh <- s:
        default:
            zap.L().Warn("quic accept backlog full, dropping connection", zap.Stringer("remote", c.RemoteAddr()))
            _ = s.Close()
        }
    }
}

// ---- Session ----

type session struct {
    openMu        sync.Mutex
    mu            sync.Mutex
    peer          transport.PeerInfo
    c             quicgo.Connection
    inbound       bool
    establishedAt time.Time
    ctrl          *transport.FrameStream
}

func newSession(peer transport.PeerInfo, c quicgo.Connection, inbound bool) *session {
    return &session{peer: peer, c: c, inbound: inbound, establishedAt: time.Now()}
}

func (s *session) Peer() transport.PeerInfo {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.peer
}

func (s *session) SetPeer(pi transport.PeerInfo) {
    s.mu.Lock(); defer s.mu.Unlock()
    s.peer = pi
}

func (s *session) TransportKind() transport.Kind { return transport.KindQUIC }
func (s *session) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

// OpenStream returns the control stream. Inbound sessions accept it from the
// dialer, outbound sessions open it.
func (s *session) OpenStream(ctx context.Context) (transport.Stream, error) {
    s.openMu.Lock(); defer s.openMu.Unlock()
    s.mu.Lock(); ctrl := s.ctrl; s.mu.Unlock()
    if ctrl != nil { return ctrl, nil }
    var (
        st  *transport.FrameStream
        err error
    )
    if s.inbound {
        st, err = s.accept(ctx)
    } else {
        st, err = s.open(ctx)
    }
    if err != nil { return nil, err }
    s.mu.Lock(); s.ctrl = st; s.mu.Unlock()
    return st, nil
}

func (s *session) AcceptStream(ctx context.Context) (transport.Stream, error) { return s.OpenStream(ctx) }

func (s *session) open(ctx context.Context) (*transport.FrameStream, error) {
    qs, err := s.c.OpenStreamSync(ctx)
    if err != nil { return nil, err }
    if _, err := qs.Write([]byte{streamPreamble}); err != nil {
        _ = closeBoth(qs)
        return nil, err
    }
    return transport.NewFrameStream(fullCloser{qs}), nil
}

func (s *session) accept(ctx context.Context) (*transport.FrameStream, error) {
    qs, err := s.c.AcceptStream(ctx)
    if err != nil { return nil, err }
    var pre [1]byte
    if _, err := io.ReadFull(qs, pre[:]); err != nil { return nil, err }
    if pre[0] != streamPreamble { return nil, fmt.Errorf("quic: unexpected stream preamble %#x", pre[0]) }
    return transport.NewFrameStream(fullCloser{qs}), nil
}

// fullCloser makes Close end both directions; a quic Stream's own Close only
// finishes the send side, which would leave a blocked reader hanging.
type fullCloser struct {
    quicgo.Stream
}

func (f fullCloser) Close() error { return closeBoth(f.Stream) }

func closeBoth(qs quicgo.Stream) error {
    qs.CancelRead(0)
    return qs.Close()
}

func (s *session) Quality() transport.Quality {
    q := transport.Quality{EstablishedAt: s.establishedAt}
    s.mu.Lock()
    if s.ctrl != nil { q.LastSeen = s.ctrl.LastSeen() }
    s.mu.Unlock()
    return q
}

func (s *session) Close() error { return s.c.CloseWithError(0, "") }

// ---- Helpers ----

// selfSignedCert generates a short-lived self-signed certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        Subject:               pkix.Name{CommonName: ALPN},
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
        IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

var (
    _ transport.Transport   = (*Transport)(nil)
    _ transport.MutablePeer = (*session)(nil)
)
