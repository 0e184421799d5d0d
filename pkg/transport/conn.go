package transport

import (
    "context"
    "net"
    "sync"
    "time"
)

// ConnSession adapts a net.Conn to a Session with one framed stream. Stream
// transports without native multiplexing (mem, tcp) use it.
type ConnSession struct {
    mu            sync.Mutex
    peer          PeerInfo
    kind          Kind
    c             net.Conn
    stream        *FrameStream
    establishedAt time.Time
}

func NewConnSession(kind Kind, peer PeerInfo, c net.Conn) *ConnSession {
    return &ConnSession{peer: peer, kind: kind, c: c, stream: NewFrameStream(c), establishedAt: time.Now()}
}

func (s *ConnSession) Peer() PeerInfo {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.peer
}

func (s *ConnSession) SetPeer(pi PeerInfo) {
    s.mu.Lock(); defer s.mu.Unlock()
    s.peer = pi
}

func (s *ConnSession) TransportKind() Kind { return s.kind }
func (s *ConnSession) LocalAddr() net.Addr { return s.c.LocalAddr() }
func (s *ConnSession) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func (s *ConnSession) OpenStream(_ context.Context) (Stream, error) { return s.stream, nil }
func (s *ConnSession) AcceptStream(_ context.Context) (Stream, error) { return s.stream, nil }

func (s *ConnSession) Quality() Quality {
    return Quality{EstablishedAt: s.establishedAt, LastSeen: s.stream.LastSeen()}
}

func (s *ConnSession) Close() error { return s.c.Close() }

var (
    _ Session       = (*ConnSession)(nil)
    _ MutablePeer   = (*ConnSession)(nil)
    _ ContextStream = (*FrameStream)(nil)
)
