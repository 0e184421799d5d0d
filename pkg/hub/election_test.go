package hub

import (
    "context"
    "net"
    "testing"
    "time"

    "hostbridge/pkg/transport"
)

type stubSession struct {
    kind transport.Kind
    q    transport.Quality
}

func (s stubSession) Peer() transport.PeerInfo       { return transport.PeerInfo{ID: "p"} }
func (s stubSession) TransportKind() transport.Kind  { return s.kind }
func (s stubSession) LocalAddr() net.Addr            { return nil }
func (s stubSession) RemoteAddr() net.Addr           { return nil }
func (s stubSession) Quality() transport.Quality     { return s.q }
func (s stubSession) Close() error                   { return nil }
func (s stubSession) OpenStream(context.Context) (transport.Stream, error)   { return nil, nil }
func (s stubSession) AcceptStream(context.Context) (transport.Stream, error) { return nil, nil }

func TestBetter(t *testing.T) {
    now := time.Now()
    quic := stubSession{kind: transport.KindQUIC, q: transport.Quality{EstablishedAt: now}}
    tcp := stubSession{kind: transport.KindTCP, q: transport.Quality{EstablishedAt: now.Add(time.Second)}}
    if !better(quic, tcp) || better(tcp, quic) { t.Fatalf("quic must outrank tcp regardless of age") }
    ws := stubSession{kind: transport.KindWS, q: transport.Quality{RTT: time.Microsecond, EstablishedAt: now.Add(time.Second)}}
    if !better(tcp, ws) { t.Fatalf("tcp must outrank ws regardless of rtt") }

    fast := stubSession{kind: transport.KindTCP, q: transport.Quality{RTT: time.Millisecond, EstablishedAt: now}}
    slow := stubSession{kind: transport.KindTCP, q: transport.Quality{RTT: 5 * time.Millisecond, EstablishedAt: now.Add(time.Second)}}
    if !better(fast, slow) { t.Fatalf("lower rtt must win") }

    older := stubSession{kind: transport.KindTCP, q: transport.Quality{EstablishedAt: now}}
    newer := stubSession{kind: transport.KindTCP, q: transport.Quality{EstablishedAt: now.Add(time.Millisecond)}}
    if !better(newer, older) || better(older, newer) { t.Fatalf("newer session must win a tie") }
}
