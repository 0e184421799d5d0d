package transport

import (
    "context"
    "fmt"
    "net"
    "strings"
    "time"
)

// Kind identifies the link type, used for config and canonical-session policy.
type Kind int

const (
    KindUnknown Kind = iota
    KindMem
    KindTCP
    KindQUIC
    KindWS
)

func (k Kind) String() string {
    switch k {
    case KindMem:
        return "mem"
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    case KindWS:
        return "ws"
    default:
        return "unknown"
    }
}

// ParseKind maps a config value to a Kind.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "mem":
        return KindMem, nil
    case "tcp":
        return KindTCP, nil
    case "quic":
        return KindQUIC, nil
    case "ws", "websocket":
        return KindWS, nil
    default:
        return KindUnknown, fmt.Errorf("unknown transport kind: %q", s)
    }
}

// PeerID is an opaque peer identity. Until a host names itself it is the
// temporary id built by TempPeerID.
type PeerID string

// PeerInfo bundles peer identity and addressing hints.
type PeerInfo struct {
    ID   PeerID
    Addr string // transport-dependent address string
}

// Quality captures link facts used by the hub to rank sessions.
type Quality struct {
    RTT           time.Duration
    EstablishedAt time.Time
    LastSeen      time.Time
}

// Stream is a bidirectional frame stream.
// Exactly one reader and any number of writers are expected.
type Stream interface {
    // SendBytes sends one frame as opaque bytes.
    SendBytes([]byte) error
    // RecvBytes blocks for the next frame.
    RecvBytes() ([]byte, error)
    Close() error
}

// ContextStream is a Stream whose writes can be abandoned. SendBytesContext
// returns ctx's error once ctx ends before the frame is written.
type ContextStream interface {
    Stream
    SendBytesContext(ctx context.Context, b []byte) error
}

// SendContext writes b through SendBytesContext when s supports it.
func SendContext(ctx context.Context, s Stream, b []byte) error {
    if cs, ok := s.(ContextStream); ok { return cs.SendBytesContext(ctx, b) }
    return s.SendBytes(b)
}

// Session represents a connection to a peer.
type Session interface {
    Peer() PeerInfo
    TransportKind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr

    // OpenStream returns the session's control stream, creating it on first use.
    OpenStream(ctx context.Context) (Stream, error)

    // AcceptStream waits for the control stream opened by the remote side. For
    // transports without native streams it returns the same stream as OpenStream.
    AcceptStream(ctx context.Context) (Stream, error)

    Quality() Quality

    // Close closes the entire session.
    Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
    Kind() Kind
    // Listen starts accepting inbound sessions on address (transport-specific format).
    Listen(ctx context.Context, address string) (Listener, error)
    // Dial creates an outbound session. ctx bounds the dial only.
    Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}

// MutablePeer is implemented by sessions whose identity can be replaced once
// the remote side names itself.
type MutablePeer interface {
    SetPeer(PeerInfo)
}

// TempPeerID builds a peer id from transport kind and remote address.
func TempPeerID(kind Kind, addr net.Addr) PeerID {
    if addr == nil { return PeerID(fmt.Sprintf("temp:%s:unknown", kind)) }
    return PeerID(fmt.Sprintf("temp:%s:%s", kind, addr.String()))
}
