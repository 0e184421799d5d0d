// Package mem is an in-process transport over net.Pipe. The CLI and tests use
// it to run a host and a client inside one process.
package mem

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "sync/atomic"

    "hostbridge/pkg/transport"
)

var (
    ErrListenerExists = errors.New("mem: listener already exists")
    ErrNoListener     = errors.New("mem: no such listener")
    ErrClosed         = errors.New("mem: listener closed")
)

// Transport keeps named listeners. Dialers and listeners must share the same
// Transport instance.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
    seq       atomic.Uint64
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok { return nil, fmt.Errorf("%w: %s", ErrListenerExists, name) }
    l := &listener{name: name, newCh: make(chan *transport.ConnSession, 8), closeCh: make(chan struct{})}
    l.release = func() {
        t.mu.Lock()
        if t.listeners[name] == l { delete(t.listeners, name) }
        t.mu.Unlock()
    }
    t.listeners[name] = l
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.closeCh:
        }
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string, peer transport.PeerInfo) (transport.Session, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, fmt.Errorf("%w: %s", ErrNoListener, name) }
    c1, c2 := net.Pipe()
    if peer.ID == "" { peer.ID = transport.TempPeerID(transport.KindMem, memAddr(name)) }
    peer.Addr = name
    remote := memAddr(fmt.Sprintf("%s#%d", name, t.seq.Add(1)))
    srv := transport.NewConnSession(transport.KindMem, transport.PeerInfo{ID: transport.TempPeerID(transport.KindMem, remote), Addr: remote.String()}, c1)
    cli := transport.NewConnSession(transport.KindMem, peer, c2)
    select {
    case l.newCh <- srv:
        return cli, nil
    case <-l.closeCh:
    case <-ctx.Done():
    }
    _ = c1.Close(); _ = c2.Close()
    if err := ctx.Err(); err != nil { return nil, err }
    return nil, ErrClosed
}

type listener struct {
    name    string
    newCh   chan *transport.ConnSession
    closeCh chan struct{}
    once    sync.Once
    release func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

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
    l.once.Do(func() {
        close(l.closeCh)
        l.release()
    })
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
