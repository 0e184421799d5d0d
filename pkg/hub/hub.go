// Package hub keeps one Correlator per connected host. When two sessions to
// the same peer race (a reconnect, or dialing over two transports) the
// canonical-session policy picks one and the loser is closed, which settles
// its pending requests with correlator.ErrClosed.
package hub

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"
    "time"

    "go.uber.org/zap"

    "hostbridge/pkg/correlator"
    "hostbridge/pkg/link"
    "hostbridge/pkg/transport"
)

var (
    ErrNoPeer = errors.New("hub: no session for peer")
    ErrClosed = errors.New("hub: closed")
)

// Manager keeps at most one canonical bound session per peer.
type Manager struct {
    log      *zap.Logger
    linkOpts []link.Option
    corrOpts []correlator.Option
    grace    time.Duration

    mu     sync.RWMutex
    peers  map[transport.PeerID]*peerEntry
    closed bool
}

type peerEntry struct {
    session   transport.Session
    fallbacks []transport.Session
    client    *link.Client
}

func (e *peerEntry) closeSessions() {
    _ = e.session.Close()
    for _, s := range e.fallbacks { _ = s.Close() }
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
    return func(m *Manager) { if l != nil { m.log = l } }
}

// WithLinkOptions applies to the Link built for every session.
func WithLinkOptions(opts ...link.Option) Option {
    return func(m *Manager) { m.linkOpts = append(m.linkOpts, opts...) }
}

// WithCorrelatorOptions applies to the Correlator built for every session.
func WithCorrelatorOptions(opts ...correlator.Option) Option {
    return func(m *Manager) { m.corrOpts = append(m.corrOpts, opts...) }
}

// WithGrace sets how long a replaced session keeps answering in-flight
// requests before it is closed.
func WithGrace(d time.Duration) Option {
    return func(m *Manager) { m.grace = d }
}

func NewManager(opts ...Option) *Manager {
    m := &Manager{log: zap.L(), grace: 500 * time.Millisecond, peers: make(map[transport.PeerID]*peerEntry)}
    for _, o := range opts { o(m) }
    m.log = m.log.Named("hub")
    return m
}

// AddSession binds a Link and Correlator to s and applies the selection
// policy. If the session loses the election it is closed and (false, false)
// is returned. If it becomes canonical and replaced an existing one, the old
// one is closed after the grace period and (true, true) is returned.
//
// Fallbacks are further sessions to the same host. Requests go out on s
// while it takes them and on the fallbacks in order after that; responses
// are accepted from all of them. The election only looks at s.
func (m *Manager) AddSession(ctx context.Context, s transport.Session, fallbacks ...transport.Session) (accepted bool, replaced bool, err error) {
    l, err := m.newLink(ctx, s)
    if err != nil {
        _ = s.Close()
        for _, f := range fallbacks { _ = f.Close() }
        return false, false, err
    }
    links := []*link.Link{l}
    var kept []transport.Session
    for _, f := range fallbacks {
        fl, err := m.newLink(ctx, f)
        if err != nil {
            m.log.Warn("fallback session unusable", zap.String("peer", string(f.Peer().ID)), zap.Error(err))
            _ = f.Close()
            continue
        }
        links = append(links, fl)
        kept = append(kept, f)
    }
    pid := s.Peer().ID
    // the hub owns the binding; it must outlive the ctx used to set it up
    client := link.BindAll(context.WithoutCancel(ctx), links, m.corrOpts...)
    entry := &peerEntry{session: s, fallbacks: kept, client: client}

    m.mu.Lock()
    if m.closed {
        m.mu.Unlock()
        m.closeEntry(entry)
        return false, false, ErrClosed
    }
    cur := m.peers[pid]
    switch {
    case cur == nil:
        m.peers[pid] = entry
    case better(s, cur.session):
        m.peers[pid] = entry
        replaced = true
    default:
        m.mu.Unlock()
        m.log.Info("session lost election", zap.String("peer", string(pid)), zap.String("kind", s.TransportKind().String()))
        m.closeEntry(entry)
        return false, false, nil
    }
    m.mu.Unlock()

    if replaced {
        m.log.Info("session replaced", zap.String("peer", string(pid)), zap.String("kind", s.TransportKind().String()))
        go m.retire(ctx, cur)
    } else {
        m.log.Info("session added", zap.String("peer", string(pid)), zap.String("kind", s.TransportKind().String()))
    }
    go m.watch(entry)
    return true, replaced, nil
}

func (m *Manager) newLink(ctx context.Context, s transport.Session) (*link.Link, error) {
    st, err := s.OpenStream(ctx)
    if err != nil { return nil, fmt.Errorf("hub: open stream: %w", err) }
    return link.New(st, m.linkOpts...)
}

// retire soft-closes a replaced session after the grace period.
func (m *Manager) retire(ctx context.Context, old *peerEntry) {
    t := time.NewTimer(m.grace)
    defer t.Stop()
    select {
    case <-ctx.Done():
    case <-t.C:
    }
    m.closeEntry(old)
}

// watch drops the entry once its read loop ends, unless it was replaced.
func (m *Manager) watch(e *peerEntry) {
    <-e.client.Done()
    pid := e.session.Peer().ID
    m.mu.Lock()
    for id, cur := range m.peers {
        if cur == e { delete(m.peers, id); pid = id }
    }
    m.mu.Unlock()
    if err := e.client.Err(); err != nil {
        m.log.Warn("peer link ended", zap.String("peer", string(pid)), zap.Error(err))
    }
    e.closeSessions()
}

func (m *Manager) closeEntry(e *peerEntry) {
    _ = e.client.Close()
    e.closeSessions()
}

// Client returns the bound client for a peer, or nil.
func (m *Manager) Client(id transport.PeerID) *link.Client {
    m.mu.RLock(); defer m.mu.RUnlock()
    if pe := m.peers[id]; pe != nil { return pe.client }
    return nil
}

// Correlator returns the Correlator serving a peer, or nil.
func (m *Manager) Correlator(id transport.PeerID) *correlator.Correlator {
    if c := m.Client(id); c != nil { return c.Correlator }
    return nil
}

// Session returns the canonical session for a peer, or nil.
func (m *Manager) Session(id transport.PeerID) transport.Session {
    m.mu.RLock(); defer m.mu.RUnlock()
    if pe := m.peers[id]; pe != nil { return pe.session }
    return nil
}

// Request issues a request to a peer through its canonical Correlator.
func (m *Manager) Request(ctx context.Context, id transport.PeerID, op string, payload any, timeout time.Duration) (*correlator.Call, error) {
    c := m.Correlator(id)
    if c == nil { return nil, fmt.Errorf("%w: %s", ErrNoPeer, id) }
    return c.Request(ctx, op, payload, timeout)
}

// ClosePeer closes the canonical session for a peer and forgets it.
func (m *Manager) ClosePeer(id transport.PeerID) {
    m.mu.Lock()
    pe := m.peers[id]
    delete(m.peers, id)
    m.mu.Unlock()
    if pe != nil { m.closeEntry(pe) }
}

// ListPeers returns all known peer IDs.
func (m *Manager) ListPeers() []transport.PeerID {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := make([]transport.PeerID, 0, len(m.peers))
    for id := range m.peers { out = append(out, id) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// RebindPeer moves the canonical session from oldID to newID once the host
// has named itself. If newID already has a session the policy decides which
// one stays; the loser is closed. Returns true if newID now maps to the
// moved session.
func (m *Manager) RebindPeer(oldID, newID transport.PeerID) bool {
    if oldID == newID || newID == "" { return false }
    m.mu.Lock()
    src := m.peers[oldID]
    if src == nil {
        m.mu.Unlock()
        return false
    }
    delete(m.peers, oldID)
    if mp, ok := src.session.(transport.MutablePeer); ok {
        pi := src.session.Peer(); pi.ID = newID; mp.SetPeer(pi)
    }
    dst := m.peers[newID]
    if dst == nil || better(src.session, dst.session) {
        m.peers[newID] = src
        m.mu.Unlock()
        if dst != nil { go m.closeEntry(dst) }
        return true
    }
    m.mu.Unlock()
    go m.closeEntry(src)
    return false
}

// Close closes every session and rejects new ones.
func (m *Manager) Close() {
    m.mu.Lock()
    m.closed = true
    peers := m.peers
    m.peers = make(map[transport.PeerID]*peerEntry)
    m.mu.Unlock()
    for _, pe := range peers { m.closeEntry(pe) }
}

// Preference order across kinds; higher is better.
func baseRank(k transport.Kind) int {
    switch k {
    case transport.KindMem:
        return 120
    case transport.KindQUIC:
        return 100
    case transport.KindTCP:
        return 90
    case transport.KindWS:
        return 80
    default:
        return 0
    }
}

// better decides whether a should replace b as canonical.
func better(a, b transport.Session) bool {
    ra := baseRank(a.TransportKind())
    rb := baseRank(b.TransportKind())
    if ra != rb { return ra > rb }

    qa := a.Quality()
    qb := b.Quality()
    // Prefer smaller RTT
    if qa.RTT != qb.RTT { return qa.RTT < qb.RTT }
    // Fallback to newer establishment (reduces split-brain on reconnect races)
    return qa.EstablishedAt.After(qb.EstablishedAt)
}
