package main

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "hostbridge/pkg/config"
    "hostbridge/pkg/correlator"
    "hostbridge/pkg/hub"
    "hostbridge/pkg/link"
    "hostbridge/pkg/netstack"
    "hostbridge/pkg/notify"
    "hostbridge/pkg/observability"
    "hostbridge/pkg/transport"
)

type rootOptions struct {
    configPath string
    kind       string
    addr       string
    format     string
    logLevel   string
    fallback   []string
    timeout    time.Duration
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
    cfg, err := config.Load(o.configPath)
    if err != nil { return nil, err }
    if o.kind != "" { cfg.Link.Kind = o.kind }
    if o.addr != "" { cfg.Link.Dial = o.addr }
    if o.format != "" { cfg.Link.Format = o.format }
    if o.logLevel != "" { cfg.Log.Level = o.logLevel }
    if len(o.fallback) > 0 { cfg.Link.Fallback = o.fallback }
    // re-check overrides the same way the file was checked
    if err := cfg.Validate(); err != nil { return nil, err }
    return cfg, nil
}

// session is one connected host behind a hub.
type session struct {
    cfg     *config.Config
    hub     *hub.Manager
    peer    transport.PeerID
    timeout time.Duration
}

// dialTargets dials every configured target in preference order. The first
// session that comes up carries the configured peer id; targets that cannot
// be reached are skipped.
func dialTargets(ctx context.Context, cfg *config.Config) ([]transport.Session, error) {
    dialOpts := netstack.Options{
        BackoffInitial: cfg.Net.BackoffInitial(),
        BackoffMax:     cfg.Net.BackoffMax(),
        BackoffJitter:  cfg.Net.BackoffJitter(),
        Attempts:       cfg.Net.DialAttempts,
    }
    if dialOpts.Attempts == 0 { dialOpts.Attempts = 3 }
    var (
        sessions []transport.Session
        errs     []error
    )
    for _, tg := range cfg.Link.Targets() {
        tr, err := netstack.NewByKind(tg.Kind)
        if err != nil { errs = append(errs, err); continue }
        peer := transport.PeerInfo{Addr: tg.Addr}
        if len(sessions) == 0 { peer.ID = transport.PeerID(cfg.Link.PeerID) }
        sess, err := netstack.DialWithBackoff(ctx, tr, tg.Addr, peer, dialOpts)
        if err != nil {
            if ctx.Err() != nil { break }
            zap.L().Warn("link target unreachable", zap.String("kind", tg.Kind), zap.String("addr", tg.Addr), zap.Error(err))
            errs = append(errs, err)
            continue
        }
        sessions = append(sessions, sess)
    }
    if len(sessions) == 0 {
        if err := ctx.Err(); err != nil { errs = append(errs, err) }
        return nil, fmt.Errorf("no link target reachable: %w", errors.Join(errs...))
    }
    return sessions, nil
}

// connect dials the configured host and binds a Correlator to it. sink may be
// nil when notifications are not wanted.
func (o *rootOptions) connect(ctx context.Context, sink correlator.Notifier) (*session, error) {
    cfg, err := o.loadConfig()
    if err != nil { return nil, fmt.Errorf("config: %w", err) }
    if _, err := observability.SetupLogger(cfg.Log, cfg.AppName); err != nil { return nil, err }

    sessions, err := dialTargets(ctx, cfg)
    if err != nil { return nil, err }
    sess := sessions[0]

    corrOpts := []correlator.Option{
        correlator.WithDefaultTimeout(cfg.Correlator.DefaultTimeout()),
        correlator.WithLateWindow(cfg.Correlator.LateWindow()),
    }
    if sink != nil {
        corrOpts = append(corrOpts, correlator.WithNotifier(notify.NewRateLimited(sink, cfg.Notify.RatePerSec, cfg.Notify.Burst)))
    }
    m := hub.NewManager(
        hub.WithLinkOptions(link.WithFormat(cfg.Link.FrameFormat())),
        hub.WithCorrelatorOptions(corrOpts...),
    )
    if _, _, err := m.AddSession(ctx, sess, sessions[1:]...); err != nil {
        m.Close()
        return nil, err
    }
    zap.L().Debug("connected", zap.String("peer", string(sess.Peer().ID)), zap.String("kind", sess.TransportKind().String()), zap.Int("fallbacks", len(sessions)-1))
    return &session{cfg: cfg, hub: m, peer: sess.Peer().ID, timeout: o.timeout}, nil
}

// call issues one request and waits for its settlement.
func (s *session) call(ctx context.Context, op string, payload any) (any, error) {
    c, err := s.hub.Request(ctx, s.peer, op, payload, s.timeout)
    if err != nil { return nil, err }
    return c.Wait(ctx)
}

func (s *session) Close() { s.hub.Close() }
