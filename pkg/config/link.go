package config

import (
    "strings"
    "time"

    "hostbridge/pkg/protocol"
    "hostbridge/pkg/transport"
)

// LinkConfig describes the channel to the host.
// Example YAML:
// link:
//   kind: quic
//   listen: "127.0.0.1:7710"   # host side
//   dial: "127.0.0.1:7710"     # plugin/CLI side
//   format: cbor
//   fallback: ["ws://127.0.0.1:7711/hostbridge"]   # tried when dial fails
type LinkConfig struct {
    Kind   string `mapstructure:"kind"`
    Listen string `mapstructure:"listen"`
    Dial   string `mapstructure:"dial"`
    Format string `mapstructure:"format"`
    // PeerID names this side to the remote; empty means transport-derived
    PeerID string `mapstructure:"peer_id"`
    // Fallback lists further dial targets in preference order. An entry is
    // a bare address (same kind as the link) or kind://addr.
    Fallback []string `mapstructure:"fallback"`
}

// Target is one place to dial the host.
type Target struct {
    Kind string
    Addr string
}

// Targets returns Dial followed by every fallback, in preference order.
func (l LinkConfig) Targets() []Target {
    out := []Target{{Kind: l.Kind, Addr: l.Dial}}
    for _, f := range l.Fallback { out = append(out, parseTarget(l.Kind, f)) }
    return out
}

// parseTarget splits kind://addr. ws and wss URLs stay whole since the ws
// transport dials URLs.
func parseTarget(kind, s string) Target {
    s = strings.TrimSpace(s)
    scheme, rest, ok := strings.Cut(s, "://")
    if !ok { return Target{Kind: kind, Addr: s} }
    scheme = strings.ToLower(scheme)
    if scheme == "ws" || scheme == "wss" { return Target{Kind: "ws", Addr: s} }
    return Target{Kind: scheme, Addr: rest}
}

// TransportKind returns the parsed kind. Load has already validated it.
func (l LinkConfig) TransportKind() transport.Kind {
    k, _ := transport.ParseKind(l.Kind)
    return k
}

// FrameFormat returns the parsed frame format. Load has already validated it.
func (l LinkConfig) FrameFormat() protocol.Format {
    f, _ := protocol.ParseFormat(l.Format)
    return f
}

// CorrelatorConfig holds request timing defaults.
type CorrelatorConfig struct {
    DefaultTimeoutMS int `mapstructure:"default_timeout_ms"`
    // LateWindowMS is how long settled ids are remembered to tell late
    // responses from unknown ones; 0 disables it
    LateWindowMS int `mapstructure:"late_window_ms"`
}

func (c CorrelatorConfig) DefaultTimeout() time.Duration {
    return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

func (c CorrelatorConfig) LateWindow() time.Duration {
    return time.Duration(c.LateWindowMS) * time.Millisecond
}

// NotifyConfig controls notification sinks. RatePerSec <= 0 disables limiting.
type NotifyConfig struct {
    RatePerSec float64 `mapstructure:"rate_per_sec"`
    Burst      int     `mapstructure:"burst"`
    Buffer     int     `mapstructure:"buffer"`
}
