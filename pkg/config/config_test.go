package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "hostbridge/pkg/protocol"
    "hostbridge/pkg/transport"
)

func TestLoadDefaults(t *testing.T) {
    t.Setenv("HOSTBRIDGE_CONFIG", "")
    cfg, err := Load("")
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Correlator.DefaultTimeout() != 30*time.Second { t.Fatalf("default timeout = %s", cfg.Correlator.DefaultTimeout()) }
    if cfg.Link.TransportKind() != transport.KindTCP { t.Fatalf("kind = %v", cfg.Link.TransportKind()) }
    if cfg.Link.FrameFormat() != protocol.FormatJSON { t.Fatalf("format = %v", cfg.Link.FrameFormat()) }
}

func TestLoadFileAndEnv(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "hostbridge.yaml")
    yaml := []byte(`
app_name: bridge-test
link:
  kind: quic
  dial: "127.0.0.1:9000"
  format: cbor
correlator:
  default_timeout_ms: 1500
notify:
  rate_per_sec: 5
`)
    if err := os.WriteFile(path, yaml, 0o600); err != nil { t.Fatalf("write: %v", err) }
    t.Setenv("HOSTBRIDGE_LOG_LEVEL", "debug")

    cfg, err := Load(path)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.AppName != "bridge-test" { t.Fatalf("app_name = %q", cfg.AppName) }
    if cfg.Link.TransportKind() != transport.KindQUIC { t.Fatalf("kind = %v", cfg.Link.Kind) }
    if cfg.Link.FrameFormat() != protocol.FormatCBOR { t.Fatalf("format = %v", cfg.Link.Format) }
    if cfg.Correlator.DefaultTimeout() != 1500*time.Millisecond { t.Fatalf("timeout = %s", cfg.Correlator.DefaultTimeout()) }
    if cfg.Correlator.LateWindow() != 2*time.Minute { t.Fatalf("late window default lost: %s", cfg.Correlator.LateWindow()) }
    if cfg.Notify.RatePerSec != 5 || cfg.Notify.Burst != 10 { t.Fatalf("notify = %+v", cfg.Notify) }
    if cfg.Log.Level != "debug" { t.Fatalf("env override ignored: %q", cfg.Log.Level) }
}

func TestLoadRejectsBadValues(t *testing.T) {
    dir := t.TempDir()
    for name, body := range map[string]string{
        "kind":     "link:\n  kind: carrier-pigeon\n",
        "format":   "link:\n  format: xml\n",
        "timeout":  "correlator:\n  default_timeout_ms: 0\n",
        "level":    "log:\n  level: loud\n",
        "fallback": "link:\n  fallback: [\"smoke://signal\"]\n",
    } {
        path := filepath.Join(dir, name+".yaml")
        if err := os.WriteFile(path, []byte(body), 0o600); err != nil { t.Fatalf("write: %v", err) }
        if _, err := Load(path); err == nil { t.Fatalf("%s: expected validation error", name) }
    }
}

func TestLinkTargets(t *testing.T) {
    l := LinkConfig{Kind: "tcp", Dial: "127.0.0.1:7710", Fallback: []string{
        "127.0.0.1:7720",
        "quic://127.0.0.1:7730",
        "ws://127.0.0.1:7711/hostbridge",
    }}
    want := []Target{
        {Kind: "tcp", Addr: "127.0.0.1:7710"},
        {Kind: "tcp", Addr: "127.0.0.1:7720"},
        {Kind: "quic", Addr: "127.0.0.1:7730"},
        {Kind: "ws", Addr: "ws://127.0.0.1:7711/hostbridge"},
    }
    got := l.Targets()
    if len(got) != len(want) { t.Fatalf("targets = %v", got) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("target %d = %+v, want %+v", i, got[i], want[i]) }
    }

    cfg := Default()
    cfg.Link.Fallback = []string{"mem://"}
    if err := cfg.Validate(); err == nil { t.Fatalf("empty fallback address accepted") }
}
