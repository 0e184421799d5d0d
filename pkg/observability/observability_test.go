package observability

import (
    "context"
    "io"
    "net/http"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/prometheus/client_golang/prometheus"
    "go.uber.org/zap"

    "hostbridge/pkg/config"
)

func TestSetupLoggerWritesFile(t *testing.T) {
    prev := zap.L()
    defer zap.ReplaceGlobals(prev)

    out := filepath.Join(t.TempDir(), "logs", "bridge.log")
    logger, err := SetupLogger(config.LogConfig{Level: "warning", Format: "json", Outputs: []string{out}}, "bridge")
    if err != nil { t.Fatalf("setup: %v", err) }
    logger.Info("hidden")
    zap.L().Warn("visible")
    _ = logger.Sync()

    b, err := os.ReadFile(out)
    if err != nil { t.Fatalf("read: %v", err) }
    if strings.Contains(string(b), "hidden") { t.Fatalf("info leaked at warn level: %s", b) }
    if !strings.Contains(string(b), `"logger":"bridge"`) || !strings.Contains(string(b), "visible") {
        t.Fatalf("unexpected log output: %s", b)
    }
}

func TestSetupLoggerRejectsLevel(t *testing.T) {
    if _, err := SetupLogger(config.LogConfig{Level: "loud"}, ""); err == nil { t.Fatalf("expected error") }
}

func TestServeMetrics(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    reg := prometheus.NewRegistry()
    c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hostbridge_test_total", Help: "test"})
    reg.MustRegister(c)
    c.Add(3)

    m, err := ServeMetrics(ctx, "127.0.0.1:0", reg)
    if err != nil { t.Fatalf("serve: %v", err) }
    resp, err := http.Get("http://" + m.Addr().String() + "/metrics")
    if err != nil { t.Fatalf("get: %v", err) }
    defer resp.Body.Close()
    body, _ := io.ReadAll(resp.Body)
    if !strings.Contains(string(body), "hostbridge_test_total 3") { t.Fatalf("metric missing:\n%s", body) }
}
