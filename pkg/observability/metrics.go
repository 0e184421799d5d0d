package observability

import (
    "context"
    "errors"
    "net"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"
)

// MetricsServer exposes a Prometheus registry over HTTP.
type MetricsServer struct {
    srv *http.Server
    ln  net.Listener
}

// ServeMetrics starts serving gatherer on addr at /metrics and stops when ctx
// ends. A nil gatherer means the default registry.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) (*MetricsServer, error) {
    if gatherer == nil { gatherer = prometheus.DefaultGatherer }
    ln, err := net.Listen("tcp", addr)
    if err != nil { return nil, err }

    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
    m := &MetricsServer{
        srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
        ln:  ln,
    }
    go func() {
        if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            zap.L().Error("metrics server stopped", zap.Error(err))
        }
    }()
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = m.srv.Shutdown(shutdownCtx)
    }()
    zap.L().Info("metrics listening", zap.String("addr", ln.Addr().String()))
    return m, nil
}

// Addr returns the bound address.
func (m *MetricsServer) Addr() net.Addr { return m.ln.Addr() }
