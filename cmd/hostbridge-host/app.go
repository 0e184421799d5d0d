package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "go.uber.org/zap"

    "hostbridge/pkg/config"
    "hostbridge/pkg/link"
    "hostbridge/pkg/netstack"
    "hostbridge/pkg/observability"
    "hostbridge/pkg/refhost"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }
    if opts.Listen != "" { cfg.Link.Listen = opts.Listen }
    name := opts.Name
    if name == "" { name = cfg.AppName }

    logger, err := observability.SetupLogger(cfg.Log, "hostbridge-host")
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("hostbridge-host started", zap.String("name", name))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if cfg.Metrics.Listen != "" {
        if _, err := observability.ServeMetrics(ctx, cfg.Metrics.Listen, nil); err != nil {
            zap.L().Error("metrics endpoint failed", zap.Error(err))
            return 1
        }
    }

    tr, err := netstack.NewByKind(cfg.Link.Kind)
    if err != nil {
        zap.L().Error("transport unavailable", zap.String("kind", cfg.Link.Kind), zap.Error(err))
        return 1
    }
    l, err := tr.Listen(ctx, cfg.Link.Listen)
    if err != nil {
        zap.L().Error("listen failed", zap.String("kind", cfg.Link.Kind), zap.String("addr", cfg.Link.Listen), zap.Error(err))
        return 1
    }
    defer l.Close()
    zap.L().Info("listening", zap.String("kind", tr.Kind().String()), zap.String("addr", l.Addr().String()))

    host := refhost.New(name, link.WithFormat(cfg.Link.FrameFormat()))
    if err := host.Serve(ctx, l); err != nil {
        zap.L().Error("host stopped", zap.Error(err))
        return 1
    }
    zap.L().Info("shutting down")
    return 0
}
