package main

import (
    "context"
    "fmt"
    "time"

    "github.com/spf13/cobra"

    "hostbridge/pkg/notify"
)

func watchCmd(opts *rootOptions) *cobra.Command {
    var (
        count    int
        duration time.Duration
        trigger  string
        payload  string
    )
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Print host notifications as JSON lines",
        Long: `Print out-of-band notifications pushed by the host.

With --trigger the given op is requested once after connecting, which is
how a host is usually asked to start reporting progress.

Examples:
  hostbridge watch --duration 30s
  hostbridge watch --trigger generate --payload '{"steps":5}' --count 5`,
        RunE: func(cmd *cobra.Command, _ []string) error {
            ctx := cmd.Context()
            if ctx == nil { ctx = context.Background() }
            if duration > 0 {
                var cancel context.CancelFunc
                ctx, cancel = context.WithTimeout(ctx, duration)
                defer cancel()
            }

            sink := notify.NewChannel(256)
            s, err := opts.connect(ctx, sink)
            if err != nil { return fmt.Errorf("connect: %w", err) }
            defer s.Close()

            triggered := make(chan error, 1)
            if trigger != "" {
                var p any
                if payload != "" { p = parsePayload(payload) }
                go func() {
                    _, err := s.call(ctx, trigger, p)
                    triggered <- err
                }()
            }

            out := cmd.OutOrStdout()
            seen := 0
            for count <= 0 || seen < count {
                select {
                case <-ctx.Done():
                    return nil
                case err := <-triggered:
                    if err != nil { return fmt.Errorf("%s: %w", trigger, err) }
                case env := <-sink.C():
                    seen++
                    if err := printJSON(out, env.Payload); err != nil { return err }
                }
            }
            return nil
        },
    }
    f := cmd.Flags()
    f.IntVarP(&count, "count", "c", 0, "Exit after this many notifications (0 = unlimited)")
    f.DurationVar(&duration, "duration", 0, "Exit after this long (0 = until interrupted)")
    f.StringVar(&trigger, "trigger", "", "Op to request once connected")
    f.StringVar(&payload, "payload", "", "JSON payload for --trigger")
    return cmd
}
