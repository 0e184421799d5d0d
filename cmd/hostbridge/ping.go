package main

import (
    "context"
    "fmt"
    "time"

    "github.com/spf13/cobra"
)

func pingCmd(opts *rootOptions) *cobra.Command {
    var count int
    cmd := &cobra.Command{
        Use:   "ping",
        Short: "Measure request round trips to the host",
        RunE: func(cmd *cobra.Command, _ []string) error {
            ctx := cmd.Context()
            if ctx == nil { ctx = context.Background() }
            s, err := opts.connect(ctx, nil)
            if err != nil { return fmt.Errorf("connect: %w", err) }
            defer s.Close()

            out := cmd.OutOrStdout()
            for i := 0; i < count; i++ {
                start := time.Now()
                val, err := s.call(ctx, "ping", nil)
                if err != nil { return err }
                fmt.Fprintf(out, "%v from %s seq=%d time=%s\n", val, s.peer, i+1, time.Since(start).Round(time.Microsecond))
            }
            return nil
        },
    }
    cmd.Flags().IntVarP(&count, "count", "c", 1, "Number of pings")
    return cmd
}
