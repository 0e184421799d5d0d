package main

import (
    "context"
    "errors"
    "fmt"

    "github.com/spf13/cobra"

    "hostbridge/pkg/correlator"
)

func requestCmd(opts *rootOptions) *cobra.Command {
    cmd := &cobra.Command{
        Use:   "request <op> [payload]",
        Short: "Send one request and print its result",
        Long: `Send one request to the host and print the response payload as JSON.

The payload is parsed as JSON when possible and sent as a plain string
otherwise. A host failure, an error envelope or a timeout exits non-zero.

Examples:
  hostbridge request ping
  hostbridge request echo '{"layer":"bg"}'
  hostbridge request sleep '{"ms":500}' --timeout 100ms`,
        Args: cobra.RangeArgs(1, 2),
        RunE: func(cmd *cobra.Command, args []string) error {
            var payload any
            if len(args) == 2 { payload = parsePayload(args[1]) }
            return runRequest(cmd, opts, args[0], payload)
        },
    }
    return cmd
}

func runRequest(cmd *cobra.Command, opts *rootOptions, op string, payload any) error {
    ctx := cmd.Context()
    if ctx == nil { ctx = context.Background() }
    s, err := opts.connect(ctx, nil)
    if err != nil { return fmt.Errorf("connect: %w", err) }
    defer s.Close()

    val, err := s.call(ctx, op, payload)
    if err != nil {
        var re *correlator.RemoteError
        if errors.As(err, &re) { return fmt.Errorf("host %s: %s", re.Kind, re.Message) }
        return err
    }
    return printJSON(cmd.OutOrStdout(), val)
}
