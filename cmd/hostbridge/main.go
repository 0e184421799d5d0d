// hostbridge is a CLI that talks to a host through a Correlator.
//
// Usage:
//
//	hostbridge ping --addr 127.0.0.1:7710
//	hostbridge request echo '{"layer":"bg"}'
//	hostbridge watch --trigger generate --count 3
//	hostbridge ping --kind quic --addr 127.0.0.1:7711 --fallback tcp://127.0.0.1:7710
package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
    opts := &rootOptions{}
    rootCmd := &cobra.Command{
        Use:   "hostbridge",
        Short: "Send requests to a host process and watch its notifications",
        Long: `hostbridge dials a host over the configured link (mem, tcp, quic or ws),
issues requests through a correlator and prints the outcome. Every request
settles exactly once: with the host's response, its error, or a timeout.`,
        Version:       version,
        SilenceUsage:  true,
        SilenceErrors: true,
    }

    // Global flags
    pf := rootCmd.PersistentFlags()
    pf.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
    pf.StringVar(&opts.kind, "kind", "", "Transport kind: mem, tcp, quic, ws (overrides link.kind)")
    pf.StringVar(&opts.addr, "addr", "", "Host address (overrides link.dial)")
    pf.StringSliceVar(&opts.fallback, "fallback", nil, "Fallback targets tried after the primary, as kind://addr (overrides link.fallback)")
    pf.StringVar(&opts.format, "format", "", "Frame format: json, cbor, proto (overrides link.format)")
    pf.StringVar(&opts.logLevel, "log-level", "", "Log level (overrides log.level)")
    pf.DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout (default correlator.default_timeout_ms)")

    rootCmd.AddCommand(requestCmd(opts))
    rootCmd.AddCommand(pingCmd(opts))
    rootCmd.AddCommand(watchCmd(opts))
    return rootCmd
}

func main() {
    if err := newRootCmd().Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}
