package main

import "flag"

// Options holds CLI options for the host.
type Options struct {
    ConfigPath string
    Listen     string
    Name       string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("hostbridge-host", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Listen, "listen", "", "Override link.listen")
    fs.StringVar(&opts.Name, "name", "", "Host name reported by the info op (default app_name)")
    _ = fs.Parse(args)
    return opts
}
