// hostbridge-host is a reference host process. It listens on the configured
// link and answers ping, echo, info, sleep, fail, reject and generate.
package main

import "os"

func main() { os.Exit(run(ParseFlags(os.Args[1:]))) }
