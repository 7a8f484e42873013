// discloud - encrypted chunked file storage on Discord
package main

import (
	"fmt"
	"os"

	"github.com/discloud/discloud/internal/cli"
)

// Version information, injected via LDFLAGS by the Makefile.
var (
	Version   = "v1.0.0"
	BuildTime = "unknown"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
