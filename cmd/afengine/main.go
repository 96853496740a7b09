// Command afengine runs the per-display audio focus arbiter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "afengine",
	Short: "Per-display audio focus arbitration service",
	Long:  "afengine arbitrates exclusive and shared audio focus across a head unit and rear-seat displays.",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validatePolicyCmd)
	rootCmd.AddCommand(brokerCmd)
	rootCmd.Version = fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
