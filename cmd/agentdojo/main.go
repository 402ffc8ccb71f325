package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/agentdojo/internal/logging"
)

var (
	debug   bool
	baseDir string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentdojo",
		Short: "Resilience training dojo for AI agents",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&baseDir, "base-dir", ".", "dojo base directory")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(protocolCmd())
	return root
}

func main() {
	// API keys and provider selection commonly live in a .env file;
	// absence is fine, the environment still applies.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
