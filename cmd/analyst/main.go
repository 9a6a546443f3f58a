// Package main is the entry point for the analyst service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "analyst",
		Short: "Market-research crew orchestrator",
		Long: `analyst runs a crew of research agents (researcher, analyst, visualizer,
writer) under a manager model and streams their progress as events.

Configuration comes from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
