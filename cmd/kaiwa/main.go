// Package main is the kaiwa CLI: a conversational-agent backend with
// multi-backend model routing, layered memory, and tool dispatch.
//
// Start the server:
//
//	kaiwa serve --config kaiwa.yaml
//
// Run a one-shot turn from the terminal:
//
//	kaiwa chat -m "hello" --config kaiwa.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "kaiwa",
		Short:        "Kaiwa - conversational agent backend",
		Long:         "Kaiwa routes chat turns across LLM backends with layered memory,\nsemantic retrieval, and tool dispatch.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}
