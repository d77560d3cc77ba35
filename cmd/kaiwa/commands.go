package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaiwa-ai/kaiwa/internal/dialogue"
)

const defaultConfigPath = "kaiwa.yaml"

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			a.watchConfig(ctx)
			return a.server.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		message    string
		sessionID  string
		personaID  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a single chat turn and print the reply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if message == "" {
				return fmt.Errorf("a message is required (-m)")
			}

			a, err := buildApp(cmd.Context(), configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.orchestrator.Process(cmd.Context(), &dialogue.Request{
				Message:   message,
				SessionID: sessionID,
				PersonaID: personaID,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
			for _, outcome := range resp.Tools {
				if outcome.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "[tool %s] error: %s\n", outcome.Tool, outcome.Error)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "[tool %s] %s\n", outcome.Tool, outcome.Result)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "(%s, %d in / %d out, $%.6f, %dms)\n",
				resp.Stats.Model, resp.Stats.TokensIn, resp.Stats.TokensOut,
				resp.Stats.CostUSD, resp.Stats.DurationMS)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "Session id")
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "Persona id")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kaiwa %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
