// Package cmd implements the lighthouse CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/config"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/engine"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Live dashboard client for multi-agent traces",
	Long: `Lighthouse watches multi-agent AI workflow traces in real time:
span trees, token usage and cost, and pause/resume/step control over
running agents.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"server URL (default LIGHTHOUSE_SERVER_URL or http://localhost:8000)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(tracesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stepCmd)
}

// newEngine builds an engine from the environment and flags.
func newEngine() (*engine.Engine, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	url := serverURL
	if url == "" {
		url = cfg.ServerURL
	}
	return engine.New(engine.Options{
		ServerURL:       url,
		CredentialsPath: cfg.CredentialsPath,
	})
}
