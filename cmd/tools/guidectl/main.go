// Command guidectl inspects the conversation engine from a terminal: score
// text the way the safety pipeline does, chat against the configured
// gateway, and read the review records.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "guidectl",
	Short:         "Inspect and exercise the veteran companion engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log service activity to stderr")
	rootCmd.AddCommand(analyzeCmd, suggestCmd, chatCmd, reviewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the same configuration as the API server.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if !verbose {
		return cfg, zap.NewNop(), nil
	}
	cfg.Log.Development = true
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
