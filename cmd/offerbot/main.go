// Offerbot - assistant session gateway and offer extraction CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/offer-assistant/internal/config"
)

var (
	// Global flags
	configPath string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "offerbot",
	Short: "Assistant session gateway and offer extractor",
	Long: `offerbot keeps a realtime connection to the sales assistant backend and
turns its replies into structured offers.

  serve    run the HTTP gateway (REST + SSE)
  chat     talk to the assistant from the terminal
  extract  read assistant text and print the offers it contains`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envErr := godotenv.Load()

		if configPath != "" {
			if err := os.Setenv(config.FileEnv, configPath); err != nil {
				return fmt.Errorf("set config path: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		setupLogger(cmd, cfg.Level())
		if envErr != nil {
			slog.Debug("No .env file found, using environment variables")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides "+config.FileEnv+")")

	extractCmd.Flags().BoolVar(&extractWithStrategy, "with-strategy", false, "include the name of the strategy that matched")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(extractCmd)
}

// setupLogger logs JSON to stdout for the server and text to stderr for
// interactive commands, keeping stdout free for their output.
func setupLogger(cmd *cobra.Command, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cmd.Name() == serveCmd.Name() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
