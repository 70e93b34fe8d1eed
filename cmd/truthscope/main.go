// Package main is the entrypoint for the TruthScope CLI and API server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/TruthScope/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "truthscope",
	Short: "TruthScope video analysis client",
	Long: "TruthScope submits videos to the behavioral analysis backend, tracks the " +
		"resulting job until it settles and serves the session over a local REST API.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and installs the JSON logger at the
// configured level as the slog default.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	return cfg, nil
}
