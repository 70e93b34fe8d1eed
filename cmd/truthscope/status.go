package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch the current status of an analysis job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	client := analyzer.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	return status(cmd.Context(), client, args[0], cmd.OutOrStdout())
}

// status prints one snapshot of job id in the backend's wire shape.
func status(ctx context.Context, client analyzer.Client, id string, out io.Writer) error {
	snap, err := client.Fetch(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
