package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
	"github.com/Reality-Reimagined/TruthScope/internal/session"
)

var analyzeFollow bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|url>",
	Short: "Submit a video file or YouTube URL for analysis",
	Long: "Submit a local video file or a YouTube URL to the analysis backend. " +
		"With --follow the job is polled until it completes or fails and the final state is printed.",
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVarP(&analyzeFollow, "follow", "f", false, "Poll until the analysis settles")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := analyzer.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	return analyze(ctx, client, cfg.Backend.PollInterval, args[0], analyzeFollow, cmd.OutOrStdout())
}

// analyze submits target through a fresh session. Without follow it prints
// the state right after submission; with follow it prints one line per
// transition and then the settled state.
func analyze(ctx context.Context, client analyzer.Client, interval time.Duration, target string, follow bool, out io.Writer) error {
	ctrl := session.New(client, session.Options{Interval: interval})
	defer ctrl.Close()

	var progress <-chan session.State
	if follow {
		ch, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()
		progress = ch
		<-ch // initial idle state
	}

	st, err := submitTarget(ctx, ctrl, target)
	if err != nil {
		return err
	}
	if !follow {
		return printState(out, st)
	}

	for st.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-progress:
			if !ok {
				return session.ErrClosed
			}
			st = next
			printProgress(out, st)
		}
	}

	if err := printState(out, st); err != nil {
		return err
	}
	if st.Phase != session.PhaseSettled || st.Error != "" {
		return fmt.Errorf("analysis %s: %s", st.Phase, st.Error)
	}
	return nil
}

// submitTarget treats target as a URL when it has an http(s) scheme and as a
// local file otherwise.
func submitTarget(ctx context.Context, ctrl *session.Controller, target string) (session.State, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return ctrl.SubmitURL(ctx, target)
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return session.State{}, fmt.Errorf("%s is neither a readable file nor an http(s) URL", target)
		}
		return session.State{}, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	return ctrl.SubmitFile(ctx, filepath.Base(target), f)
}

func printProgress(out io.Writer, st session.State) {
	job, ok := st.Job()
	if !ok {
		return
	}
	line := fmt.Sprintf("[%s] %3.0f%% %s", job.Status, job.Progress*100, job.Message)
	if steps, ok := st.Steps(); ok {
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = fmt.Sprintf("%s=%s", s.Name, s.Status)
		}
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	fmt.Fprintln(out, line)
}

func printState(out io.Writer, st session.State) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
