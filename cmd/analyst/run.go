package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/config"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

func newRunCmd() *cobra.Command {
	var (
		topic string
		mock  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one crew in-process and print its events as JSON lines",
		Example: `  analyst run --topic "AI inference chips" --mock
  MOCK_SPEED=10 analyst run --topic "EV batteries" --mock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if mock {
				cfg.MockMode = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cfg, topic, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "research topic (required)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use the simulated executor")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// runOnce drives a single run to completion, streaming its log to out. It
// fails when the run ends in error.
func runOnce(ctx context.Context, cfg *config.Config, topic string, out, logOut io.Writer) error {
	logger := newLogger(cfg, logOut)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	run, err := a.store.CreateRun(ctx, runstore.NewRunID(), topic)
	if err != nil {
		return err
	}
	events := run.Bridge().StreamFrom(ctx, 0)
	if err := a.launcher.Start(run); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.launcher.Wait()
	if run.Status() == types.RunStatusError {
		return fmt.Errorf("run %s failed: %s", run.ID(), run.Error())
	}
	if path := run.ReportPath(); path != "" {
		fmt.Fprintf(logOut, "report: %s\n", path)
	}
	return nil
}
