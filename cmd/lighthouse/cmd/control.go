package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/engine"
)

var stepCount int

var pauseCmd = &cobra.Command{
	Use:   "pause <trace_id>",
	Short: "Pause the trace's agent at the next span boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelected(args[0], func(ctx context.Context, eng *engine.Engine) error {
			if err := eng.Pause(ctx); err != nil {
				return err
			}
			color.Yellow("Paused %s", args[0])
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <trace_id>",
	Short: "Resume a paused agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelected(args[0], func(ctx context.Context, eng *engine.Engine) error {
			if err := eng.Resume(ctx); err != nil {
				return err
			}
			color.Green("Resumed %s", args[0])
			return nil
		})
	},
}

var stepCmd = &cobra.Command{
	Use:   "step <trace_id>",
	Short: "Run N spans then pause again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelected(args[0], func(ctx context.Context, eng *engine.Engine) error {
			if err := eng.Step(ctx, stepCount); err != nil {
				return err
			}
			color.Yellow("Stepping %s by %d", args[0], stepCount)
			return nil
		})
	},
}

// withSelected selects the trace, runs fn and reports failures
// uniformly.
func withSelected(traceID string, fn func(context.Context, *engine.Engine) error) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := eng.SelectTrace(ctx, traceID); err != nil {
		return fmt.Errorf("select trace: %w", err)
	}
	return fn(ctx, eng)
}

func init() {
	stepCmd.Flags().IntVarP(&stepCount, "count", "n", 1, "number of spans to execute")
}
