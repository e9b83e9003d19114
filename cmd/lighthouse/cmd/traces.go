package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

var (
	tracesOffset int
	tracesLimit  int
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List recorded traces, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		traces, err := eng.ListTraces(ctx, tracesOffset, tracesLimit)
		if err != nil {
			return fmt.Errorf("list traces: %w", err)
		}
		if len(traces) == 0 {
			fmt.Println("No traces")
			return nil
		}

		for _, t := range traces {
			fmt.Printf("%s  %-24s %s  spans=%d tokens=%d cost=$%.4f\n",
				t.TraceID, t.Name, statusLabel(t.Status),
				len(t.Spans), t.TotalTokens, t.TotalCostUsd)
		}
		return nil
	},
}

func statusLabel(status domain.SpanStatus) string {
	switch status {
	case domain.SpanStatusRunning:
		return color.YellowString("%-9s", status)
	case domain.SpanStatusSuccess:
		return color.GreenString("%-9s", status)
	case domain.SpanStatusError:
		return color.RedString("%-9s", status)
	case domain.SpanStatusCancelled:
		return color.MagentaString("%-9s", status)
	default:
		return fmt.Sprintf("%-9s", status)
	}
}

func init() {
	tracesCmd.Flags().IntVar(&tracesOffset, "offset", 0, "list offset")
	tracesCmd.Flags().IntVar(&tracesLimit, "limit", 50, "list limit")
}
