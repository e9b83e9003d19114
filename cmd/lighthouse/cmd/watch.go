package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/engine"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/realtime"
)

var watchCmd = &cobra.Command{
	Use:   "watch <trace_id>",
	Short: "Follow a trace live: span tree, aggregates and control state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := eng.SelectTrace(ctx, args[0]); err != nil {
			cancel()
			return fmt.Errorf("select trace: %w", err)
		}
		cancel()

		eng.Connect()

		var renderMu sync.Mutex
		render := func() {
			renderMu.Lock()
			defer renderMu.Unlock()
			drawTrace(eng)
		}
		unregister := eng.OnChange(render)
		defer unregister()
		render()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		return nil
	},
}

func drawTrace(eng *engine.Engine) {
	// Clear screen and home the cursor.
	fmt.Print("\033[2J\033[H")

	t := eng.Trace()
	if t == nil {
		fmt.Println("No trace selected")
		return
	}

	fmt.Printf("%s  %s  [%s]\n", color.CyanString(t.Name), t.TraceID, connectionLabel(eng.ConnectionStatus()))
	fmt.Printf("status=%s control=%s agents=%d tools=%d llm=%d tokens=%d cost=$%.4f\n\n",
		statusLabel(t.Status), eng.ControlStatus(),
		t.AgentCount, t.ToolCalls, t.LLMCalls, t.TotalTokens, t.TotalCostUsd)

	for _, span := range eng.SpansForDisplay() {
		indent := strings.Repeat("  ", eng.SpanDepth(span.SpanID))
		duration := ""
		if span.DurationMs > 0 {
			duration = fmt.Sprintf(" %.0fms", span.DurationMs)
		}
		fmt.Printf("%s%s %s (%s)%s\n",
			indent, statusGlyph(string(span.Status)), span.Name, span.Kind, duration)
	}
}

func connectionLabel(status realtime.Status) string {
	switch status {
	case realtime.StatusConnected:
		return color.GreenString("live")
	case realtime.StatusConnecting:
		return color.YellowString("connecting")
	default:
		return color.RedString("offline")
	}
}

func statusGlyph(status string) string {
	switch status {
	case "running":
		return color.YellowString("●")
	case "success":
		return color.GreenString("✔")
	case "error":
		return color.RedString("✘")
	case "cancelled":
		return color.MagentaString("⊘")
	default:
		return "○"
	}
}
