package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/agent/core"
	"github.com/mohammad-safakhou/deepdive/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepdive/internal/runtime"
)

func analyzeCMD() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	var analyze = &cobra.Command{
		Use:   "analyze [query]",
		Short: "Run one analysis from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			tracing, err := runtime.SetupTracing(ctx, cfg.Telemetry, "deepdive-cli")
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(shutdownCtx)
			}()

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()
			logger := log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
			pipeline, err := core.NewPipeline(cfg, logger, tele)
			if err != nil {
				return err
			}

			display := newTerminalProgress(pipeline.Roles())
			reporter := core.NewChannelReporter(64, display.handle)
			defer reporter.Close()

			result, err := pipeline.RunAnalysis(ctx, query, reporter)
			if err != nil {
				return err
			}
			reporter.Close() // drain remaining events before printing
			display.printResult(result)
			return nil
		},
	}
	analyze.Flags().DurationVar(&timeout, "timeout", 0, "overall run timeout (0 = none)")
	analyze.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return analyze
}

// terminalProgress renders pipeline progress as plain terminal lines, one per
// event, with per-specialist status markers.
type terminalProgress struct {
	start time.Time
	roles []core.Role
}

func newTerminalProgress(roles []core.Role) *terminalProgress {
	return &terminalProgress{start: time.Now(), roles: roles}
}

func (d *terminalProgress) handle(ev core.ProgressEvent) {
	elapsed := time.Since(d.start).Round(100 * time.Millisecond)
	switch ev.Type {
	case core.EventQuestionGeneration:
		fmt.Printf("[%6s] generating specialist questions...\n", elapsed)
	case core.EventQuestionsGenerated:
		if qs, ok := ev.Payload.(core.QuestionSet); ok {
			fmt.Printf("[%6s] questions generated:\n", elapsed)
			for _, role := range d.roles {
				fmt.Printf("         %-14s %s\n", role.Name+":", qs.Question(role.Name))
			}
		}
	case core.EventParallelExecution:
		fmt.Printf("[%6s] running %d specialists in parallel...\n", elapsed, len(d.roles))
	case core.EventSynthesis:
		fmt.Printf("[%6s] synthesizing comprehensive analysis...\n", elapsed)
	case core.EventDeepReflection:
		fmt.Printf("[%6s] deep reflection pass...\n", elapsed)
	case core.EventComplete:
		fmt.Printf("[%6s] analysis complete\n", elapsed)
	default:
		for _, role := range d.roles {
			switch ev.Type {
			case core.SpecialistEventType(role.Name, core.PhaseStarted):
				fmt.Printf("[%6s]   %s started\n", elapsed, role.Name)
			case core.SpecialistEventType(role.Name, core.PhaseCompleted):
				fmt.Printf("[%6s]   %s completed\n", elapsed, role.Name)
			case core.SpecialistEventType(role.Name, core.PhaseFailed):
				fmt.Printf("[%6s]   %s FAILED\n", elapsed, role.Name)
			}
		}
	}
}

func (d *terminalProgress) printResult(result core.ReflectionOutput) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("COMPREHENSIVE ANALYSIS")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println(result.ComprehensiveAnalysis)
	if len(result.KeyInsights) > 0 {
		fmt.Println()
		fmt.Println("Key insights:")
		for _, insight := range result.KeyInsights {
			fmt.Printf("  - %s\n", insight)
		}
	}
	fmt.Println()
	fmt.Printf("Confidence: %.0f%%\n", result.ConfidenceScore*100)
	if len(result.Sources) > 0 {
		fmt.Printf("Sources: %d analyzed\n", len(result.Sources))
	}
	fmt.Printf("Models: %s | Tokens: %d | Cost: $%.4f | Took: %v\n",
		strings.Join(result.ModelsUsed, ", "), result.TokensUsed,
		result.CostEstimate, result.ProcessingTime.Round(time.Millisecond))
}
