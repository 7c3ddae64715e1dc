package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	"github.com/rcourtman/pulse-anomaly/internal/config"
	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
	"github.com/rcourtman/pulse-anomaly/internal/logging"
	"github.com/rcourtman/pulse-anomaly/internal/monitor"
	"github.com/rcourtman/pulse-anomaly/internal/report"
	"github.com/rcourtman/pulse-anomaly/internal/utils"
	"github.com/rcourtman/pulse-anomaly/pkg/netutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Host access wrappers for testing
var (
	newSampler = func() monitor.Sampler { return hostmetrics.Provider{} }
	newRanker  = func() monitor.Ranker { return hostmetrics.Provider{} }
)

// backendCheckTimeout bounds the startup model listing.
const backendCheckTimeout = 10 * time.Second

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample the host for a while and analyze anomalies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, false)
		},
	}

	flags := cmd.Flags()
	flags.Duration("duration", 0, "Total monitoring time (env MONITOR_DURATION)")
	flags.Duration("interval", 0, "Pause between samples (env MONITOR_INTERVAL)")
	flags.Float64("cpu-threshold", 0, "CPU percent above which a sample is anomalous (env CPU_THRESHOLD)")
	flags.Float64("memory-threshold", 0, "Memory percent above which a sample is anomalous (env MEMORY_THRESHOLD)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (env METRICS_ADDR)")
	flags.Bool("json", false, "Write the run summary as JSON to stdout; the report goes to stderr")
	addAnalysisFlags(flags)
	return cmd
}

func newQuickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quick",
		Short: "Take one sample and analyze it immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, true)
		},
	}
	addAnalysisFlags(cmd.Flags())
	return cmd
}

func addAnalysisFlags(flags *pflag.FlagSet) {
	flags.Bool("thinking", false, "Show the model's reasoning (env SHOW_THINKING)")
	flags.Bool("stream", true, "Stream the answer as it is generated (env STREAM)")
	flags.String("template", "", "Prompt template: plain, plain-pl, meme (env PROMPT_TEMPLATE)")
	flags.String("templates-file", "", "YAML file with additional prompt templates (env PROMPT_TEMPLATES_FILE)")
	flags.Int("top", 0, "Number of top processes sent with the prompt, 0 disables (env TOP_PROCESSES)")
	flags.StringSlice("exclude", nil, "Process name patterns left out of the ranking (env PROCESS_EXCLUDE)")
	flags.Duration("timeout", 0, "Per-analysis timeout (env ANALYSIS_TIMEOUT)")
	flags.Bool("skip-check", false, "Do not list backend models before starting")
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the Ollama backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := providers.NewOllamaClient(cfg.Model, cfg.OllamaURL, cfg.AnalysisTimeout)
			console := report.NewConsole(cmd.OutOrStdout(), consoleOptions(cmd))
			models, err := checkBackend(ctx, client, console, cfg.Model)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range models {
				fmt.Fprintf(out, "  - %s (%.2f GB)\n", m.Name, float64(m.Size)/(1<<30))
			}
			return nil
		},
	}
}

// loadConfig reads the environment and applies any flags given on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.RegisterTemplates(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides configuration with the flags that were explicitly set.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var firstErr error
	set := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	flags.Visit(func(f *pflag.Flag) {
		var err error
		switch f.Name {
		case "ollama-url":
			cfg.OllamaURL = f.Value.String()
		case "model":
			cfg.Model = f.Value.String()
		case "log-level":
			cfg.LogLevel = f.Value.String()
		case "log-format":
			cfg.LogFormat = f.Value.String()
		case "duration":
			cfg.Duration, err = flags.GetDuration(f.Name)
		case "interval":
			cfg.Interval, err = flags.GetDuration(f.Name)
		case "cpu-threshold":
			cfg.CPUThreshold, err = flags.GetFloat64(f.Name)
		case "memory-threshold":
			cfg.MemoryThreshold, err = flags.GetFloat64(f.Name)
		case "metrics-addr":
			cfg.MetricsAddr = f.Value.String()
		case "thinking":
			cfg.ShowThinking, err = flags.GetBool(f.Name)
		case "stream":
			cfg.Stream, err = flags.GetBool(f.Name)
		case "template":
			cfg.PromptTemplate = f.Value.String()
		case "templates-file":
			cfg.PromptTemplatesFile = f.Value.String()
		case "top":
			cfg.TopProcesses, err = flags.GetInt(f.Name)
		case "exclude":
			var patterns []string
			patterns, err = flags.GetStringSlice(f.Name)
			cfg.ProcessExclude = utils.SplitList(strings.Join(patterns, ","))
		case "timeout":
			cfg.AnalysisTimeout, err = flags.GetDuration(f.Name)
		}
		set(err)
	})
	return firstErr
}

func initLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "pulse-anomaly",
	})
}

func consoleOptions(cmd *cobra.Command) report.Options {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return report.Options{NoColor: noColor}
}

// checkBackend probes the backend and lists its models. An unreachable
// backend and a backend that cannot list models get different hints.
func checkBackend(ctx context.Context, client providers.Provider, console *report.Console, model string) ([]providers.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if err := client.TestConnection(ctx); err != nil {
		console.Error("connect", err)
		console.Hint(fmt.Sprintf("Make sure Ollama is running: ollama run %s", model))
		return nil, fmt.Errorf("cannot reach %s backend: %w", client.Name(), err)
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		console.Error("list_models", err)
		console.Hint("Ollama is running but could not list models; check `ollama list` and the server log")
		return nil, fmt.Errorf("list %s models: %w", client.Name(), err)
	}
	console.BackendReady(models)

	log.Debug().Int("models", len(models)).Msg("Backend check passed")
	return models, nil
}

// runMonitor runs a monitoring session. In quick mode a single sample is taken
// and always analyzed.
func runMonitor(cmd *cobra.Command, quick bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogging(cfg)

	flags := cmd.Flags()
	jsonOut, _ := flags.GetBool("json")
	skipCheck, _ := flags.GetBool("skip-check")

	var reportOut io.Writer = cmd.OutOrStdout()
	if jsonOut {
		reportOut = cmd.ErrOrStderr()
	}
	console := report.NewConsole(reportOut, consoleOptions(cmd))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := providers.NewOllamaClient(cfg.Model, cfg.OllamaURL, cfg.AnalysisTimeout)
	if !skipCheck {
		if _, err := checkBackend(ctx, client, console, cfg.Model); err != nil {
			return err
		}
	}

	loopCfg := cfg.LoopConfig()
	if quick {
		loopCfg.Once = true
		loopCfg.ForceAnalysis = true
	}

	loop, err := monitor.NewLoop(loopCfg, monitor.Deps{
		Sampler:   newSampler(),
		Ranker:    newRanker(),
		Generator: client,
		Reporter:  console,
	})
	if err != nil {
		return err
	}

	ctx, runID := logging.WithRunID(ctx, "")
	if !quick {
		console.Banner(cfg.Model, cfg.Duration, cfg.Interval)
	}

	log.Info().
		Str("version", Version).
		Str("run_id", runID).
		Str("ollama_url", cfg.OllamaURL).
		Str("model", cfg.Model).
		Bool("quick", quick).
		Str("env_file", cfg.EnvFile).
		Msg("Starting pulse-anomaly")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		netutil.RunDNSRefresh(gctx, cfg.DNSCacheTTL)
		return nil
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, loop.Session().Summarize)
		})
	}

	var summary monitor.Summary
	g.Go(func() error {
		defer cancelRun()
		var runErr error
		summary, runErr = loop.Run(gctx)
		return runErr
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("monitoring aborted: %w", err)
	}

	if jsonOut {
		return report.WriteJSON(cmd.OutOrStdout(), runID, summary, loop.Session().Samples())
	}
	return nil
}
