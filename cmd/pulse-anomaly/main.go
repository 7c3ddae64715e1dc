package main

import (
	"fmt"
	"os"

	"github.com/rcourtman/pulse-anomaly/internal/utils"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var osExit = os.Exit

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulse-anomaly",
		Short: "Host anomaly monitor with LLM analysis",
		Long: `pulse-anomaly samples CPU, memory and the process table, flags samples
above the configured thresholds and asks a local Ollama model to explain them.`,
		Version:       utils.NormalizeVersion(Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("ollama-url", "", "Ollama base URL (env OLLAMA_URL)")
	flags.String("model", "", "Model used for analysis (env OLLAMA_MODEL)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error (env LOG_LEVEL)")
	flags.String("log-format", "", "Log format: auto, json, console (env LOG_FORMAT)")
	flags.Bool("no-color", false, "Disable coloured report output")

	root.AddCommand(newMonitorCmd(), newQuickCmd(), newModelsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pulse-anomaly %s\n", utils.NormalizeVersion(Version))
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}
