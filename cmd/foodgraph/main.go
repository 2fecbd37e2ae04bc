// Package main provides the foodgraph binary entry point. Foodgraph compiles
// declarative ontology rule files into a canonical graph of derived-food
// nodes and publishes the result as a versioned artifact.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"foodgraph/internal/blob"
	"foodgraph/internal/compiler"
	"foodgraph/pkg/ontology"
)

const (
	Version = "0.1.0"
	appName = "foodgraph"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Compile food ontology rules into a canonical derived-food graph",
		Long: `Foodgraph turns declarative YAML rule files into a deduplicated graph of
taxon/part/transform-path identities. Each compile is deterministic: the same
rules always produce byte-identical artifacts.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	}

	cmd.AddCommand(compileCmd(), validateCmd(), versionCmd())
	return cmd
}

func compileCmd() *cobra.Command {
	var (
		configPath string
		rulesDir   string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the rule files and publish the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(configPath, rulesDir, workers)
			if err != nil {
				return err
			}
			store, err := blob.Open(ctx)
			if err != nil {
				return fmt.Errorf("open artifact store: %w", err)
			}
			metrics := compiler.NewMetrics(prometheus.DefaultRegisterer)
			_, report, err := compiler.New(cfg, store, slog.Default(), metrics).Run(ctx)
			printSummary(cmd, report)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&rulesDir, "rules", "", "Rule file directory (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel fan-out width (overrides config)")
	return cmd
}

func validateCmd() *cobra.Command {
	var (
		configPath string
		rulesDir   string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the full pipeline without publishing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(configPath, rulesDir, workers)
			if err != nil {
				return err
			}
			_, report, err := compiler.New(cfg, nil, slog.Default(), nil).Run(ctx)
			printSummary(cmd, report)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&rulesDir, "rules", "", "Rule file directory (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel fan-out width (overrides config)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	}
}

func loadConfig(configPath, rulesDir string, workers int) (compiler.Config, error) {
	var (
		cfg compiler.Config
		err error
	)
	if configPath != "" {
		cfg, err = compiler.LoadFile(configPath)
	} else {
		cfg, err = compiler.FromEnv()
	}
	if err != nil {
		return compiler.Config{}, err
	}
	if rulesDir != "" {
		cfg.RulesDir = rulesDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return cfg, nil
}

func printSummary(cmd *cobra.Command, report *ontology.Report) {
	if report == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", report.RunID)
	for _, key := range []string{"nodes", "edges", "collisions", "drafts_total", "drafts_rejected"} {
		if n, ok := report.Counts[key]; ok {
			fmt.Fprintf(out, "  %s: %d\n", key, n)
		}
	}
	for _, v := range report.Sorted() {
		fmt.Fprintf(out, "  [%s/%s] %s: %s\n", v.Category, v.Severity, v.Locator, v.Message)
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return nil
}
