package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/logger"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile    string
	logLevel   string
	logFormat  string
	batchSize  int
	sampleSize int
	strategy   string
)

var rootCmd = &cobra.Command{
	Use:   "gopromote",
	Short: "Data migration pipeline with quality gating",
	Long: `A CLI tool for promoting relational data from a legacy store into a
versioned destination schema, refusing to migrate data that fails its
quality checks.

Features:
  - Sampling type and corruption profiler with a pre-flight circuit breaker
  - Transactional cleaning into an intermediate store, source never mutated
  - Weighted multi-dimension quality score gating every migration
  - Canary and blue-green strategies with an atomic active-pointer cutover
  - Checkpointed batch copy with crash resume`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gopromote.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override batch size (rows per destination transaction)")
	rootCmd.PersistentFlags().IntVar(&sampleSize, "sample-size", 0,
		"Override profiler sample size (rows per table)")

	// Strategy override
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "",
		"Override migration strategy (canary, blue-green)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel   string
	LogFormat  string
	BatchSize  int
	SampleSize int
	Strategy   string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		BatchSize:  batchSize,
		SampleSize: sampleSize,
		Strategy:   strategy,
	}
}

// setup loads configuration, applies CLI overrides, and builds the logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.BatchSize, overrides.SampleSize, overrides.Strategy)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so a run
// stops at the next batch boundary instead of mid-transaction.
func signalContext(log *logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Received shutdown signal - completing current batch...")
		cancel()
	}()
	return ctx, cancel
}
