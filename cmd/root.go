package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oscsim/oscsim/sim"
)

var (
	// CLI flags shared by run and ensemble
	configPath   string  // YAML parameter file; empty uses the built-in defaults
	seed         int64   // Master seed, overrides the YAML seed when set
	logLevel     string  // Log verbosity level
	mode         string  // Test mode override
	nTests       int     // Stopping-criterion count override
	maxTime      float64 // Global simulated time cap override (s)
	resultsDB    string  // SQLite file receiving run summaries
	metricsAddr  string  // Address serving Prometheus /metrics during the run
	pollInterval time.Duration

	// run only
	tracePath string // CSV file receiving the executed-event trace
	outputDir string // Directory receiving mode-specific CSV observables

	// ensemble only
	runs    int // Number of replicas
	workers int // Concurrent replicas; 0 uses GOMAXPROCS
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "oscsim",
	Short: "Kinetic Monte Carlo simulator for organic semiconductor devices",
}

// runCmd executes a single simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		params, err := loadParameters(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := runOptions{
			TracePath:    tracePath,
			OutputDir:    outputDir,
			ResultsDB:    resultsDB,
			MetricsAddr:  metricsAddr,
			PollInterval: pollInterval,
		}
		if err := runSingle(ctx, params, opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// ensembleCmd executes independent replicas with derived seeds
var ensembleCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Run independent replicas of one parameter set in parallel",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		params, err := loadParameters(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := runOptions{
			ResultsDB:    resultsDB,
			MetricsAddr:  metricsAddr,
			PollInterval: pollInterval,
			Runs:         runs,
			Workers:      workers,
		}
		if err := runEnsemble(ctx, params, opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Ensemble complete.")
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadParameters reads --config and applies the flags the user set explicitly.
func loadParameters(cmd *cobra.Command) (sim.Parameters, error) {
	params := sim.DefaultParameters()
	if configPath != "" {
		var err error
		if params, err = sim.LoadParameters(configPath); err != nil {
			return sim.Parameters{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		params.Seed = seed
	}
	if flags.Changed("mode") {
		params.Test.Mode = sim.TestMode(mode)
	}
	if flags.Changed("n-tests") {
		params.Test.NTests = nTests
	}
	if flags.Changed("max-time") {
		params.Test.MaxTime = maxTime
	}
	if flags.Changed("trace") && tracePath != "" {
		params.RecordTrace = true
	}
	return params, params.Validate()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "YAML parameter file (defaults are used when empty)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Master seed; overrides the YAML seed when set")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().StringVar(&mode, "mode", "", "Test mode override (manual, exciton_diffusion, tof, iqe, dynamics, steady_transport)")
	cmd.Flags().IntVar(&nTests, "n-tests", 0, "Stopping-criterion count override")
	cmd.Flags().Float64Var(&maxTime, "max-time", 0, "Simulated time cap in seconds (0 disables)")
	cmd.Flags().StringVar(&resultsDB, "results-db", "", "SQLite file receiving run summaries")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address serving Prometheus metrics during the run, e.g. :9090")
	cmd.Flags().DurationVar(&pollInterval, "metrics-interval", time.Second, "Interval between progress metric updates")
}

// init sets up CLI flags and subcommands
func init() {
	registerCommonFlags(runCmd)
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Write the executed-event trace as CSV to this file")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Write mode-specific CSV observables into this directory")

	registerCommonFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&runs, "runs", 4, "Number of replicas")
	ensembleCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent replicas (0 uses GOMAXPROCS)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ensembleCmd)
}
