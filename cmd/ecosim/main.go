package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/viz"
)

var (
	dataDir     string
	configFile  string
	preset      string
	logLevel    string
	themeName   string
	metricsFile string

	// run overrides
	steps        int
	dt           float64
	startDate    string
	stepDuration string
	testNaN      bool
	noBounds     bool
	profile      bool
	overrides    []string
	jsonOut      string
	browseAfter  bool

	// sweep
	sweepParams []string
	sweepMetric string
	workers     int

	// plot
	seriesFilter string
	maxPlots     int
	overlay      bool
	plotHeight   int
	plotWidth    int

	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ecosim",
		Short:         "environmental model simulation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			logger = l
			dynamo.SetLogger(l)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ecosim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "river", "colour theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a model and save its results",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModel,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file")
	runCmd.Flags().BoolVar(&profile, "profile", false, "time every equation")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also export the results as JSON to this file")
	runCmd.Flags().BoolVar(&browseAfter, "browse", false, "open the result browser when done")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search over parameters, minimising a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepModel,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, `grid axis "name=v1,v2,..."`)
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "", "metric to minimise")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 uses the config)")
	_ = sweepCmd.MarkFlagRequired("param")
	_ = sweepCmd.MarkFlagRequired("metric")

	orderCmd := &cobra.Command{
		Use:   "order [model]",
		Short: "print the evaluation order",
		Args:  cobra.ExactArgs(1),
		RunE:  printOrder,
	}

	describeCmd := &cobra.Command{
		Use:   "describe [model]",
		Short: "print index sets, parameters and result structure",
		Args:  cobra.ExactArgs(1),
		RunE:  describeModel,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list available models",
		RunE:  listModels,
	}

	solversCmd := &cobra.Command{
		Use:   "solvers",
		Short: "list solver methods",
		RunE:  listSolvers,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&seriesFilter, "series", "", "only series whose name contains this")
	plotCmd.Flags().IntVar(&maxPlots, "max", 6, "most series to plot")
	plotCmd.Flags().BoolVar(&overlay, "overlay", false, "draw every series in one chart")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "chart height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "chart width")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "summary statistics and dominant period of run series",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&seriesFilter, "series", "", "only series whose name contains this")
	analyzeCmd.Flags().IntVar(&maxPlots, "max", 6, "most series to analyze")
	analyzeCmd.Flags().IntVar(&plotHeight, "height", 10, "chart height")
	analyzeCmd.Flags().IntVar(&plotWidth, "width", 80, "chart width")

	browseCmd := &cobra.Command{
		Use:   "browse [run_id]",
		Short: "browse run results interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  browseRun,
	}

	rootCmd.AddCommand(runCmd, sweepCmd, orderCmd, describeCmd, modelsCmd, solversCmd, presetsCmd,
		listCmd, plotCmd, analyzeCmd, exportJSONCmd, browseCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of timesteps")
	cmd.Flags().Float64Var(&dt, "dt", 0, "model timestep")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (2006-01-02)")
	cmd.Flags().StringVar(&stepDuration, "step-duration", "", "calendar length of a step, e.g. 24h")
	cmd.Flags().BoolVar(&testNaN, "nan", false, "fail on the first NaN result")
	cmd.Flags().BoolVar(&noBounds, "no-bounds", false, "skip tuple validation in data set access")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, `parameter override "name=value"`)
}

// newLogger builds a development logger for debug and a production one
// otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}

func theme() viz.Theme {
	return viz.GetTheme(themeName)
}
