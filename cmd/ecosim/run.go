package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/config"
	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/experiment"
	"github.com/san-kum/ecosim/internal/store"
	"github.com/san-kum/ecosim/internal/telemetry"
	"github.com/san-kum/ecosim/internal/viz"
)

// resolveConfig layers the run configuration: defaults, then a preset,
// then a config file, then flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg.Model = args[0]
	}

	if preset != "" {
		p := config.GetPreset(cfg.Model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Model))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if len(args) > 0 {
			cfg.Model = args[0]
		}
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("start") {
		d, err := time.Parse(time.DateOnly, startDate)
		if err != nil {
			return nil, fmt.Errorf("start date: %w", err)
		}
		cfg.StartDate = d
	}
	if flags.Changed("step-duration") {
		d, err := time.ParseDuration(stepDuration)
		if err != nil {
			return nil, fmt.Errorf("step duration: %w", err)
		}
		cfg.StepDuration = d
	}
	if flags.Changed("nan") {
		cfg.TestForNaN = testNaN
	}
	if flags.Changed("no-bounds") {
		cfg.BoundsCheck = !noBounds
	}
	if flags.Changed("profile") {
		cfg.Profile = profile
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = metricsFile
	}

	for _, kv := range overrides {
		name, v, err := parseOverride(kv)
		if err != nil {
			return nil, err
		}
		if cfg.Parameters == nil {
			cfg.Parameters = make(map[string]float64)
		}
		cfg.Parameters[name] = v
	}
	return cfg, nil
}

func parseOverride(kv string) (string, float64, error) {
	i := strings.LastIndex(kv, "=")
	if i <= 0 {
		return "", 0, fmt.Errorf("override %q: expected name=value", kv)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(kv[i+1:]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("override %q: %w", kv, err)
	}
	return strings.TrimSpace(kv[:i]), v, nil
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := cfg.Experiment()
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	demo, err := registry.GetModel(expCfg.Model)
	if err != nil {
		return err
	}

	exp := experiment.New(expCfg)
	if err := exp.Setup(demo, registry.DefaultMetrics(expCfg.Model, demo, expCfg.Run)); err != nil {
		return err
	}

	st := store.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	tm := telemetry.New(cfg.Telemetry.Metrics())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s for %d steps...\n", expCfg.Model, expCfg.Run.Steps)
	result, runErr := exp.Run(ctx, engine.WithMetrics(tm))
	if result == nil {
		return runErr
	}

	meta := store.NewMetadata(expCfg.Model, exp.Program(), expCfg.Run)
	meta.Overrides = expCfg.Overrides
	meta.SetResult(result.Result, result.Metrics)

	runID, err := st.Save(meta, exp.Recorder())
	if err != nil {
		return err
	}
	meta.ID = runID

	if jsonOut != "" {
		if err := store.ExportJSON(jsonOut, store.NewExportData(meta, exp.Recorder())); err != nil {
			return err
		}
	}
	if path := cfg.Telemetry.MetricsFile; path != "" {
		if err := tm.WriteFile(path); err != nil {
			logger.Warn("metrics file not written", zap.String("path", path), zap.Error(err))
		}
	}

	fmt.Printf("%s in %v\n", viz.Status(result.Phase.String()), result.Elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d/%d\n", result.Steps, expCfg.Run.Steps)
	fmt.Printf("evaluations: %d  substeps: %d  rejections: %d\n",
		result.Stats.Evaluations, result.Stats.Substeps, result.Stats.Rejections)

	fmt.Println(viz.Separator(40))
	fmt.Println("metrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}

	if len(result.Stats.Profile) > 0 {
		if err := printProfile(result.Stats.Profile); err != nil {
			return err
		}
	}

	if browseAfter {
		title := fmt.Sprintf("%s  %s", exp.Program().Model.Name, runID)
		if err := viz.RunBrowser(title, result.Phase.String(), viz.FromRecorder(exp.Recorder())); err != nil {
			return err
		}
	}

	return runErr
}

// printProfile lists equations by total time, slowest first.
func printProfile(entries []engine.EquationProfile) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b engine.EquationProfile) int { return cmp.Compare(b.Time, a.Time) })

	fmt.Println("\nprofile:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  EQUATION\tEVALUATIONS\tTIME\tPER CALL")
	for _, p := range sorted {
		per := time.Duration(0)
		if p.Evaluations > 0 {
			per = p.Time / time.Duration(p.Evaluations)
		}
		fmt.Fprintf(w, "  %s\t%d\t%v\t%v\n", p.Equation, p.Evaluations, p.Time, per)
	}
	return w.Flush()
}

// parseAxis reads a grid axis "name=v1,v2,...".
func parseAxis(s string) (string, []float64, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return "", nil, fmt.Errorf("param %q: expected name=v1,v2,...", s)
	}
	var values []float64
	for _, field := range strings.Split(s[i+1:], ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return strings.TrimSpace(s[:i]), values, nil
}

func sweepModel(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := cfg.Experiment()
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, s := range sweepParams {
		name, values, err := parseAxis(s)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	grid := experiment.NewGridSearch(names, ranges)
	grid.Workers = cfg.Workers
	if cmd.Flags().Changed("workers") {
		grid.Workers = workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %s over %d points...\n", expCfg.Model, len(grid.Points()))
	start := time.Now()
	best, trials, err := grid.Search(ctx, experiment.NewRegistry(), expCfg, sweepMetric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := append(slices.Clone(names), strings.ToUpper(sweepMetric), "PHASE")
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, t := range trials {
		row := make([]string, 0, len(header))
		for _, name := range names {
			row = append(row, strconv.FormatFloat(t.Params[name], 'g', -1, 64))
		}
		row = append(row, strconv.FormatFloat(t.Metrics[sweepMetric], 'g', 6, 64))
		phase := "-"
		if t.Result != nil {
			phase = t.Result.Phase.String()
		}
		row = append(row, phase)
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest %s = %.6g in %v\n", sweepMetric, best.Metrics[sweepMetric], time.Since(start))
	for _, name := range names {
		fmt.Printf("  %s: %g\n", name, best.Params[name])
	}
	return nil
}
