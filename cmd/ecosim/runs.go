package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/ecosim/internal/analysis"
	"github.com/san-kum/ecosim/internal/store"
	"github.com/san-kum/ecosim/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSTEPS\tSTART\tPHASE")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Completed,
			run.Steps,
			run.StartDate.Format("2006-01-02"),
			run.Phase,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*store.RunMetadata, *store.Table, error) {
	st := store.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	table, err := st.LoadResults(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, table, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, table, err := loadRun(args[0])
	if err != nil {
		return err
	}

	if len(table.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	series := viz.FromTable(table)
	if seriesFilter != "" {
		series = viz.Match(series, seriesFilter)
	}
	if len(series) == 0 {
		return fmt.Errorf("no series matching %q", seriesFilter)
	}
	if len(series) > maxPlots {
		fmt.Printf("showing %d of %d series\n", maxPlots, len(series))
		series = series[:maxPlots]
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.ModelName)
	fmt.Printf("steps: %d from %s\n\n", len(table.Times), meta.StartDate.Format("2006-01-02"))

	opts := viz.PlotOptions{Width: plotWidth, Height: plotHeight, Theme: theme()}
	if overlay {
		fmt.Println(viz.Plot(series, opts))
		return nil
	}
	for _, s := range series {
		fmt.Println(viz.Plot([]viz.Series{s}, opts))
		fmt.Println(viz.MetricLabel.Render("  ") + viz.MetricValue.Render(viz.Summarize(s.Values).String()))
		fmt.Println()
	}

	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, table, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return store.WriteJSON(os.Stdout, store.TableExportData(*meta, table))
}

func browseRun(cmd *cobra.Command, args []string) error {
	meta, table, err := loadRun(args[0])
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s  %s", meta.ModelName, meta.ID)
	return viz.RunBrowser(title, meta.Phase, viz.FromTable(table))
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, table, err := loadRun(args[0])
	if err != nil {
		return err
	}

	series := viz.FromTable(table)
	if seriesFilter != "" {
		series = viz.Match(series, seriesFilter)
	}
	if len(series) == 0 {
		return fmt.Errorf("no series matching %q", seriesFilter)
	}
	if len(series) > maxPlots {
		series = series[:maxPlots]
	}

	stepLen, _ := time.ParseDuration(meta.StepDuration)
	opts := viz.PlotOptions{Width: plotWidth, Height: plotHeight, Theme: theme()}

	for _, s := range series {
		fmt.Println(viz.Header(s.Label(), theme()))

		stats, err := analysis.Describe(s.Values)
		if errors.Is(err, analysis.ErrNoData) {
			fmt.Println(viz.Subtle.Render("  " + err.Error()))
			fmt.Println()
			continue
		}
		if err != nil {
			return err
		}
		fmt.Println("  " + stats.String())

		_, power, err := analysis.Spectrum(s.Values)
		if err != nil {
			fmt.Println(viz.Subtle.Render("  " + err.Error()))
			fmt.Println()
			continue
		}
		period, share, _ := analysis.DominantPeriod(s.Values)
		if math.IsInf(period, 1) {
			fmt.Println("  no periodic signal")
		} else {
			line := fmt.Sprintf("  dominant period %.4g steps (%.0f%% of power)", period, share*100)
			if stepLen > 0 {
				line += fmt.Sprintf(", about %v", time.Duration(period*float64(stepLen)).Round(time.Hour))
			}
			fmt.Println(line)
		}

		powerSeries := viz.Series{Name: "power by frequency bin", Values: power[1:]}
		fmt.Println(viz.Plot([]viz.Series{powerSeries}, opts))
		fmt.Println()
	}
	return nil
}
