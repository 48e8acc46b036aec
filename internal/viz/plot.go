package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/store"
)

// Series is one named time series.
type Series struct {
	Name   string
	Unit   string
	Values []float64
}

func (s Series) Label() string {
	if s.Unit == "" {
		return s.Name
	}
	return s.Name + " (" + s.Unit + ")"
}

// FromRecorder lists every recorded instance as a series.
func FromRecorder(rec *engine.Recorder) []Series {
	cols := store.Columns(rec)
	out := make([]Series, len(cols))
	for i, c := range cols {
		out[i] = Series{Name: c.Name, Unit: c.Unit, Values: rec.Series(c.Equation, c.Offset)}
	}
	return out
}

// FromTable lists the columns of a stored run. Units are not stored.
func FromTable(t *store.Table) []Series {
	out := make([]Series, len(t.Columns))
	for i, name := range t.Columns {
		out[i] = Series{Name: name, Values: t.Series[i]}
	}
	return out
}

// Match returns the series whose name contains query, ignoring case.
func Match(series []Series, query string) []Series {
	q := strings.ToLower(query)
	var out []Series
	for _, s := range series {
		if strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}

type PlotOptions struct {
	Width  int
	Height int
	Theme  Theme
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 80, Height: 12, Theme: ThemeRiver}
}

// Plot draws one chart of all series with a legend. Series that hold
// no finite value are left out.
func Plot(series []Series, opts PlotOptions) string {
	var data [][]float64
	var legends []string
	for _, s := range series {
		if !hasFinite(s.Values) {
			continue
		}
		data = append(data, s.Values)
		legends = append(legends, s.Label())
	}
	if len(data) == 0 {
		return Subtle.Render("no data")
	}

	options := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.SeriesColors(opts.Theme.colors(len(data))...),
	}
	if len(data) == 1 {
		options = append(options, asciigraph.Caption(legends[0]))
	} else {
		options = append(options, asciigraph.SeriesLegends(legends...))
	}
	return asciigraph.PlotMany(data, options...)
}

// Summary is the range and mean of a series over its finite values.
type Summary struct {
	Min, Max, Mean, Last float64
	// NaN counts the values left out.
	NaN int
}

func Summarize(values []float64) Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1), Last: math.NaN()}
	n := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.NaN++
			continue
		}
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		s.Mean += v
		s.Last = v
		n++
	}
	if n == 0 {
		return Summary{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), Last: math.NaN(), NaN: s.NaN}
	}
	s.Mean /= float64(n)
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("min %.4g  max %.4g  mean %.4g  last %.4g", s.Min, s.Max, s.Mean, s.Last)
}

func hasFinite(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
