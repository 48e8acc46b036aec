// Package models holds small client models built on the model API. They
// exercise the engine end to end and back the CLI demos; the science is
// simplified from the published models they are named after.
package models

import (
	"math"
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Demo is a model plus the synthetic forcing that drives it.
type Demo interface {
	Model() *model.Model
	// Drive fills every input of ds with a deterministic series for the
	// dates of cfg.
	Drive(ds *storage.DataSet, cfg dynamo.Config) error
}

// series fills one instance of an input from a function of the date.
func series(ds *storage.DataSet, in model.InputID, t index.Tuple, cfg dynamo.Config, f func(date time.Time) float64) error {
	values := make([]float64, ds.Steps())
	for step := range values {
		values[step] = f(cfg.DateAt(step))
	}
	return ds.SetInput(in, t, values)
}

// seasonal is a yearly cosine peaking on day peak.
func seasonal(date time.Time, mean, amplitude float64, peak int) float64 {
	phase := 2 * math.Pi * float64(date.YearDay()-peak) / 365
	return mean + amplitude*math.Cos(phase)
}

// linearResponse interpolates from low to high as x goes from x0 to x1
// and clamps outside.
func linearResponse(x, x0, x1, low, high float64) float64 {
	switch {
	case x <= x0:
		return low
	case x >= x1:
		return high
	}
	return low + (high-low)*(x-x0)/(x1-x0)
}

func daysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func daysInMonth(date time.Time) int {
	return time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
