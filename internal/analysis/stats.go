package analysis

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"
)

type Stats struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

func Describe(values []float64) (Stats, error) {
	if err := checkFinite(values, 1); err != nil {
		return Stats{}, err
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := Stats{
		N:      len(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Q25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("n %d  mean %.4g  sd %.4g  min %.4g  q25 %.4g  median %.4g  q75 %.4g  max %.4g",
		s.N, s.Mean, s.StdDev, s.Min, s.Q25, s.Median, s.Q75, s.Max)
}
