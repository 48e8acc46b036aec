package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

var ErrNoData = errors.New("analysis: not enough finite data")

func checkFinite(values []float64, need int) error {
	if len(values) < need {
		return fmt.Errorf("%w: %d values, need %d", ErrNoData, len(values), need)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is %v", ErrNoData, i, v)
		}
	}
	return nil
}

// Spectrum returns the one-sided power spectrum of values with the mean
// removed. Frequencies are in cycles per step, from 0 up to the Nyquist
// frequency 0.5.
func Spectrum(values []float64) (freqs, power []float64, err error) {
	if err := checkFinite(values, 2); err != nil {
		return nil, nil, err
	}

	mean := stat.Mean(values, nil)
	centred := make([]float64, len(values))
	for i, v := range values {
		centred[i] = v - mean
	}

	fft := fourier.NewFFT(len(centred))
	coeff := fft.Coefficients(nil, centred)

	n := float64(len(values))
	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i)
		a := cmplx.Abs(c) / n
		power[i] = a * a
	}
	return freqs, power, nil
}

// DominantPeriod returns the period in steps of the strongest non-zero
// frequency and its share of the total power. A constant series has no
// period and returns +Inf.
func DominantPeriod(values []float64) (period, share float64, err error) {
	freqs, power, err := Spectrum(values)
	if err != nil {
		return 0, 0, err
	}

	best, total := 0, 0.0
	for i := 1; i < len(power); i++ {
		total += power[i]
		if power[i] > power[best] || best == 0 {
			best = i
		}
	}
	if best == 0 || total == 0 {
		return math.Inf(1), 0, nil
	}
	return 1 / freqs[best], power[best] / total, nil
}
