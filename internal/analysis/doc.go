// Package analysis summarises result series.
//
//   - [Spectrum] and [DominantPeriod]: power spectrum of a series and
//     its strongest cycle, for seasonal and sub-seasonal signals
//   - [Describe]: mean, spread and quantiles
//
// Series must be finite; a run that failed part way should be cut to
// its completed steps first.
package analysis
