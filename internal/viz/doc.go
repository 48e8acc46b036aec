// Package viz draws run results in the terminal.
//
//   - [Plot]: asciigraph charts of one or more series with a legend
//   - [Browser]: a Bubble Tea viewer listing every recorded series with
//     a chart and summary of the selected one
//   - Three colour themes shared by both
//
// # Key Bindings
//
//	j/k   - Move through the series
//	g/G   - First and last series
//	/     - Filter series by name
//	t     - Cycle colour themes
//	q     - Quit
package viz
