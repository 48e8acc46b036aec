package viz

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Theme colours the browser and the charts.
type Theme struct {
	Name      string
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	// Series are the chart colours, cycled when plotting many series.
	Series []asciigraph.AnsiColor
}

var (
	ThemeRiver = Theme{
		Name:      "river",
		Primary:   lipgloss.Color("#00a8cc"),
		Secondary: lipgloss.Color("#0077be"),
		Accent:    lipgloss.Color("#ffd700"),
		Text:      lipgloss.Color("#e0f0ff"),
		Muted:     lipgloss.Color("#4488aa"),
		Series:    []asciigraph.AnsiColor{asciigraph.DeepSkyBlue, asciigraph.Gold, asciigraph.LightGreen, asciigraph.Orchid},
	}

	ThemeMoss = Theme{
		Name:      "moss",
		Primary:   lipgloss.Color("#88cc44"),
		Secondary: lipgloss.Color("#558822"),
		Accent:    lipgloss.Color("#ffcc66"),
		Text:      lipgloss.Color("#f0ffe0"),
		Muted:     lipgloss.Color("#667755"),
		Series:    []asciigraph.AnsiColor{asciigraph.YellowGreen, asciigraph.SandyBrown, asciigraph.Khaki, asciigraph.OliveDrab},
	}

	ThemeMinimal = Theme{
		Name:      "minimal",
		Primary:   lipgloss.Color("#ffffff"),
		Secondary: lipgloss.Color("#cccccc"),
		Accent:    lipgloss.Color("#0088ff"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#888888"),
		Series:    []asciigraph.AnsiColor{asciigraph.Default},
	}

	Themes = []Theme{
		ThemeRiver,
		ThemeMoss,
		ThemeMinimal,
	}
)

// GetTheme returns a theme by name, river when there is none.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeRiver
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

func (t Theme) colors(n int) []asciigraph.AnsiColor {
	out := make([]asciigraph.AnsiColor, n)
	for i := range out {
		out[i] = t.Series[i%len(t.Series)]
	}
	return out
}
