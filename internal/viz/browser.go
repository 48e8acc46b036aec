package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const listWidth = 36

// Browser is a terminal viewer for the series of one run: a list on
// the left and a chart of the selected series on the right.
type Browser struct {
	title   string
	status  string
	all     []Series
	visible []Series
	cursor  int
	offset  int
	filter  string
	typing  bool
	theme   int
	width   int
	height  int
}

func NewBrowser(title, status string, series []Series) Browser {
	return Browser{
		title:   title,
		status:  status,
		all:     series,
		visible: series,
		width:   120,
		height:  30,
	}
}

func (b Browser) Init() tea.Cmd { return nil }

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.scroll()
	case tea.KeyMsg:
		if b.typing {
			return b.filterKey(msg), nil
		}
		return b.handleKey(msg)
	}
	return b, nil
}

func (b Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return b, tea.Quit
	case "up", "k":
		if b.cursor > 0 {
			b.cursor--
		}
	case "down", "j":
		if b.cursor < len(b.visible)-1 {
			b.cursor++
		}
	case "g", "home":
		b.cursor = 0
	case "G", "end":
		b.cursor = max(len(b.visible)-1, 0)
	case "t":
		b.theme = (b.theme + 1) % len(Themes)
	case "/":
		b.typing = true
	}
	b.scroll()
	return b, nil
}

func (b Browser) filterKey(msg tea.KeyMsg) Browser {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		b.typing = false
	case tea.KeyBackspace:
		if n := len(b.filter); n > 0 {
			b.filter = b.filter[:n-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		b.filter += string(msg.Runes)
	}
	b.visible = Match(b.all, b.filter)
	b.cursor, b.offset = 0, 0
	return b
}

func (b *Browser) rows() int {
	return max(b.height-8, 3)
}

// scroll keeps the cursor inside the listed window.
func (b *Browser) scroll() {
	rows := b.rows()
	if b.cursor < b.offset {
		b.offset = b.cursor
	}
	if b.cursor >= b.offset+rows {
		b.offset = b.cursor - rows + 1
	}
}

// Selected returns the series under the cursor.
func (b Browser) Selected() (Series, bool) {
	if b.cursor < 0 || b.cursor >= len(b.visible) {
		return Series{}, false
	}
	return b.visible[b.cursor], true
}

func (b Browser) View() string {
	theme := Themes[b.theme]

	var s strings.Builder
	s.WriteString(Header(b.title, theme) + "  " + Status(b.status) + "\n\n")

	left := b.viewList(theme)
	right := b.viewChart(theme)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right) + "\n")

	hint := "j/k navigate  / filter  t theme  q quit"
	if b.typing {
		hint = "type to filter  enter done"
	}
	s.WriteString(KeyHint.Render(hint) + "\n")
	return s.String()
}

func (b Browser) viewList(theme Theme) string {
	cursor := lipgloss.NewStyle().Foreground(theme.Accent).Bold(true)
	selected := lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	other := lipgloss.NewStyle().Foreground(theme.Muted)

	var s strings.Builder
	label := fmt.Sprintf("%d series", len(b.visible))
	if b.filter != "" || b.typing {
		label = fmt.Sprintf("/%s  %d of %d", b.filter, len(b.visible), len(b.all))
	}
	s.WriteString(MetricLabel.Render(label) + "\n")

	end := min(b.offset+b.rows(), len(b.visible))
	for i := b.offset; i < end; i++ {
		name := truncate(b.visible[i].Name, listWidth-4)
		if i == b.cursor {
			s.WriteString(cursor.Render("▸ ") + selected.Render(name) + "\n")
		} else {
			s.WriteString("  " + other.Render(name) + "\n")
		}
	}
	return Panel.Width(listWidth).Render(strings.TrimRight(s.String(), "\n"))
}

func (b Browser) viewChart(theme Theme) string {
	sel, ok := b.Selected()
	if !ok {
		return Panel.Render(Subtle.Render("no series"))
	}

	width := max(b.width-listWidth-16, 20)
	chart := Plot([]Series{sel}, PlotOptions{Width: width, Height: max(b.height-14, 5), Theme: theme})

	sum := Summarize(sel.Values)
	var s strings.Builder
	s.WriteString(chart + "\n\n")
	s.WriteString(SparklineChart(sel.Values, width) + "\n")
	s.WriteString(MetricLabel.Render("range ") + MetricValue.Render(sum.String()))
	if sum.NaN > 0 {
		s.WriteString(StatusFailed.Render(fmt.Sprintf("  %d not finite", sum.NaN)))
	}
	return Panel.Render(s.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RunBrowser opens the browser full screen until the user quits.
func RunBrowser(title, status string, series []Series) error {
	_, err := tea.NewProgram(NewBrowser(title, status, series), tea.WithAltScreen()).Run()
	return err
}
