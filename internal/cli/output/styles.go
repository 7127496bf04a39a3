package output

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
)

// Styles are the lipgloss styles of one renderer.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Table   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Tree    lipgloss.Style
}

func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(colorCyan),
		Header2: lr.NewStyle().Bold(true),
		Table:   lr.NewStyle().Foreground(colorCyan),
		Label:   lr.NewStyle().Foreground(colorGray),
		Muted:   lr.NewStyle().Foreground(colorDim),
		Success: lr.NewStyle().Foreground(colorGreen),
		Warning: lr.NewStyle().Foreground(colorYellow),
		Error:   lr.NewStyle().Foreground(colorRed),
		Tree:    lr.NewStyle().Foreground(colorDim),
	}
}
