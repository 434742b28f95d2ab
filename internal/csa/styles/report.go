package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Dark theme colours shared by the plain and the interactive report.
const (
	Foreground = "#D4D4D4"
	Label      = "#9CDCFE"
	InlineCode = "#EACD53"
	TypeName   = "#4EC9B0"
	Dim        = "#858585"
)

// Report styles the plain-text `info` output. The zero value, or one made
// with color false, renders text unchanged.
type Report struct {
	enabled bool
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	typ     lipgloss.Style
	warn    lipgloss.Style
}

// NewReport returns the report styles.
func NewReport(color bool) Report {
	if !color {
		return Report{}
	}
	return Report{
		enabled: true,
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex())).Bold(true),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color(Label)),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color(Foreground)),
		typ:     lipgloss.NewStyle().Foreground(lipgloss.Color(TypeName)).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())),
	}
}

// Enabled reports whether the styles emit escape sequences.
func (r Report) Enabled() bool { return r.enabled }

func (r Report) render(s lipgloss.Style, text string) string {
	if !r.enabled || text == "" {
		return text
	}
	return s.Render(text)
}

func (r Report) Header(s string) string { return r.render(r.header, s) }
func (r Report) Label(s string) string  { return r.render(r.label, s) }
func (r Report) Value(s string) string  { return r.render(r.value, s) }
func (r Report) Type(s string) string   { return r.render(r.typ, s) }
func (r Report) Warn(s string) string   { return r.render(r.warn, s) }
