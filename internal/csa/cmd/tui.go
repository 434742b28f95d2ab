package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"csa/internal/analysis"
	"csa/internal/csa/styles"
)

type viewMode int

const (
	viewReport viewMode = iota
	viewTypes
)

type reportMsg struct {
	report *analysis.Report
	err    error
}

func loadReportCmd(path string, opts analysis.Options) tea.Cmd {
	return func() tea.Msg {
		r, err := analysis.Open(path, opts)
		return reportMsg{report: r, err: err}
	}
}

type typeItem struct {
	info analysis.TypeInfo
}

func (i typeItem) Title() string       { return strings.Repeat("  ", i.info.Depth) + i.info.FullName }
func (i typeItem) Description() string { return "" }
func (i typeItem) FilterValue() string { return i.info.FullName }

type typeDelegate struct{}

func (d typeDelegate) Height() int                               { return 1 }
func (d typeDelegate) Spacing() int                              { return 0 }
func (d typeDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d typeDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(typeItem)
	if !ok {
		return
	}
	counts := fmt.Sprintf("  %d fields, %d properties, %d methods",
		len(item.info.Fields), len(item.info.Properties), len(item.info.Methods))

	title := lipgloss.NewStyle().Foreground(lipgloss.Color(styles.TypeName))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Dim))
	prefix := "  "
	if index == m.Index() {
		prefix = "> "
		title = title.Bold(true)
	}
	fmt.Fprint(w, prefix+title.Render(item.Title())+dim.Render(counts))
}

type infoModel struct {
	path     string
	opts     analysis.Options
	viewport viewport.Model
	types    list.Model
	spinner  spinner.Model
	mode     viewMode
	report   *analysis.Report
	err      error
	loading  bool
	width    int
	height   int
}

func newInfoModel(path string, opts analysis.Options) infoModel {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(22)

	types := list.New([]list.Item{}, typeDelegate{}, 80, 22)
	types.SetShowStatusBar(false)
	types.SetFilteringEnabled(true)
	types.SetShowHelp(true)
	types.Title = "Types"
	types.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	m := infoModel{
		path:     path,
		opts:     opts,
		viewport: vp,
		types:    types,
		spinner:  s,
		loading:  true,
		width:    80,
		height:   24,
	}
	m.setMarkdown(m.loadingMarkdown())
	return m
}

func (m infoModel) Init() tea.Cmd {
	return tea.Batch(loadReportCmd(m.path, m.opts), m.spinner.Tick)
}

func (m infoModel) loadingMarkdown() string {
	return fmt.Sprintf("# csa\n\n%s Reading `%s`...", m.spinner.View(), m.path)
}

func (m *infoModel) setMarkdown(md string) {
	width := m.width
	if width == 0 {
		width = 80
	}
	out := md
	if r, err := styles.MarkdownRenderer(width - 2); err == nil {
		if rendered, err := r.Render(md); err == nil {
			out = strings.TrimSuffix(rendered, "\n")
		}
	}
	m.viewport.SetContent(out)
}

func (m *infoModel) showReport() {
	m.mode = viewReport
	if m.report != nil {
		m.setMarkdown(ReportMarkdown(m.report, m.opts))
		m.viewport.GotoTop()
	}
}

func (m *infoModel) showType(t analysis.TypeInfo) {
	r := *m.report
	r.Types = []analysis.TypeInfo{t}
	r.Exports = nil
	r.EntryStub = nil
	m.mode = viewReport
	m.setMarkdown(ReportMarkdown(&r, analysis.Options{}))
	m.viewport.GotoTop()
}

func (m infoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case reportMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.report = msg.report
		items := make([]list.Item, 0, len(m.report.Types))
		for _, t := range m.report.Types {
			items = append(items, typeItem{info: t})
		}
		m.types.SetItems(items)
		m.types.Title = fmt.Sprintf("Types (%d total)", len(items))
		m.showReport()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.setMarkdown(m.loadingMarkdown())
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 2)
		m.types.SetWidth(msg.Width)
		m.types.SetHeight(msg.Height - 2)
		if m.report != nil && m.mode == viewReport {
			m.showReport()
		}

	case tea.KeyMsg:
		filtering := m.mode == viewTypes && m.types.FilterState() == list.Filtering
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if !filtering {
				return m, tea.Quit
			}
		case "r":
			if !filtering {
				m.showReport()
				return m, nil
			}
		case "t", "tab":
			if !filtering && len(m.types.Items()) > 0 {
				if m.mode == viewTypes {
					m.showReport()
				} else {
					m.mode = viewTypes
				}
				return m, nil
			}
		case "enter":
			if m.mode == viewTypes && !filtering {
				if item, ok := m.types.SelectedItem().(typeItem); ok {
					m.showType(item.info)
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewTypes:
		m.types, cmd = m.types.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m infoModel) View() string {
	var content, menu string
	switch m.mode {
	case viewTypes:
		content = m.types.View()
		menu = " Enter: view type • R: report • Tab: toggle • Q: quit "
	default:
		content = m.viewport.View()
		if len(m.types.Items()) > 0 {
			menu = " T: types • Tab: toggle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}
