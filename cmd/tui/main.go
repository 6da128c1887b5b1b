package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"flyapp/internal/pipeline"
	"flyapp/internal/predict"
	"flyapp/internal/report"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Colors for modern design
var (
	primaryColor  = lipgloss.Color("#7C3AED") // Purple
	surfaceColor  = lipgloss.Color("#1F2937") // Dark gray
	textColor     = lipgloss.Color("#F3F4F6") // Light gray
	mutedColor    = lipgloss.Color("#9CA3AF") // Muted gray
	borderColor   = lipgloss.Color("#374151") // Border gray
	flyerColor    = lipgloss.Color("#90EE90")
	nonFlyerColor = lipgloss.Color("#DDA0DD")
	uncovered     = lipgloss.Color("#E8E8E8")
)

// Styles
var (
	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(surfaceColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(mutedColor)

	residueStyles = map[string]lipgloss.Style{
		report.Flyer:     lipgloss.NewStyle().Background(flyerColor).Foreground(lipgloss.Color("#111827")),
		report.NonFlyer:  lipgloss.NewStyle().Background(nonFlyerColor).Foreground(lipgloss.Color("#111827")),
		report.Uncovered: lipgloss.NewStyle().Background(uncovered).Foreground(lipgloss.Color("#6B7280")),
	}
	flyerStyle    = lipgloss.NewStyle().Foreground(flyerColor).Bold(true)
	nonFlyerStyle = lipgloss.NewStyle().Foreground(nonFlyerColor)
)

type listItem struct {
	analysis *pipeline.Analysis
}

func (i listItem) FilterValue() string {
	return i.analysis.ProteinID
}

func (i listItem) Title() string {
	if i.analysis.ProteinID != "" {
		return i.analysis.ProteinID
	}
	return i.analysis.ID
}

func (i listItem) Description() string {
	s := i.analysis.Stats
	return fmt.Sprintf("%d aa    %d peptides    %s flyers    %.1f%% covered",
		s.ProteinLength, s.TotalPeptides, flyerStyle.Render(fmt.Sprint(s.FlyerPeptides)), s.SequenceCoverage)
}

type mode int

const (
	modeMap mode = iota
	modePeptides
	modeStats
	modeCount
)

func (m mode) String() string {
	switch m {
	case modeMap:
		return "Coverage map"
	case modePeptides:
		return "Peptides"
	case modeStats:
		return "Statistics"
	default:
		return "Unknown"
	}
}

type model struct {
	list          list.Model
	analyses      []*pipeline.Analysis
	currentMode   mode
	showHelp      bool
	width         int
	height        int
	selectedIndex int
}

func initialModel(analyses []*pipeline.Analysis) model {
	items := make([]list.Item, len(analyses))
	for i, a := range analyses {
		items[i] = listItem{analysis: a}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Proteins"
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(true)

	return model{
		list:        l,
		analyses:    analyses,
		currentMode: modeMap,
	}
}

// loadAnalyses reads the output of `flyapp predict --out` (an array) or a
// single analysis as served by the web API.
func loadAnalyses(data []byte) ([]*pipeline.Analysis, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var a pipeline.Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return []*pipeline.Analysis{&a}, nil
	}
	var all []*pipeline.Analysis
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (m model) cycleMode() model {
	m.currentMode = (m.currentMode + 1) % modeCount
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetWidth(msg.Width / 3)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case tea.KeyMsg:
		// let the list own keys while the filter prompt is open
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "h":
			m.showHelp = !m.showHelp
			return m, nil
		case "tab":
			return m.cycleMode(), nil
		case "1":
			m.currentMode = modeMap
			return m, nil
		case "2":
			m.currentMode = modePeptides
			return m, nil
		case "3":
			m.currentMode = modeStats
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.selectedIndex = m.list.Index()
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelpModal()
	}
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.renderLeftPanel(), m.renderRightPanel())
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m model) renderLeftPanel() string {
	return containerStyle.
		Width(m.width/3 - 2).
		Height(m.height - 4).
		Render(m.list.View())
}

func (m model) selected() *pipeline.Analysis {
	item, ok := m.list.SelectedItem().(listItem)
	if !ok {
		return nil
	}
	return item.analysis
}

func (m model) renderRightPanel() string {
	rightWidth := (m.width * 2) / 3
	panel := containerStyle.Width(rightWidth - 2).Height(m.height - 4)

	a := m.selected()
	if a == nil {
		return panel.Render("No analysis selected")
	}
	header := titleStyle.Render(a.ProteinID)
	meta := labelStyle.Render(fmt.Sprintf("%s digest, peptides %d-%d aa, %s",
		a.Options.Enzyme, a.Options.MinLength, a.Options.MaxLength, a.CreatedAt.Format("2006-01-02 15:04")))

	var content string
	switch m.currentMode {
	case modeMap:
		content = strings.Join(m.buildMapLines(a, rightWidth-6), "\n")
	case modePeptides:
		content = renderPeptides(a.Peptides)
	case modeStats:
		content = renderStats(a)
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, header, meta, "", content))
}

// buildMapLines wraps the coloured residues to width columns, leaving room
// for the trailing position label.
func (m model) buildMapLines(a *pipeline.Analysis, width int) []string {
	perLine := width - 10
	if perLine > report.ResiduesPerLine {
		perLine = report.ResiduesPerLine
	}
	if perLine < 10 {
		perLine = 10
	}
	var cells []report.Residue
	for _, l := range report.Map(a.Sequence, a.Peptides) {
		cells = append(cells, l.Residues...)
	}
	legend := residueStyles[report.Flyer].Render(" flyer ") + " " +
		residueStyles[report.NonFlyer].Render(" non-flyer ") + " " +
		residueStyles[report.Uncovered].Render(" not covered ")
	lines := []string{legend, ""}
	for start := 0; start < len(cells); start += perLine {
		end := min(start+perLine, len(cells))
		var b strings.Builder
		for _, c := range cells[start:end] {
			b.WriteString(residueStyles[c.Kind].Render(c.AA))
		}
		lines = append(lines, fmt.Sprintf("%s %s", b.String(), labelStyle.Render(fmt.Sprintf("%d-%d", start+1, end))))
	}
	return lines
}

func renderPeptides(peptides []predict.Annotated) string {
	if len(peptides) == 0 {
		return labelStyle.Render("No peptides in the length range")
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-40s %-9s %-20s %s", "Peptide", "Position", "Class", "Probabilities")))
	for _, p := range peptides {
		style := nonFlyerStyle
		if p.IsFlyer {
			style = flyerStyle
		}
		probs := make([]string, len(predict.Classes))
		for i := range predict.Classes {
			probs[i] = fmt.Sprintf("%.3f", p.Probability(i))
		}
		fmt.Fprintf(&b, "\n%-40s %-9s %s %s", p.Sequence, fmt.Sprintf("%d-%d", p.Start, p.End),
			style.Render(fmt.Sprintf("%-20s", p.Class)), strings.Join(probs, " "))
	}
	return b.String()
}

func renderStats(a *pipeline.Analysis) string {
	s := a.Stats
	rows := [][2]string{
		{"Protein length", fmt.Sprintf("%d aa", s.ProteinLength)},
		{"Total peptides", fmt.Sprint(s.TotalPeptides)},
		{"Flyer peptides", fmt.Sprintf("%d (%.1f%%)", s.FlyerPeptides, s.FlyerPercentage)},
		{"Non-flyer peptides", fmt.Sprint(s.NonFlyerPeptides)},
		{"Sequence coverage", fmt.Sprintf("%.1f%%", s.SequenceCoverage)},
		{"Flyer coverage", fmt.Sprintf("%.1f%%", s.FlyerCoverage)},
		{"Non-flyer coverage", fmt.Sprintf("%.1f%%", s.NonFlyerCoverage)},
	}
	for _, c := range predict.Classes {
		rows = append(rows, [2]string{c, fmt.Sprint(s.ClassCounts[c])})
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", r[0])) + r[1])
	}
	return b.String()
}

func (m model) renderStatusBar() string {
	leftInfo := fmt.Sprintf("%d/%d proteins", m.selectedIndex+1, len(m.analyses))
	centerInfo := fmt.Sprintf("Mode: %s", m.currentMode)
	rightInfo := "Press 'h' for help, 'q' to quit"

	spacing := m.width - len(leftInfo) - len(centerInfo) - len(rightInfo) - 6
	var statusContent string
	if spacing > 0 {
		leftSpacing := spacing / 2
		statusContent = leftInfo + strings.Repeat(" ", leftSpacing) + centerInfo + strings.Repeat(" ", spacing-leftSpacing) + rightInfo
	} else {
		// Fallback for narrow terminals
		statusContent = fmt.Sprintf("%s | %s", leftInfo, centerInfo)
	}
	return statusBarStyle.Width(m.width).Render(statusContent)
}

func (m model) renderHelpModal() string {
	helpContent := `Peptide Detectability Browser - Help

Navigation:
  up/down, j/k   Navigate proteins
  /              Filter proteins

View Modes:
  1              Coverage map
  2              Peptide table
  3              Statistics
  tab            Next mode

General:
  h              Toggle this help
  q, Ctrl+C      Quit application

Current Mode: ` + m.currentMode.String() + `
Total Proteins: ` + fmt.Sprint(len(m.analyses)) + `
`
	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(surfaceColor).
		Foreground(textColor).
		Width(60).
		Render(helpContent)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}

func main() {
	cmd := &cobra.Command{
		Use:          "flyapp-tui [analyses.json]",
		Short:        "Browse saved detectability analyses in the terminal",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "analyses.json"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			analyses, err := loadAnalyses(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			_, err = tea.NewProgram(initialModel(analyses), tea.WithAltScreen()).Run()
			return err
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
