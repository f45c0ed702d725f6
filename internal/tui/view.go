package tui

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	storyTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D7FF")).
			Bold(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			PaddingLeft(1).
			PaddingRight(1)

	restartStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FF8800")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	workingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D7FF")).
			Bold(true)

	hpBarStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	expBarStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	timestampStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	questDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	questPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EEEEEE")).Bold(true)
)

// logStyles color log lines by their type tag.
var logStyles = map[string]lipgloss.Style{
	"action":   lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	"combat":   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
	"level_up": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
	"quest":    lipgloss.NewStyle().Foreground(lipgloss.Color("#87AFFF")),
	"story":    lipgloss.NewStyle().Foreground(lipgloss.Color("#00D7FF")),
	"system":   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),
}

var (
	knownSkills   = []string{"decryption", "manipulation", "reconstruction"}
	knownFactions = []string{"codekeepers", "resistance", "neutral"}
)

const (
	barWidth        = 16
	emptyInventory  = "Empty"
	noQuests        = "No active quests"
	noSaves         = "No save files found"
	noActions       = "No actions available"
	offlineNotice   = "Connection lost; retrying on the next refresh."
	gameHelp        = "a-d: choose • 1-9: action • s: save • l: saves • R: restart • e: export • q: quit"
	advisorHelp     = " • ?: hint • p: recap"
	saveListHelp    = "↑/↓: select • enter: load • x: delete • esc: close"
	loginHelp       = "enter: log in • tab: register • esc: quit"
	registerHelp    = "enter: register • tab: next field • esc: back"
	connectingTitle = "Connecting to the Source..."
)

type renderer interface {
	Render(string) (string, error)
}

func newRenderer(enabled bool, width int) renderer {
	if !enabled {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		log.Printf("tui: markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}

func (m model) leftWidth() int {
	return int(float64(m.width) * 0.62)
}

func (m model) rightWidth() int {
	return max(m.width-m.leftWidth()-4, 20)
}

// layout sizes the log viewport to whatever the story panel leaves free.
func (m *model) layout() {
	storyHeight := lipgloss.Height(m.renderStory())
	m.viewport.Width = m.leftWidth()
	m.viewport.Height = max(m.height-storyHeight-8, 3)
}

func (m model) describe(text string) string {
	if m.markdown != nil {
		out, err := m.markdown.Render(text)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		log.Printf("tui: render description: %v", err)
	}
	return lipgloss.NewStyle().Width(m.leftWidth()).Render(text)
}

func (m model) renderStory() string {
	if !m.presented {
		return storyTitleStyle.Render(connectingTitle)
	}
	return renderPresentation(m.presentation, m.describe)
}

// renderPresentation draws a stage: title, description and either the four
// choice buttons or the single restart affordance.
func renderPresentation(p story.Presentation, describe func(string) string) string {
	var b strings.Builder
	b.WriteString(storyTitleStyle.Render(p.Title))
	b.WriteString("\n\n")
	b.WriteString(describe(p.Description))
	b.WriteString("\n\n")
	if p.Terminal() {
		b.WriteString(restartStyle.Render(p.Restart))
		b.WriteString("  ")
		b.WriteString(helpStyle.Render("press enter"))
		return b.String()
	}
	labels := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		labels[i] = choiceStyle.Render(c.Label())
	}
	b.WriteString(strings.Join(labels, "\n"))
	return b.String()
}

func renderBar(cur, total, width int, style lipgloss.Style) string {
	pct := 0.0
	if total > 0 {
		pct = float64(cur) / float64(total)
	}
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	return style.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
}

func renderStats(p models.PlayerState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PLAYER") + "\n")
	fmt.Fprintf(&b, "%s (level %d)\n", p.Name, p.Level)
	fmt.Fprintf(&b, "HP  %s %d/%d\n", renderBar(p.HP, p.MaxHP, barWidth, hpBarStyle), p.HP, p.MaxHP)
	fmt.Fprintf(&b, "EXP %s %d/%d\n", renderBar(p.Exp, p.ExpToNext, barWidth, expBarStyle), p.Exp, p.ExpToNext)
	fmt.Fprintf(&b, "Credits: %d\n", p.Currency())
	fmt.Fprintf(&b, "Location: %s\n", p.Location)
	return b.String()
}

// orderedKeys lists the known names first, then anything else the server sent.
func orderedKeys(known []string, m map[string]int) []string {
	keys := slices.Clone(known)
	var extra []string
	for k := range m {
		if !slices.Contains(known, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}

func renderSkills(p models.PlayerState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SKILLS") + "\n")
	for _, k := range orderedKeys(knownSkills, p.Skills) {
		fmt.Fprintf(&b, "%s: %d\n", k, p.Skill(k))
	}
	return b.String()
}

func renderReputation(p models.PlayerState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("REPUTATION") + "\n")
	for _, k := range orderedKeys(knownFactions, p.Reputation) {
		fmt.Fprintf(&b, "%s: %d\n", k, p.Standing(k))
	}
	return b.String()
}

func renderInventory(items []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("INVENTORY") + "\n")
	if len(items) == 0 {
		b.WriteString(emptyInventory + "\n")
		return b.String()
	}
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	return b.String()
}

func renderQuests(quests []models.Quest) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("QUESTS") + "\n")
	if len(quests) == 0 {
		b.WriteString(noQuests + "\n")
		return b.String()
	}
	for _, q := range quests {
		if q.Complete() {
			b.WriteString(questDoneStyle.Render("✓ "+q.Name) + "\n")
		} else {
			b.WriteString(questPendingStyle.Render(q.Name) + "\n")
		}
		if q.Description != "" {
			b.WriteString(q.Description + "\n")
		}
		fmt.Fprintf(&b, "Progress: %d/%d\n", q.Progress, q.Target)
	}
	return b.String()
}

func renderActions(actions []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ACTIONS") + "\n")
	if len(actions) == 0 {
		b.WriteString(noActions + "\n")
		return b.String()
	}
	for i, a := range actions {
		if i >= 9 {
			break
		}
		fmt.Fprintf(&b, "%d) %s\n", i+1, strings.ReplaceAll(a, "_", " "))
	}
	return b.String()
}

func renderLog(entries []models.LogEntry, width int) string {
	lines := make([]string, 0, len(entries))
	wrap := lipgloss.NewStyle().Width(max(width, 20))
	for _, e := range entries {
		line := e.Message
		if style, ok := logStyles[e.Type]; ok {
			line = style.Render(line)
		}
		if e.Timestamp != "" {
			line = timestampStyle.Render("["+e.Timestamp+"]") + " " + line
		}
		lines = append(lines, wrap.Render(line))
	}
	return strings.Join(lines, "\n")
}

func renderSaveList(saves []models.SaveSummary, selected int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SAVES") + "\n")
	if len(saves) == 0 {
		b.WriteString(noSaves + "\n")
		return b.String()
	}
	for i, s := range saves {
		cursor := "  "
		name := s.Name
		if i == selected {
			cursor = "> "
			name = selectedStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s  %s\n", cursor, name, helpStyle.Render(formatSaveDate(s.Date)))
		fmt.Fprintf(&b, "    Level %d  Stage %s\n", s.PlayerLevel, s.Stage)
	}
	return b.String()
}

// formatSaveDate shows RFC 3339 dates in local time and anything else verbatim.
func formatSaveDate(raw string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Local().Format("Jan 2, 2006 3:04 PM")
		}
	}
	return raw
}

func (m model) View() string {
	var s string

	switch m.screen {
	case screenLogin:
		s = fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s\n\n%s",
			titleStyle.Render("The Codebound Chronicles"),
			"Log in with your identifier:",
			m.identifier.View(),
			m.statusLine(),
			helpStyle.Render(loginHelp),
		)

	case screenRegister:
		s = fmt.Sprintf("%s\n\n%s\n\n%s\n%s\n\n%s\n\n%s",
			titleStyle.Render("The Codebound Chronicles"),
			"Create an account:",
			m.displayName.View(),
			m.identifier.View(),
			m.statusLine(),
			helpStyle.Render(registerHelp),
		)

	case screenGame:
		s = m.gameView()
	}

	return "\n" + s + "\n"
}

func (m model) gameView() string {
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStory(),
		"",
		titleStyle.Render("LOG"),
		m.viewport.View(),
	)

	p := m.state.Player
	side := strings.Join([]string{
		renderStats(p),
		renderSkills(p),
		renderReputation(p),
		renderInventory(p.Inventory),
		renderQuests(p.Quests),
		renderActions(m.state.AvailableActions),
	}, "\n")
	right := panelStyle.Width(m.rightWidth()).Render(side)

	mainView := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(m.leftWidth()).Render(left),
		right,
	)

	help := gameHelp
	if m.opts.Advisor != nil {
		help += advisorHelp
	}

	parts := []string{mainView}
	switch m.overlay {
	case overlaySaveName:
		parts = append(parts, "\nSave as: "+m.saveName.View())
	case overlaySaveList:
		parts = append(parts, "\n"+renderSaveList(m.saves, m.selected))
		help = saveListHelp
	case overlayConfirm:
		if m.confirm != nil {
			parts = append(parts, "\n"+messageStyle.Render(m.confirm.prompt)+" "+helpStyle.Render("(y/n)"))
		}
	}
	if m.hint != "" {
		parts = append(parts, "\n"+helpStyle.Render(m.hint))
	}
	parts = append(parts, "\n"+m.statusLine(), helpStyle.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) statusLine() string {
	var line string
	switch {
	case m.working != "":
		line = m.spinner.View() + " " + workingStyle.Render(m.working)
	case m.message != "":
		line = messageStyle.Render(m.message)
	}
	if m.offline {
		line = strings.TrimSpace(line + "  " + errorStyle.Render(offlineNotice))
	}
	return line
}
