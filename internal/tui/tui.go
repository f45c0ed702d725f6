package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatianab/codebound/internal/mirror"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

type screen int

const (
	screenLogin screen = iota
	screenRegister
	screenGame
)

// overlay is what currently owns the keyboard on the game screen.
type overlay int

const (
	overlayNone overlay = iota
	overlaySaveName
	overlaySaveList
	overlayConfirm
)

// Options configure the program. Advisor may be nil.
type Options struct {
	Table           *story.Table
	Advisor         Advisor
	RefreshInterval time.Duration
	// Markdown renders story descriptions. Nil means plain wrapped text.
	Markdown bool
}

type confirmation struct {
	prompt string
	op     mirror.Op
	label  string
	run    tea.Cmd
}

type model struct {
	ctx    context.Context
	mirror *mirror.Mirror
	opts   Options

	screen  screen
	overlay overlay

	identifier  textinput.Model
	displayName textinput.Model
	saveName    textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	markdown    renderer

	state        models.SessionState
	loaded       bool
	presentation story.Presentation
	presented    bool
	lastUnknown  string
	offline      bool

	saves    []models.SaveSummary
	selected int
	confirm  *confirmation

	message  string
	hint     string
	inFlight map[mirror.Op]string
	working  string

	width  int
	height int
}

func NewModel(ctx context.Context, mir *mirror.Mirror, opts Options) model {
	if opts.Table == nil {
		opts.Table = story.Default()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}

	id := textinput.New()
	id.Placeholder = "Your identifier"
	id.Focus()
	id.CharLimit = 64
	id.Width = 32

	name := textinput.New()
	name.Placeholder = "Display name"
	name.CharLimit = 64
	name.Width = 32

	save := textinput.New()
	save.Placeholder = "Save name (blank for a dated name)"
	save.CharLimit = 80
	save.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = workingStyle

	m := model{
		ctx:         ctx,
		mirror:      mir,
		opts:        opts,
		screen:      screenLogin,
		identifier:  id,
		displayName: name,
		saveName:    save,
		spinner:     sp,
		inFlight:    make(map[mirror.Op]string),
		width:       100,
		height:      32,
	}
	m.viewport = viewport.New(m.leftWidth(), 8)
	m.markdown = newRenderer(opts.Markdown, m.leftWidth())
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		resized := msg.Width != m.width
		m.width = msg.Width
		m.height = msg.Height
		if resized {
			m.markdown = newRenderer(m.opts.Markdown, m.leftWidth())
		}
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenLogin, screenRegister:
			return m.updateAuth(msg)
		case screenGame:
			return m.updateGame(msg)
		}

	case spinner.TickMsg:
		if m.working == "" {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		// the next tick is scheduled regardless of how this refresh ends
		return m, tea.Batch(m.refresh(), m.scheduleTick())

	case syncedMsg:
		m.offline = msg.err != nil && !errors.Is(msg.err, mirror.ErrStale)
		m.sync()
		return m, nil

	case outcomeMsg:
		m.finish(msg.outcome)
		if msg.outcome.Applied && msg.outcome.Op == mirror.OpLoad {
			m.overlay = overlayNone
		}
		m.sync()
		return m, nil

	case authMsg:
		m.finish(msg.outcome)
		if !msg.outcome.Applied {
			return m, nil
		}
		if msg.outcome.Op == mirror.OpRegister {
			m.screen = screenLogin
			m.displayName.Blur()
			return m, m.identifier.Focus()
		}
		m.screen = screenGame
		m.identifier.Blur()
		return m, tea.Batch(m.resync(), m.scheduleTick())

	case savesMsg:
		m.finish(msg.outcome)
		if !msg.outcome.Applied {
			return m, nil
		}
		m.saves = msg.saves
		m.selected = min(m.selected, max(len(m.saves)-1, 0))
		m.overlay = overlaySaveList
		m.sync()
		return m, nil

	case suggestionMsg:
		m.done(mirror.Op("advisor"))
		if msg.err != nil {
			log.Printf("tui: advisor: %v", msg.err)
			m.hint = "The advisor is silent."
			return m, nil
		}
		m.hint = fmt.Sprintf("Advisor: %s. %s", msg.suggestion.Choice.Label(), msg.suggestion.Reason)
		return m, nil

	case recapMsg:
		m.done(mirror.Op("recap"))
		if msg.err != nil {
			log.Printf("tui: recap: %v", msg.err)
			m.hint = "No recap available."
			return m, nil
		}
		m.hint = "Recap: " + msg.text
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			log.Printf("tui: export %s: %v", msg.name, msg.err)
			m.message = "Could not export snapshot."
			return m, nil
		}
		m.message = "Snapshot exported as " + msg.name
		return m, nil
	}

	return m.updateInputs(msg)
}

func (m model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin:
		m.identifier, cmd = m.identifier.Update(msg)
	case m.screen == screenRegister:
		var c1, c2 tea.Cmd
		m.displayName, c1 = m.displayName.Update(msg)
		m.identifier, c2 = m.identifier.Update(msg)
		cmd = tea.Batch(c1, c2)
	case m.overlay == overlaySaveName:
		m.saveName, cmd = m.saveName.Update(msg)
	case m.screen == screenGame:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.screen == screenRegister {
			m.screen = screenLogin
			m.displayName.Blur()
			m.message = ""
			return m, m.identifier.Focus()
		}
		return m, tea.Quit

	case tea.KeyTab, tea.KeyShiftTab:
		if m.screen == screenLogin {
			m.screen = screenRegister
			m.message = ""
			m.identifier.Blur()
			return m, m.displayName.Focus()
		}
		// cycle focus between the two register fields
		if m.displayName.Focused() {
			m.displayName.Blur()
			return m, m.identifier.Focus()
		}
		m.identifier.Blur()
		return m, m.displayName.Focus()

	case tea.KeyEnter:
		if m.screen == screenLogin {
			return m, m.begin(mirror.OpLogin, "Logging in...", m.login(m.identifier.Value()))
		}
		return m, m.begin(mirror.OpRegister, "Registering...", m.register(m.displayName.Value(), m.identifier.Value()))
	}
	return m.updateInputs(msg)
}

func (m model) updateGame(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case overlaySaveName:
		switch msg.Type {
		case tea.KeyEsc:
			m.overlay = overlayNone
			m.saveName.Blur()
			m.saveName.Reset()
			return m, nil
		case tea.KeyEnter:
			name := m.saveName.Value()
			m.overlay = overlayNone
			m.saveName.Blur()
			m.saveName.Reset()
			return m, m.begin(mirror.OpSave, "Saving...", m.save(name))
		}
		return m.updateInputs(msg)

	case overlayConfirm:
		switch msg.String() {
		case "y", "Y", "enter":
			c := m.confirm
			m.confirm = nil
			m.overlay = c.returnTo()
			return m, m.begin(c.op, c.label, c.run)
		case "n", "N", "esc":
			m.overlay = m.confirm.returnTo()
			m.confirm = nil
		}
		return m, nil

	case overlaySaveList:
		switch msg.String() {
		case "esc", "l":
			m.overlay = overlayNone
			return m, nil
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.saves)-1 {
				m.selected++
			}
			return m, nil
		case "enter":
			if save, ok := m.selectedSave(); ok {
				return m, m.begin(mirror.OpLoad, "Loading...", m.load(save.ID))
			}
			return m, nil
		case "x", "delete":
			if save, ok := m.selectedSave(); ok {
				m.ask(confirmation{
					prompt: fmt.Sprintf("Are you sure you want to delete %q?", save.Name),
					op:     mirror.OpDelete,
					label:  "Deleting...",
					run:    m.deleteSave(save.ID),
				})
			}
			return m, nil
		}
		return m, nil
	}

	key := msg.String()
	switch key {
	case "q":
		return m, tea.Quit
	case "a", "b", "c", "d":
		if !m.presented || m.presentation.Terminal() {
			return m, nil
		}
		if _, ok := m.presentation.Choice(key); !ok {
			return m, nil
		}
		m.hint = ""
		return m, m.begin(mirror.OpAction, "Loading...", m.choose(key))
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i, _ := strconv.Atoi(key)
		if i > len(m.state.AvailableActions) {
			return m, nil
		}
		return m, m.begin(mirror.OpAction, "Loading...", m.submit(m.state.AvailableActions[i-1]))
	case "enter":
		if m.presented && m.presentation.Terminal() {
			m.askRestart()
		}
		return m, nil
	case "R":
		m.askRestart()
		return m, nil
	case "s":
		m.overlay = overlaySaveName
		return m, m.saveName.Focus()
	case "l":
		return m, m.begin(mirror.OpListSaves, "Loading saves...", m.listSaves())
	case "?":
		if m.opts.Advisor == nil || !m.presented || m.presentation.Terminal() {
			return m, nil
		}
		return m, m.begin(mirror.Op("advisor"), "Consulting the advisor...", m.suggest(m.presentation, m.state))
	case "p":
		if m.opts.Advisor == nil || len(m.state.GameLog) == 0 {
			return m, nil
		}
		return m, m.begin(mirror.Op("recap"), "Recalling...", m.recap(m.presentation, m.state.GameLog))
	case "e":
		if !m.loaded {
			return m, nil
		}
		return m, exportSnapshot("snapshot-"+time.Now().Format("20060102-150405"), m.state)
	}

	return m.updateInputs(msg)
}

func (c *confirmation) returnTo() overlay {
	if c != nil && c.op == mirror.OpDelete {
		return overlaySaveList
	}
	return overlayNone
}

func (m *model) ask(c confirmation) {
	m.confirm = &c
	m.overlay = overlayConfirm
}

func (m *model) askRestart() {
	m.ask(confirmation{
		prompt: "Are you sure you want to restart your adventure? This will reset all progress and start from the beginning.",
		op:     mirror.OpRestart,
		label:  "Restarting...",
		run:    m.restart(),
	})
}

func (m model) selectedSave() (models.SaveSummary, bool) {
	if m.selected < 0 || m.selected >= len(m.saves) {
		return models.SaveSummary{}, false
	}
	return m.saves[m.selected], true
}

// begin shows the working indicator for op and runs cmd. The spinner only
// ticks while something is in flight.
func (m *model) begin(op mirror.Op, label string, cmd tea.Cmd) tea.Cmd {
	idle := len(m.inFlight) == 0
	m.inFlight[op] = label
	m.working = label
	if idle {
		return tea.Batch(cmd, m.spinner.Tick)
	}
	return cmd
}

func (m *model) done(op mirror.Op) {
	delete(m.inFlight, op)
	m.working = ""
	for _, label := range m.inFlight {
		m.working = label
		break
	}
}

// finish records an outcome. A busy outcome means the original call is still
// running, so its indicator stays up.
func (m *model) finish(out mirror.Outcome) {
	if !errors.Is(out.Err, mirror.ErrBusy) {
		m.done(out.Op)
	}
	if out.Message != "" {
		m.message = out.Message
	}
}

// sync copies the mirror into the view and re-evaluates the story stage.
func (m *model) sync() {
	state, loaded := m.mirror.Snapshot()
	if !loaded {
		return
	}
	m.state = state
	m.loaded = true

	if p, ok := m.opts.Table.Present(state.CurrentStage); ok {
		m.presentation = p
		m.presented = true
		m.lastUnknown = ""
	} else if raw := state.CurrentStage.String(); raw != m.lastUnknown {
		// keep showing the previous stage, but say so once per bad value
		log.Printf("tui: server reported unknown stage %q; keeping previous story view", raw)
		m.lastUnknown = raw
	}

	m.layout()
	m.viewport.SetContent(renderLog(m.state.GameLog, m.leftWidth()))
	m.viewport.GotoBottom()
}

// Run starts the program and blocks until the player quits.
func Run(ctx context.Context, mir *mirror.Mirror, opts Options) error {
	p := tea.NewProgram(NewModel(ctx, mir, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
