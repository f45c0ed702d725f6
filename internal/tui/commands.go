package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatianab/codebound/internal/advisor"
	"github.com/tatianab/codebound/internal/mirror"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

type tickMsg time.Time

type syncedMsg struct {
	err error
}

type outcomeMsg struct {
	outcome mirror.Outcome
}

type authMsg struct {
	outcome mirror.Outcome
}

type savesMsg struct {
	saves   []models.SaveSummary
	outcome mirror.Outcome
}

type suggestionMsg struct {
	suggestion advisor.Suggestion
	err        error
}

type recapMsg struct {
	text string
	err  error
}

type exportedMsg struct {
	name string
	err  error
}

func (m model) scheduleTick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refresh() tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return syncedMsg{err: mir.Refresh(ctx)}
	}
}

func (m model) resync() tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		err := mir.Refresh(ctx)
		// actions failing only keeps the old list
		_ = mir.RefreshActions(ctx)
		return syncedMsg{err: err}
	}
}

func (m model) choose(key string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return outcomeMsg{mir.Choose(ctx, key)}
	}
}

func (m model) submit(action string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return outcomeMsg{mir.Submit(ctx, action, "")}
	}
}

func (m model) restart() tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return outcomeMsg{mir.Restart(ctx)}
	}
}

func (m model) save(name string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return outcomeMsg{mir.Save(ctx, name)}
	}
}

func (m model) load(saveID string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return outcomeMsg{mir.Load(ctx, saveID)}
	}
}

func (m model) listSaves() tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		saves, out := mir.ListSaves(ctx)
		return savesMsg{saves: saves, outcome: out}
	}
}

func (m model) deleteSave(saveID string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		saves, out := mir.Delete(ctx, saveID)
		return savesMsg{saves: saves, outcome: out}
	}
}

func (m model) login(identifier string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return authMsg{mir.Login(ctx, identifier)}
	}
}

func (m model) register(displayName, identifier string) tea.Cmd {
	mir, ctx := m.mirror, m.ctx
	return func() tea.Msg {
		return authMsg{mir.Register(ctx, displayName, identifier)}
	}
}

func (m model) suggest(p story.Presentation, s models.SessionState) tea.Cmd {
	adv, ctx := m.opts.Advisor, m.ctx
	return func() tea.Msg {
		suggestion, err := adv.SuggestChoice(ctx, p, s)
		return suggestionMsg{suggestion, err}
	}
}

func (m model) recap(p story.Presentation, entries []models.LogEntry) tea.Cmd {
	adv, ctx := m.opts.Advisor, m.ctx
	return func() tea.Msg {
		text, err := adv.Recap(ctx, p, entries)
		return recapMsg{text, err}
	}
}

func exportSnapshot(name string, s models.SessionState) tea.Cmd {
	return func() tea.Msg {
		return exportedMsg{name: name, err: models.ExportSnapshot(name, s)}
	}
}

// Advisor is the optional hint provider. *advisor.Advisor implements it.
type Advisor interface {
	SuggestChoice(ctx context.Context, p story.Presentation, s models.SessionState) (advisor.Suggestion, error)
	Recap(ctx context.Context, p story.Presentation, entries []models.LogEntry) (string, error)
}
