package tui

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatianab/codebound/internal/advisor"
	"github.com/tatianab/codebound/internal/client"
	"github.com/tatianab/codebound/internal/devserver"
	"github.com/tatianab/codebound/internal/mirror"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

func newTestModel(t *testing.T, h http.Handler) (model, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	mir := mirror.New(c, mirror.Options{Logger: log.New(io.Discard, "", 0)})
	return NewModel(context.Background(), mir, Options{RefreshInterval: time.Hour}), srv
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// collect runs cmd and any batched children concurrently and returns the
// messages produced before the deadline. Timers that outlive it are dropped.
func collect(cmd tea.Cmd, deadline time.Time) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(time.Until(deadline)):
		return nil
	}

	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out []tea.Msg
	)
	for _, c := range batch {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs := collect(c, deadline)
			mu.Lock()
			out = append(out, msgs...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// send delivers msg and then feeds back the messages our own commands produce.
// Cursor blinks, spinner ticks and the refresh timer are not followed.
func send(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(model)
	for _, out := range collect(cmd, time.Now().Add(time.Second)) {
		switch out.(type) {
		case syncedMsg, outcomeMsg, authMsg, savesMsg, suggestionMsg, recapMsg, exportedMsg:
			m = send(t, m, out)
		}
	}
	return m
}

func loggedIn(t *testing.T, opts ...devserver.Option) (model, *httptest.Server, *devserver.Server) {
	t.Helper()
	server := devserver.New(opts...)
	m, srv := newTestModel(t, server)

	m = send(t, m, key("tab"))
	if m.screen != screenRegister {
		t.Fatalf("Expected register screen, got %v", m.screen)
	}
	m.displayName.SetValue("Neo")
	m.identifier.SetValue("42")
	m = send(t, m, key("enter"))
	if m.screen != screenLogin {
		t.Fatalf("Expected to return to login after registering, message %q", m.message)
	}
	m = send(t, m, key("enter"))
	if m.screen != screenGame {
		t.Fatalf("Expected game screen after login, message %q", m.message)
	}
	return m, srv, server
}

func TestLoginLoadsFirstStage(t *testing.T) {
	m, _, _ := loggedIn(t)

	if !m.loaded || m.state.Player.Name != "Neo" {
		t.Fatalf("Expected state for Neo, got %+v", m.state.Player)
	}
	if m.presentation.Title != "The Awakening" {
		t.Errorf("Expected The Awakening, got %q", m.presentation.Title)
	}
	view := m.View()
	for _, want := range []string{"The Awakening", "A) Trust Lira", "D) Investigate", "INVENTORY", "Empty", "No active quests", "1) rest"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
	if m.working != "" {
		t.Errorf("Working indicator left on: %q", m.working)
	}
}

func TestLoginValidation(t *testing.T) {
	m, _ := newTestModel(t, devserver.New())
	m = send(t, m, key("enter"))
	if m.screen != screenLogin || m.message != "Please enter your identifier" {
		t.Errorf("Expected validation message, got screen %v message %q", m.screen, m.message)
	}
}

func TestChoiceIsObservedAfterRefresh(t *testing.T) {
	m, _, server := loggedIn(t)

	m = send(t, m, key("b"))
	if m.message != "You chose: Question everything about this place" {
		t.Errorf("Unexpected message %q", m.message)
	}
	if m.presentation.Title != "The Trials Begin" {
		t.Errorf("Expected stage 2, got %q", m.presentation.Title)
	}
	if got := server.State().CurrentStage; got != m.state.CurrentStage {
		t.Errorf("Mirror %v differs from server %v", m.state.CurrentStage, got)
	}
}

func TestCompleteOffersOnlyRestart(t *testing.T) {
	done := devserver.NewGame()
	done.CurrentStage = models.Complete
	m, _, _ := loggedIn(t, devserver.WithState(done))

	view := m.View()
	if !strings.Contains(view, story.RestartLabel) || !strings.Contains(view, "STORY COMPLETE") {
		t.Errorf("Expected the restart affordance:\n%s", view)
	}
	if strings.Contains(view, "A) ") {
		t.Errorf("Complete stage must not show choices:\n%s", view)
	}

	m = send(t, m, key("a"))
	if m.working != "" {
		t.Errorf("Choice keys should do nothing at the end")
	}

	m = send(t, m, key("enter"))
	if m.overlay != overlayConfirm {
		t.Fatalf("Restart needs confirmation")
	}
	m = send(t, m, key("y"))
	if m.message != "Game restarted!" || m.presentation.Title != "The Awakening" {
		t.Errorf("Restart not applied: message %q title %q", m.message, m.presentation.Title)
	}
}

func TestRestartCanBeCancelled(t *testing.T) {
	m, _, server := loggedIn(t)
	m = send(t, m, key("a"))

	m = send(t, m, key("R"))
	m = send(t, m, key("n"))
	if m.overlay != overlayNone {
		t.Errorf("Expected dialog closed")
	}
	if server.State().CurrentStage != models.StageNumber(2) {
		t.Errorf("Cancelled restart reached the server")
	}
}

func TestActionTransportFailure(t *testing.T) {
	m, srv, _ := loggedIn(t)
	before := m.state

	srv.Close()
	m = send(t, m, key("a"))

	if m.message != "Error performing action!" {
		t.Errorf("Expected generic failure message, got %q", m.message)
	}
	if m.state.CurrentStage != before.CurrentStage || m.presentation.Title != "The Awakening" {
		t.Errorf("State changed after a failed action")
	}
	if m.working != "" {
		t.Errorf("Indicator should clear after failure")
	}

	m = send(t, m, syncedMsg{err: client.ErrTransport})
	if !strings.Contains(m.View(), offlineNotice) {
		t.Errorf("Expected the offline notice after a failed refresh")
	}
}

func TestEmptySaveList(t *testing.T) {
	m, _, _ := loggedIn(t)

	m = send(t, m, key("l"))
	if m.overlay != overlaySaveList {
		t.Fatalf("Expected the save list to open")
	}
	view := m.View()
	if !strings.Contains(view, noSaves) {
		t.Errorf("Expected the empty placeholder:\n%s", view)
	}

	m = send(t, m, key("enter"))
	m = send(t, m, key("x"))
	if m.overlay != overlaySaveList {
		t.Errorf("Nothing to load or delete; list should stay open")
	}
}

func TestSaveThenLoadFromList(t *testing.T) {
	m, _, _ := loggedIn(t)

	m = send(t, m, key("s"))
	if m.overlay != overlaySaveName {
		t.Fatalf("Expected save name prompt")
	}
	m.saveName.SetValue("before the trials")
	m = send(t, m, key("enter"))
	if m.message != "Game saved as 'before the trials'" {
		t.Errorf("Unexpected save message %q", m.message)
	}

	m = send(t, m, key("c"))
	if m.presentation.Title != "The Trials Begin" {
		t.Fatalf("Expected to advance, got %q", m.presentation.Title)
	}

	m = send(t, m, key("l"))
	if !strings.Contains(m.View(), "before the trials") || !strings.Contains(m.View(), "Stage 1") {
		t.Errorf("Save row missing:\n%s", m.View())
	}
	m = send(t, m, key("enter"))
	if m.overlay != overlayNone {
		t.Errorf("Save list should close after loading")
	}
	if m.presentation.Title != "The Awakening" {
		t.Errorf("Expected loaded stage 1, got %q", m.presentation.Title)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, _, _ := loggedIn(t)
	m = send(t, m, key("s"))
	m.saveName.SetValue("doomed")
	m = send(t, m, key("enter"))

	m = send(t, m, key("l"))
	m = send(t, m, key("x"))
	if m.overlay != overlayConfirm {
		t.Fatalf("Delete needs confirmation")
	}
	m = send(t, m, key("y"))
	if m.overlay != overlaySaveList {
		t.Errorf("Expected to return to the list")
	}
	if len(m.saves) != 0 || !strings.Contains(m.View(), noSaves) {
		t.Errorf("Expected an empty list after delete, got %+v", m.saves)
	}
	if m.message != "Save deleted" {
		t.Errorf("Unexpected message %q", m.message)
	}
}

// stageServer serves a game state whose stage the test controls.
type stageServer struct {
	mu    sync.Mutex
	stage string
}

func (s *stageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stage := s.stage
	s.mu.Unlock()
	switch r.URL.Path {
	case "/login":
		io.WriteString(w, `{"success":true,"message":"hi"}`)
	case "/api/update-actions":
		io.WriteString(w, `{"available_actions":[]}`)
	default:
		json.NewEncoder(w).Encode(map[string]any{
			"player":        map[string]any{"name": "Anomaly", "level": 1, "hp": 10, "max_hp": 10},
			"current_stage": json.RawMessage(stage),
		})
	}
}

func TestUnknownStageKeepsPreviousPresentation(t *testing.T) {
	srv := &stageServer{stage: `3`}
	m, _ := newTestModel(t, srv)
	m.identifier.SetValue("1")
	m = send(t, m, key("enter"))
	if m.presentation.Title != "The Revelation" {
		t.Fatalf("Expected stage 3, got %q", m.presentation.Title)
	}

	for _, bad := range []string{`99`, `"epilogue"`, `0`} {
		srv.mu.Lock()
		srv.stage = bad
		srv.mu.Unlock()

		m = send(t, m, m.refresh()())
		if m.state.CurrentStage.String() == "3" {
			t.Fatalf("Refresh did not replace state for %s", bad)
		}
		if m.presentation.Title != "The Revelation" || len(m.presentation.Choices) != 4 {
			t.Errorf("Stage %s changed the presentation to %+v", bad, m.presentation)
		}
	}
}

func TestTickRefreshesAndReschedules(t *testing.T) {
	srv := &stageServer{stage: `1`}
	m, _ := newTestModel(t, srv)
	m.identifier.SetValue("1")
	m = send(t, m, key("enter"))
	if m.presentation.Title != "The Awakening" {
		t.Fatalf("Expected stage 1, got %q", m.presentation.Title)
	}

	srv.mu.Lock()
	srv.stage = `2`
	srv.mu.Unlock()

	m.opts.RefreshInterval = 10 * time.Millisecond
	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(model)

	var synced, rescheduled bool
	for _, msg := range collect(cmd, time.Now().Add(time.Second)) {
		switch msg := msg.(type) {
		case syncedMsg:
			synced = true
			m = send(t, m, msg)
		case tickMsg:
			rescheduled = true
		}
	}
	if !synced {
		t.Errorf("Tick did not refresh")
	}
	if !rescheduled {
		t.Errorf("Tick did not schedule the next tick")
	}
	if m.state.CurrentStage != models.StageNumber(2) || m.presentation.Title != "The Trials Begin" {
		t.Errorf("Expected the server's stage 2 after the tick, got %v %q", m.state.CurrentStage, m.presentation.Title)
	}
}

func TestTickReschedulesWhileOffline(t *testing.T) {
	m, srv := newTestModel(t, &stageServer{stage: `1`})
	m.identifier.SetValue("1")
	m = send(t, m, key("enter"))
	srv.Close()

	m.opts.RefreshInterval = 10 * time.Millisecond
	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(model)

	var rescheduled bool
	for _, msg := range collect(cmd, time.Now().Add(time.Second)) {
		switch msg := msg.(type) {
		case syncedMsg:
			m = send(t, m, msg)
		case tickMsg:
			rescheduled = true
		}
	}
	if !rescheduled {
		t.Errorf("A failed refresh must not stop the timer")
	}
	if !m.offline || m.presentation.Title != "The Awakening" {
		t.Errorf("Expected offline with the previous view, got offline=%v %q", m.offline, m.presentation.Title)
	}
}

type fakeAdvisor struct{}

func (fakeAdvisor) SuggestChoice(_ context.Context, p story.Presentation, _ models.SessionState) (advisor.Suggestion, error) {
	c, _ := p.Choice("c")
	return advisor.Suggestion{Choice: c, Reason: "Knowledge first."}, nil
}

func (fakeAdvisor) Recap(context.Context, story.Presentation, []models.LogEntry) (string, error) {
	return "You woke in Nexis.", nil
}

func TestAdvisorHint(t *testing.T) {
	m, _, _ := loggedIn(t)
	m.opts.Advisor = fakeAdvisor{}

	m = send(t, m, key("?"))
	if !strings.Contains(m.hint, "C) Focus on learning the three pillars") {
		t.Errorf("Unexpected hint %q", m.hint)
	}
	if !strings.Contains(m.View(), "?: hint") {
		t.Errorf("Help should mention the advisor keys")
	}

	m = send(t, m, key("a"))
	m = send(t, m, key("p"))
	if m.hint != "Recap: You woke in Nexis." {
		t.Errorf("Unexpected recap %q", m.hint)
	}
}

func TestExportSnapshot(t *testing.T) {
	prev := models.SaveDir
	models.SaveDir = t.TempDir()
	t.Cleanup(func() { models.SaveDir = prev })
	m, _, _ := loggedIn(t)

	m = send(t, m, key("e"))
	if !strings.HasPrefix(m.message, "Snapshot exported as snapshot-") {
		t.Fatalf("Unexpected message %q", m.message)
	}
	names, err := models.ListSnapshots()
	if err != nil || len(names) != 1 {
		t.Errorf("Expected one snapshot, got %v (%v)", names, err)
	}
}
