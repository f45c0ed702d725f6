// Package devserver is an in-memory game server that speaks the same HTTP
// contract as the real backend. It keeps just enough rules to walk the story
// end to end; it is meant for local play and tests, not for balance.
package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

const (
	logWindow   = 10
	restCost    = 10
	cookieName  = "codebound_session"
	homeRegion  = "nexis"
	returnHome  = "return_to_nexis"
	questPrefix = "quest_"
)

type questTemplate struct {
	Name        string
	Description string
	Target      int
}

var questBoard = map[string]questTemplate{
	"signal_trace":  {Name: "Signal Trace", Description: "Follow three corrupted signals to their source", Target: 3},
	"data_recovery": {Name: "Data Recovery", Description: "Recover five lost memory fragments", Target: 5},
}

type savedGame struct {
	summary models.SaveSummary
	state   models.SessionState
}

// Server holds one shared game session, the registered accounts and the saves.
type Server struct {
	mu       sync.Mutex
	table    *story.Table
	state    models.SessionState
	accounts map[string]string // identifier -> display name
	saves    []savedGame
	now      func() time.Time
	newID    func() string
	router   *mux.Router
}

type Option func(*Server)

// WithClock fixes the time used for log timestamps and save dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIDs replaces the save id generator.
func WithIDs(newID func() string) Option {
	return func(s *Server) { s.newID = newID }
}

// WithTable serves a different stage table.
func WithTable(t *story.Table) Option {
	return func(s *Server) { s.table = t }
}

// WithState starts from the given session instead of a fresh one.
func WithState(state models.SessionState) Option {
	return func(s *Server) { s.state = state.Clone() }
}

// FromSnapshot starts from a session exported with models.ExportSnapshot, so an
// exported game can be resumed offline.
func FromSnapshot(name string) (Option, error) {
	state, err := models.LoadSnapshot(name)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return WithState(state), nil
}

func New(opts ...Option) *Server {
	s := &Server{
		table:    story.Default(),
		state:    NewGame(),
		accounts: make(map[string]string),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/game-state", s.handleGameState).Methods(http.MethodGet)
	api.HandleFunc("/update-actions", s.handleUpdateActions).Methods(http.MethodGet)
	api.HandleFunc("/action", s.handleAction).Methods(http.MethodPost)
	api.HandleFunc("/restart-game", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/save-game", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/list-saves", s.handleListSaves).Methods(http.MethodGet)
	api.HandleFunc("/load-game", s.handleLoad).Methods(http.MethodPost)
	api.HandleFunc("/delete-save", s.handleDelete).Methods(http.MethodPost)
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// State returns a copy of the full session, log included.
func (s *Server) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// NewGame is the session a fresh or restarted game begins with.
func NewGame() models.SessionState {
	return models.SessionState{
		Player: models.PlayerState{
			Name:      "Anomaly",
			Level:     1,
			HP:        100,
			MaxHP:     100,
			Exp:       0,
			ExpToNext: 100,
			Credits:   50,
			Inventory: []string{},
			Location:  homeRegion,
			Quests:    []models.Quest{},
			Skills:    map[string]int{"decryption": 1, "manipulation": 1, "reconstruction": 1},
			Reputation: map[string]int{
				"codekeepers": 0,
				"resistance":  0,
				"neutral":     0,
			},
		},
		GameLog:          []models.LogEntry{},
		AvailableActions: []string{},
		CurrentStage:     models.StageNumber(1),
		StoryProgress:    []string{},
	}
}

type result struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	GameState *models.SessionState `json:"game_state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("devserver: encode response: %v", err)
	}
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, result{Success: false, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"npm"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.Identifier)
	if id == "" {
		fail(w, http.StatusOK, "Please enter your NPM")
		return
	}

	s.mu.Lock()
	name, ok := s.accounts[id]
	if ok {
		s.state.Player.Name = name
	}
	s.mu.Unlock()

	if !ok {
		fail(w, http.StatusOK, "NPM not registered")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: id, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Welcome back, " + name + "!"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"username"`
		Identifier  string `json:"npm"`
	}
	if !decode(w, r, &req) {
		return
	}
	name, id := strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.Identifier)
	if name == "" || id == "" {
		fail(w, http.StatusOK, "Please fill in all fields")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.accounts[id]; taken {
		fail(w, http.StatusOK, "NPM already registered")
		return
	}
	s.accounts[id] = name
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Registration successful! Please log in."})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if n := len(snapshot.GameLog); n > logWindow {
		snapshot.GameLog = snapshot.GameLog[n-logWindow:]
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleUpdateActions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.state.Player.Location == homeRegion {
		s.state.AvailableActions = []string{"rest"}
		for _, id := range sortedQuestIDs() {
			s.state.AvailableActions = append(s.state.AvailableActions, questPrefix+id)
		}
	} else {
		s.state.AvailableActions = []string{returnHome}
	}
	actions := slices.Clone(s.state.AvailableActions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string][]string{"available_actions": actions})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Target string `json:"target"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	res := s.perform(req.Action, req.Target)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, res)
}

// perform applies one action. Callers hold s.mu.
func (s *Server) perform(action, target string) result {
	switch {
	case action == story.ChoiceAction:
		return s.chooseLocked(target)
	case action == "rest":
		return s.restLocked()
	case action == returnHome:
		s.state.Player.Location = homeRegion
		s.logLocked("[TRAVEL] Returned to Nexis", "action")
		return result{Success: true, Message: "You return to Nexis."}
	case strings.HasPrefix(action, questPrefix):
		return s.acceptQuestLocked(strings.TrimPrefix(action, questPrefix))
	case action == "quest":
		return s.acceptQuestLocked(target)
	}
	return result{Success: false, Message: "Unknown action"}
}

func (s *Server) chooseLocked(key string) result {
	stage := s.state.CurrentStage
	if stage.IsComplete() {
		return result{Success: false, Message: "Your story is already complete."}
	}
	p, ok := s.table.Present(stage)
	if !ok {
		return result{Success: false, Message: "Unknown story stage"}
	}
	choice, ok := p.Choice(key)
	if !ok {
		return result{Success: false, Message: "Invalid choice"}
	}

	n, _ := stage.Number()
	s.state.StoryProgress = append(s.state.StoryProgress, "stage"+stage.String()+":"+key)
	s.state.CurrentStage = s.table.Next(n)
	s.logLocked("[STORY] "+choice.Label(), "story")
	if s.state.CurrentStage.IsComplete() {
		s.logLocked("Your journey through the Source is complete.", "level_up")
	}
	return result{Success: true, Message: "You chose: " + choice.Text}
}

func (s *Server) restLocked() result {
	p := &s.state.Player
	if p.Credits < restCost {
		return result{Success: false, Message: "Not enough credits to rest!"}
	}
	p.Credits -= restCost
	p.HP = p.MaxHP
	s.logLocked(fmt.Sprintf("[REST] Recovered HP (-%d credits)", restCost), "action")
	return result{Success: true, Message: fmt.Sprintf("You rested and recovered all HP! Cost: %d credits", restCost)}
}

func (s *Server) acceptQuestLocked(id string) result {
	tmpl, ok := questBoard[id]
	if !ok {
		return result{Success: false, Message: "Unknown quest"}
	}
	for _, q := range s.state.Player.Quests {
		if q.Name == tmpl.Name {
			return result{Success: false, Message: "Quest already accepted"}
		}
	}
	s.state.Player.Quests = append(s.state.Player.Quests, models.Quest{
		Name:        tmpl.Name,
		Description: tmpl.Description,
		Target:      tmpl.Target,
	})
	s.logLocked("[QUEST] Accepted: "+tmpl.Name, "quest")
	return result{Success: true, Message: "Quest accepted: " + tmpl.Name}
}

func (s *Server) logLocked(message, kind string) {
	s.state.GameLog = append(s.state.GameLog, models.LogEntry{
		Message:   message,
		Type:      kind,
		Timestamp: s.now().Format("15:04:05"),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	name := s.state.Player.Name
	s.state = NewGame()
	s.state.Player.Name = name
	s.logLocked("A new adventure begins.", "system")
	snapshot := s.state.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result{Success: true, Message: "Game restarted!", GameState: &snapshot})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"save_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fail(w, http.StatusOK, "Save name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedGame{
		summary: models.SaveSummary{
			ID:          s.newID(),
			Name:        name,
			Date:        s.now().UTC().Format(time.RFC3339),
			PlayerLevel: s.state.Player.Level,
			Stage:       s.state.CurrentStage,
		},
		state: s.state.Clone(),
	})
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Game saved as '" + name + "'"})
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	// newest first
	summaries := make([]models.SaveSummary, 0, len(s.saves))
	for i := len(s.saves) - 1; i >= 0; i-- {
		summaries = append(summaries, s.saves[i].summary)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, struct {
		Success bool                 `json:"success"`
		Saves   []models.SaveSummary `json:"saves"`
	}{true, summaries})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"save_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	i := s.findSaveLocked(req.ID)
	if i < 0 {
		s.mu.Unlock()
		fail(w, http.StatusOK, "Save not found")
		return
	}
	s.state = s.saves[i].state.Clone()
	name := s.saves[i].summary.Name
	snapshot := s.state.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result{Success: true, Message: "Loaded '" + name + "'", GameState: &snapshot})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"save_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findSaveLocked(req.ID)
	if i < 0 {
		fail(w, http.StatusOK, "Save not found")
		return
	}
	s.saves = slices.Delete(s.saves, i, i+1)
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Save deleted"})
}

func (s *Server) findSaveLocked(id string) int {
	return slices.IndexFunc(s.saves, func(g savedGame) bool { return g.summary.ID == id })
}

func sortedQuestIDs() []string {
	ids := make([]string, 0, len(questBoard))
	for id := range questBoard {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
