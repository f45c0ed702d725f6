package models

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// PlayerState is the player's attributes as last reported by the server.
type PlayerState struct {
	Name       string         `json:"name" yaml:"name"`
	Level      int            `json:"level" yaml:"level"`
	HP         int            `json:"hp" yaml:"hp"`
	MaxHP      int            `json:"max_hp" yaml:"max_hp"`
	Exp        int            `json:"exp" yaml:"exp"`
	ExpToNext  int            `json:"exp_to_next" yaml:"exp_to_next"`
	Credits    int            `json:"credits" yaml:"credits"`
	Gold       int            `json:"gold,omitempty" yaml:"gold,omitempty"` // older servers
	Inventory  []string       `json:"inventory" yaml:"inventory"`
	Location   string         `json:"location" yaml:"location"`
	Quests     []Quest        `json:"quests" yaml:"quests"`
	Skills     map[string]int `json:"skills,omitempty" yaml:"skills,omitempty"`
	Reputation map[string]int `json:"reputation,omitempty" yaml:"reputation,omitempty"`
}

// Currency returns credits, or gold when the server still reports the old field.
func (p PlayerState) Currency() int {
	if p.Credits == 0 && p.Gold != 0 {
		return p.Gold
	}
	return p.Credits
}

// Skill returns the named skill level. Unreported skills count as level 1.
func (p PlayerState) Skill(name string) int {
	if v, ok := p.Skills[name]; ok && v != 0 {
		return v
	}
	return 1
}

// Standing returns the reputation with a faction, zero when unreported.
func (p PlayerState) Standing(faction string) int {
	return p.Reputation[faction]
}

// Quest is a single quest and how far along it is.
type Quest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Progress    int    `json:"progress" yaml:"progress"`
	Target      int    `json:"target" yaml:"target"`
}

func (q Quest) Complete() bool {
	return q.Progress >= q.Target
}

// LogEntry is one line of the game log. Type only changes how it is styled.
type LogEntry struct {
	Message   string `json:"message" yaml:"message"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// SessionState is the full snapshot of server-side game state.
type SessionState struct {
	Player           PlayerState `json:"player" yaml:"player"`
	GameLog          []LogEntry  `json:"game_log" yaml:"game_log"`
	AvailableActions []string    `json:"available_actions" yaml:"available_actions"`
	CurrentStage     Stage       `json:"current_stage" yaml:"current_stage"`
	StoryProgress    []string    `json:"story_progress" yaml:"story_progress"`
}

// Clone returns a deep copy so callers can render without holding locks.
func (s SessionState) Clone() SessionState {
	out := s
	out.Player.Inventory = slices.Clone(s.Player.Inventory)
	out.Player.Quests = slices.Clone(s.Player.Quests)
	out.Player.Skills = maps.Clone(s.Player.Skills)
	out.Player.Reputation = maps.Clone(s.Player.Reputation)
	out.GameLog = slices.Clone(s.GameLog)
	out.AvailableActions = slices.Clone(s.AvailableActions)
	out.StoryProgress = slices.Clone(s.StoryProgress)
	return out
}

// SaveSummary describes a stored save for listing.
type SaveSummary struct {
	ID          string `json:"save_id" yaml:"save_id"`
	Name        string `json:"save_name" yaml:"save_name"`
	Date        string `json:"save_date" yaml:"save_date"`
	PlayerLevel int    `json:"player_level" yaml:"player_level"`
	Stage       Stage  `json:"current_stage" yaml:"current_stage"`
}

const completeToken = "complete"

// Stage is the current-stage marker: a positive stage number or "complete".
// Any other value the server sends is kept as-is and reported as unknown.
type Stage struct {
	raw string
}

// Complete is the terminal stage.
var Complete = Stage{raw: completeToken}

// StageNumber returns the stage for a numbered narrative beat.
func StageNumber(n int) Stage {
	return Stage{raw: strconv.Itoa(n)}
}

// ParseStage wraps a raw marker as received from the server.
func ParseStage(raw string) Stage {
	return Stage{raw: raw}
}

// Number reports the stage number if the marker is a positive integer.
func (s Stage) Number() (int, bool) {
	n, err := strconv.Atoi(s.raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (s Stage) IsComplete() bool {
	return s.raw == completeToken
}

func (s Stage) String() string {
	return s.raw
}

func (s Stage) MarshalJSON() ([]byte, error) {
	if n, ok := s.Number(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(s.raw)
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		s.raw = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &s.raw)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	s.raw = n.String()
	return nil
}

func (s Stage) MarshalYAML() (any, error) {
	if n, ok := s.Number(); ok {
		return n, nil
	}
	return s.raw, nil
}

func (s *Stage) UnmarshalYAML(value *yaml.Node) error {
	s.raw = value.Value
	return nil
}
