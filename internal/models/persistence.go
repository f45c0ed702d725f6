package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveDir is where local snapshot exports are written. The server owns real
// saves; these files are only a readable copy of what the mirror last held.
var SaveDir = ".saves"

type snapshotState struct {
	Player           PlayerState `yaml:"player"`
	AvailableActions []string    `yaml:"available_actions"`
	CurrentStage     Stage       `yaml:"current_stage"`
	StoryProgress    []string    `yaml:"story_progress"`
}

type snapshotLog struct {
	Entries []LogEntry `yaml:"entries"`
}

// ExportSnapshot writes state.yaml and log.yaml under SaveDir/name.
func ExportSnapshot(name string, s SessionState) error {
	if err := validName(name); err != nil {
		return err
	}
	dir := filepath.Join(SaveDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	stateData, err := yaml.Marshal(snapshotState{
		Player:           s.Player,
		AvailableActions: s.AvailableActions,
		CurrentStage:     s.CurrentStage,
		StoryProgress:    s.StoryProgress,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "state.yaml"), stateData, 0644); err != nil {
		return err
	}

	logData, err := yaml.Marshal(snapshotLog{Entries: s.GameLog})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "log.yaml"), logData, 0644)
}

// LoadSnapshot reads back an export written by ExportSnapshot.
func LoadSnapshot(name string) (SessionState, error) {
	if err := validName(name); err != nil {
		return SessionState{}, err
	}
	dir := filepath.Join(SaveDir, name)

	stateData, err := os.ReadFile(filepath.Join(dir, "state.yaml"))
	if err != nil {
		return SessionState{}, err
	}
	var state snapshotState
	if err := yaml.Unmarshal(stateData, &state); err != nil {
		return SessionState{}, fmt.Errorf("decode %s state: %w", name, err)
	}

	var log snapshotLog
	logData, err := os.ReadFile(filepath.Join(dir, "log.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return SessionState{}, err
	default:
		if err := yaml.Unmarshal(logData, &log); err != nil {
			return SessionState{}, fmt.Errorf("decode %s log: %w", name, err)
		}
	}

	return SessionState{
		Player:           state.Player,
		GameLog:          log.Entries,
		AvailableActions: state.AvailableActions,
		CurrentStage:     state.CurrentStage,
		StoryProgress:    state.StoryProgress,
	}, nil
}

// ListSnapshots returns the names of exports found in SaveDir.
func ListSnapshots() ([]string, error) {
	if _, err := os.Stat(SaveDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(SaveDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// state.yaml marks a complete export
		if _, err := os.Stat(filepath.Join(SaveDir, entry.Name(), "state.yaml")); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
