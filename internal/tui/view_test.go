package tui

import (
	"strings"
	"testing"

	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

func plain(s string) string { return s }

func TestRenderPresentationChoices(t *testing.T) {
	p, ok := story.Default().Present(models.StageNumber(2))
	if !ok {
		t.Fatal("stage 2 missing")
	}
	out := renderPresentation(p, plain)

	last := -1
	for _, label := range []string{"A) Focus on personal advancement", "B) ", "C) ", "D) Sabotage the trials subtly"} {
		i := strings.Index(out, label)
		if i < 0 {
			t.Fatalf("Missing %q in:\n%s", label, out)
		}
		if i < last {
			t.Errorf("%q is out of order", label)
		}
		last = i
	}
	if strings.Contains(out, story.RestartLabel) {
		t.Errorf("Restart shown on a playable stage")
	}
}

func TestRenderPresentationComplete(t *testing.T) {
	p, _ := story.Default().Present(models.Complete)
	out := renderPresentation(p, plain)
	if !strings.Contains(out, story.CompleteTitle) || !strings.Contains(out, story.RestartLabel) {
		t.Errorf("Expected completion payload:\n%s", out)
	}
	for _, k := range []string{"A) ", "B) ", "C) ", "D) "} {
		if strings.Contains(out, k) {
			t.Errorf("Unexpected choice %q on the completion screen", k)
		}
	}
}

func TestRenderPanelsEmpty(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"inventory", renderInventory(nil), emptyInventory},
		{"quests", renderQuests(nil), noQuests},
		{"saves", renderSaveList(nil, 0), noSaves},
		{"actions", renderActions(nil), noActions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.out, tt.want) {
				t.Errorf("Expected %q in:\n%s", tt.want, tt.out)
			}
		})
	}
}

func TestRenderQuests(t *testing.T) {
	out := renderQuests([]models.Quest{
		{Name: "Signal Trace", Description: "Follow the echo", Progress: 1, Target: 3},
		{Name: "Data Recovery", Progress: 2, Target: 2},
	})
	for _, want := range []string{"Signal Trace", "Follow the echo", "Progress: 1/3", "✓ Data Recovery", "Progress: 2/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "✓ Signal Trace") {
		t.Errorf("Unfinished quest marked done")
	}
}

func TestRenderSkillsDefaults(t *testing.T) {
	out := renderSkills(models.PlayerState{Skills: map[string]int{"decryption": 4, "forgery": 2}})
	for _, want := range []string{"decryption: 4", "manipulation: 1", "reconstruction: 1", "forgery: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "reconstruction") > strings.Index(out, "forgery") {
		t.Errorf("Known skills should come before extras")
	}

	rep := renderReputation(models.PlayerState{})
	if !strings.Contains(rep, "codekeepers: 0") || !strings.Contains(rep, "neutral: 0") {
		t.Errorf("Missing faction defaults:\n%s", rep)
	}
}

func TestRenderStatsCurrencyFallback(t *testing.T) {
	out := renderStats(models.PlayerState{Name: "Neo", Level: 2, HP: 5, MaxHP: 10, Gold: 30})
	if !strings.Contains(out, "Credits: 30") || !strings.Contains(out, "HP  ") {
		t.Errorf("Unexpected stats:\n%s", out)
	}
}

func TestRenderBarClamps(t *testing.T) {
	tests := []struct {
		cur, total int
		filled     int
	}{
		{0, 10, 0},
		{5, 10, 5},
		{20, 10, 10},
		{3, 0, 0},
		{-4, 10, 0},
	}
	for _, tt := range tests {
		out := renderBar(tt.cur, tt.total, 10, hpBarStyle)
		if got := strings.Count(out, "█"); got != tt.filled {
			t.Errorf("renderBar(%d, %d) filled %d cells, want %d", tt.cur, tt.total, got, tt.filled)
		}
		if got := strings.Count(out, "█") + strings.Count(out, "░"); got != 10 {
			t.Errorf("renderBar(%d, %d) has %d cells", tt.cur, tt.total, got)
		}
	}
}

func TestRenderLogTimestamps(t *testing.T) {
	out := renderLog([]models.LogEntry{
		{Message: "Welcome to Nexis", Type: "system", Timestamp: "10:04:05"},
		{Message: "no time"},
	}, 80)
	if !strings.Contains(out, "[10:04:05] Welcome to Nexis") {
		t.Errorf("Missing timestamp prefix:\n%s", out)
	}
	if strings.Contains(out, "[] no time") {
		t.Errorf("Empty timestamp rendered")
	}
}

func TestFormatSaveDate(t *testing.T) {
	if got := formatSaveDate("not a date"); got != "not a date" {
		t.Errorf("formatSaveDate kept %q", got)
	}
	if got := formatSaveDate("2026-10-18T14:05:09Z"); !strings.Contains(got, "2026") || strings.Contains(got, "T14") {
		t.Errorf("formatSaveDate reformatted to %q", got)
	}
}

func TestRenderSaveListSelection(t *testing.T) {
	out := renderSaveList([]models.SaveSummary{
		{ID: "1", Name: "first", PlayerLevel: 2, Stage: models.StageNumber(3)},
		{ID: "2", Name: "second", Stage: models.Complete},
	}, 1)
	if !strings.Contains(out, "> second") || !strings.Contains(out, "  first") {
		t.Errorf("Selection marker wrong:\n%s", out)
	}
	if !strings.Contains(out, "Level 2  Stage 3") || !strings.Contains(out, "Stage complete") {
		t.Errorf("Missing save details:\n%s", out)
	}
}
