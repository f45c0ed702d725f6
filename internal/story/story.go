// Package story holds the fixed stage table of the narrative and turns the
// server's current-stage marker into something a view can draw.
package story

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/tatianab/codebound/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var stagesYAML []byte

// ChoiceAction is the action id sent to the server when a choice is picked.
// The server decides the next stage; the client only observes it on refresh.
const ChoiceAction = "story_choice"

// ChoiceKeys is the alphabet of choice keys, in display order.
const ChoiceKeys = "abcd"

const (
	CompleteTitle       = "🎉 STORY COMPLETE! 🎉"
	CompleteDescription = "Congratulations! You have completed your journey through The Codebound Chronicles. Your choices have shaped the future of reality itself."
	RestartLabel        = "🎮 RESTART ADVENTURE"
)

// Choice is one of the four options offered at a stage.
type Choice struct {
	Key  string
	Text string
}

// Label is the text shown on the choice button, e.g. "B) Question everything".
func (c Choice) Label() string {
	return strings.ToUpper(c.Key) + ") " + c.Text
}

// Choices decodes from a YAML mapping and keeps the authored key order.
type Choices []Choice

func (c *Choices) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: choices must be a mapping", node.Line)
	}
	out := make(Choices, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Choice{Key: node.Content[i].Value, Text: node.Content[i+1].Value})
	}
	*c = out
	return nil
}

// StageDefinition is one authored narrative beat.
type StageDefinition struct {
	Number      int     `yaml:"number"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Choices     Choices `yaml:"choices"`
}

// Presentation is what the view draws for a stage.
type Presentation struct {
	Stage       models.Stage
	Title       string
	Description string
	Choices     []Choice
	// Restart is set only on the terminal payload, where it is the sole affordance.
	Restart string
}

func (p Presentation) Terminal() bool {
	return p.Restart != ""
}

// Choice returns the choice with the given key, if offered.
func (p Presentation) Choice(key string) (Choice, bool) {
	for _, c := range p.Choices {
		if c.Key == key {
			return c, true
		}
	}
	return Choice{}, false
}

// Table maps stage numbers to their definitions. It is read-only once built.
type Table struct {
	stages map[int]StageDefinition
	order  []int
}

// Parse builds a table from YAML and checks that every stage is well formed.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Stages []StageDefinition `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse stage table: %w", err)
	}
	if len(doc.Stages) == 0 {
		return nil, fmt.Errorf("stage table is empty")
	}

	t := &Table{stages: make(map[int]StageDefinition, len(doc.Stages))}
	for _, def := range doc.Stages {
		if err := validate(def); err != nil {
			return nil, err
		}
		if _, dup := t.stages[def.Number]; dup {
			return nil, fmt.Errorf("stage %d defined twice", def.Number)
		}
		t.stages[def.Number] = def
		t.order = append(t.order, def.Number)
	}
	slices.Sort(t.order)
	return t, nil
}

func validate(def StageDefinition) error {
	if def.Number < 1 {
		return fmt.Errorf("stage number must be positive, got %d", def.Number)
	}
	if def.Title == "" {
		return fmt.Errorf("stage %d has no title", def.Number)
	}
	if len(def.Choices) != len(ChoiceKeys) {
		return fmt.Errorf("stage %d has %d choices, want %d", def.Number, len(def.Choices), len(ChoiceKeys))
	}
	seen := make(map[string]bool, len(def.Choices))
	for _, c := range def.Choices {
		if len(c.Key) != 1 || !strings.Contains(ChoiceKeys, c.Key) {
			return fmt.Errorf("stage %d: choice key %q not in %q", def.Number, c.Key, ChoiceKeys)
		}
		if seen[c.Key] {
			return fmt.Errorf("stage %d: choice key %q repeated", def.Number, c.Key)
		}
		seen[c.Key] = true
	}
	return nil
}

// LoadFile parses a stage table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := Parse(stagesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded stage table: %v", err))
	}
	return t
})

// Default returns the built-in table, built on first use and shared after.
func Default() *Table {
	return defaultTable()
}

// Stages returns the stage numbers in ascending order.
func (t *Table) Stages() []int {
	return slices.Clone(t.order)
}

// Lookup returns the definition for a stage number.
func (t *Table) Lookup(n int) (StageDefinition, bool) {
	def, ok := t.stages[n]
	return def, ok
}

// Next returns the stage after n, or models.Complete after the last one.
func (t *Table) Next(n int) models.Stage {
	i := slices.Index(t.order, n)
	if i < 0 || i+1 >= len(t.order) {
		return models.Complete
	}
	return models.StageNumber(t.order[i+1])
}

// Present returns the payload for a stage marker. ok is false when the marker
// is neither "complete" nor a known stage; callers then keep what they had.
func (t *Table) Present(stage models.Stage) (p Presentation, ok bool) {
	if stage.IsComplete() {
		return Presentation{
			Stage:       stage,
			Title:       CompleteTitle,
			Description: CompleteDescription,
			Restart:     RestartLabel,
		}, true
	}
	n, numbered := stage.Number()
	if !numbered {
		return Presentation{}, false
	}
	def, known := t.Lookup(n)
	if !known {
		return Presentation{}, false
	}
	return Presentation{
		Stage:       stage,
		Title:       def.Title,
		Description: def.Description,
		Choices:     slices.Clone([]Choice(def.Choices)),
	}, true
}
