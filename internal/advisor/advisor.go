// Package advisor asks Gemini for a nudge at the current story stage and for a
// short recap of the log. It only reads mirror state; it never acts for the player.
package advisor

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

//go:embed prompts/suggest_choice.txt
var suggestChoicePrompt string

//go:embed prompts/recap_log.txt
var recapLogPrompt string

var (
	suggestTmpl = template.Must(template.New("suggest_choice").Parse(suggestChoicePrompt))
	recapTmpl   = template.Must(template.New("recap_log").Parse(recapLogPrompt))
)

// recapWindow is how many log entries are sent for a recap.
const recapWindow = 10

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Advisor struct {
	client *genai.Client
	model  generator
}

// Suggestion is the advisor's pick for the current stage.
type Suggestion struct {
	Choice story.Choice
	Reason string
}

func NewAdvisor(ctx context.Context, apiKey, modelName string) (*Advisor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	return &Advisor{
		client: client,
		model:  model,
	}, nil
}

func (a *Advisor) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// SuggestChoice recommends one of the presented choices.
func (a *Advisor) SuggestChoice(ctx context.Context, p story.Presentation, s models.SessionState) (Suggestion, error) {
	if p.Terminal() || len(p.Choices) == 0 {
		return Suggestion{}, fmt.Errorf("no choices to weigh at this stage")
	}

	keys := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		keys[i] = c.Key
	}

	var buf bytes.Buffer
	data := struct {
		Title       string
		Description string
		Player      models.PlayerState
		Credits     int
		Progress    []string
		Choices     []story.Choice
		Keys        string
	}{
		Title:       p.Title,
		Description: p.Description,
		Player:      s.Player,
		Credits:     s.Player.Currency(),
		Progress:    s.StoryProgress,
		Choices:     p.Choices,
		Keys:        strings.Join(keys, ", "),
	}
	if err := suggestTmpl.Execute(&buf, data); err != nil {
		return Suggestion{}, err
	}

	text, err := a.generate(ctx, buf.String())
	if err != nil {
		return Suggestion{}, err
	}
	return parseSuggestion(text, p)
}

// Recap summarizes the most recent log entries.
func (a *Advisor) Recap(ctx context.Context, p story.Presentation, entries []models.LogEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("nothing has happened yet")
	}
	if len(entries) > recapWindow {
		entries = entries[len(entries)-recapWindow:]
	}

	var buf bytes.Buffer
	data := struct {
		Title   string
		Entries []models.LogEntry
	}{
		Title:   p.Title,
		Entries: entries,
	}
	if err := recapTmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	text, err := a.generate(ctx, buf.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (a *Advisor) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return string(text), nil
}

func parseSuggestion(text string, p story.Presentation) (Suggestion, error) {
	cleanYAML := strings.TrimSpace(text)
	cleanYAML = strings.TrimPrefix(cleanYAML, "```yaml")
	cleanYAML = strings.TrimPrefix(cleanYAML, "```")
	cleanYAML = strings.TrimSuffix(cleanYAML, "```")

	var reply struct {
		Choice string `yaml:"choice"`
		Reason string `yaml:"reason"`
	}
	if err := yaml.Unmarshal([]byte(cleanYAML), &reply); err != nil {
		return Suggestion{}, fmt.Errorf("failed to parse suggestion YAML: %v\nOutput was: %s", err, cleanYAML)
	}

	// models sometimes answer "B)" or "b) Question everything"
	key := strings.ToLower(strings.TrimSpace(reply.Choice))
	if i := strings.IndexAny(key, ") "); i > 0 {
		key = key[:i]
	}
	choice, ok := p.Choice(key)
	if !ok {
		return Suggestion{}, fmt.Errorf("suggested choice %q is not offered", reply.Choice)
	}
	return Suggestion{Choice: choice, Reason: strings.TrimSpace(reply.Reason)}, nil
}
