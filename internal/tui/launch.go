package tui

import (
	"context"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatianab/codebound/internal/advisor"
	"github.com/tatianab/codebound/internal/client"
	"github.com/tatianab/codebound/internal/config"
	"github.com/tatianab/codebound/internal/mirror"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
)

// Launch wires the transport, mirror and optional advisor, then runs the program.
func Launch(ctx context.Context, cfg *config.Config) error {
	models.SaveDir = cfg.SaveDir

	// the alt screen owns stdout, so diagnostics go to a file
	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "codebound ")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	}

	table := story.Default()
	if cfg.StoryFile != "" {
		t, err := story.LoadFile(cfg.StoryFile)
		if err != nil {
			return fmt.Errorf("load story file: %w", err)
		}
		table = t
	}

	c, err := client.New(cfg.ServerURL, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	mir := mirror.New(c, mirror.Options{AllowStale: cfg.AllowStale})

	opts := Options{
		Table:           table,
		RefreshInterval: cfg.RefreshInterval,
		Markdown:        true,
	}
	if cfg.AdvisorEnabled() {
		adv, err := advisor.NewAdvisor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("Warning: advisor disabled: %v", err)
		} else {
			defer adv.Close()
			opts.Advisor = adv
		}
	}

	log.Printf("connecting to %s", cfg.ServerURL)
	return Run(ctx, mir, opts)
}
