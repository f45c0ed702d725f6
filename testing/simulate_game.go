package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http/httptest"
	"strings"

	"github.com/tatianab/codebound/internal/advisor"
	"github.com/tatianab/codebound/internal/client"
	"github.com/tatianab/codebound/internal/config"
	"github.com/tatianab/codebound/internal/devserver"
	"github.com/tatianab/codebound/internal/mirror"
	"github.com/tatianab/codebound/internal/story"
)

var (
	local    = flag.Bool("local", false, "play against an in-process devserver instead of CODEBOUND_SERVER_URL")
	maxTurns = flag.Int("turns", 10, "stop after this many turns")
	name     = flag.String("name", "Simulated Anomaly", "display name to register")
	id       = flag.String("id", "sim-0001", "identifier to register and log in with")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serverURL := cfg.ServerURL
	if *local {
		srv := httptest.NewServer(devserver.New())
		defer srv.Close()
		serverURL = srv.URL
	}

	c, err := client.New(serverURL, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	mir := mirror.New(c, mirror.Options{AllowStale: cfg.AllowStale})
	table := story.Default()

	// The advisor plays when a key is configured; otherwise the first choice wins.
	var adv *advisor.Advisor
	if cfg.AdvisorEnabled() {
		adv, err = advisor.NewAdvisor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("create advisor: %w", err)
		}
		defer adv.Close()
	}

	fmt.Println("--- Step 1: Registering and logging in ---")
	if out := mir.Register(ctx, *name, *id); !out.Applied {
		// an existing account is fine
		fmt.Printf("Register: %s\n", out.Message)
	}
	out := mir.Login(ctx, *id)
	if !out.Applied {
		return fmt.Errorf("login: %s", out.Message)
	}
	fmt.Printf("%s\n\n", out.Message)

	fmt.Println("--- Step 2: Playing ---")
	played := 0
	for played < *maxTurns {
		if err := mir.Refresh(ctx); err != nil {
			return err
		}
		state, _ := mir.Snapshot()

		p, ok := table.Present(state.CurrentStage)
		if !ok {
			return fmt.Errorf("server reported unknown stage %q", state.CurrentStage)
		}
		if p.Terminal() {
			fmt.Println(p.Title)
			fmt.Println(p.Description)
			fmt.Printf("Story progress: %s\n", strings.Join(state.StoryProgress, ", "))
			fmt.Printf("Finished in %d turns\n", played)
			return nil
		}

		fmt.Printf("--- Turn %d: %s ---\n", played+1, p.Title)
		choice := p.Choices[0]
		if adv != nil {
			s, err := adv.SuggestChoice(ctx, p, state)
			if err != nil {
				fmt.Printf("Advisor unavailable, taking the first choice: %v\n", err)
			} else {
				choice = s.Choice
				fmt.Printf("Advisor: %s\n", s.Reason)
			}
		}
		fmt.Printf("Choice: %s\n", choice.Label())

		out := mir.Choose(ctx, choice.Key)
		played++
		fmt.Printf("Outcome: %s\n\n", out.Message)
		if !out.Applied {
			return errors.New("choice rejected; stopping")
		}
	}

	state, _ := mir.Snapshot()
	fmt.Printf("Stopped at stage %s after %d turns\n", state.CurrentStage, played)
	return nil
}
