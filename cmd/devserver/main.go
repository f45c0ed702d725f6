// Command devserver serves the game contract from memory for local play and tests.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tatianab/codebound/internal/config"
	"github.com/tatianab/codebound/internal/devserver"
	"github.com/tatianab/codebound/internal/models"
	"github.com/tatianab/codebound/internal/story"
	"github.com/tatianab/codebound/internal/telemetry"
)

func main() {
	snapshot := flag.String("snapshot", "", "resume from a snapshot exported by the client")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry {
		shutdown, err := telemetry.Setup(ctx, "codebound-devserver")
		if err != nil {
			log.Printf("Warning: telemetry setup failed: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error shutting down telemetry: %v", err)
				}
			}()
		}
	}

	var opts []devserver.Option
	if cfg.StoryFile != "" {
		table, err := story.LoadFile(cfg.StoryFile)
		if err != nil {
			log.Fatalf("Failed to load story file: %v", err)
		}
		opts = append(opts, devserver.WithTable(table))
	}
	if *snapshot != "" {
		models.SaveDir = cfg.SaveDir
		opt, err := devserver.FromSnapshot(*snapshot)
		if err != nil {
			log.Fatalf("Failed to resume: %v", err)
		}
		opts = append(opts, opt)
	}

	srv := &http.Server{
		Addr:              cfg.DevServerAddr,
		Handler:           otelhttp.NewHandler(devserver.New(opts...), "devserver"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down: %v", err)
		}
	}()

	log.Printf("devserver listening on %s", cfg.DevServerAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
