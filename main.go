package main

import (
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"

	"github.com/tatianab/codebound/internal/config"
	"github.com/tatianab/codebound/internal/devserver"
	"github.com/tatianab/codebound/internal/tui"
)

func main() {
	local := flag.Bool("local", false, "play offline against an in-memory server")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *local {
		srv := httptest.NewServer(devserver.New())
		defer srv.Close()
		cfg.ServerURL = srv.URL
	}

	if err := tui.Launch(context.Background(), cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
