// Vibe relay — pairing and signaling server.
//
// Holds the matchmaking queue for anonymous one-to-one sessions and
// relays WebRTC negotiation and chat traffic between paired
// participants. Configured via VIBE_* environment variables, with
// -addr as a flag override.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/neetil/vibe/internal/config"
	"github.com/neetil/vibe/internal/relay"
	"github.com/neetil/vibe/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", "", "Listen address (overrides VIBE_ADDR)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.LoadServer()
	if *addr != "" {
		cfg.Addr = *addr
	}

	util.LogInfo("vibe-relay v%s listening on %s (%s)", version, cfg.Addr, cfg.Environment)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: relay.NewServer(cfg).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.LogWarning("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		util.LogError("serve: %v", err)
		os.Exit(1)
	}

	util.LogInfo("relay stopped")
}
