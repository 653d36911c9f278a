// Vibe — terminal client for anonymous one-to-one chat.
//
// Connects to a vibe-relay instance, enters the pairing queue, and
// negotiates a peer-to-peer media session with whoever it is matched
// with. Text chat flows through the relay, media flows peer-to-peer.
//
// It can be launched interactively (no flags) or non-interactively via
// CLI flags (-url, -no-media, -debug).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/neetil/vibe/internal/config"
	"github.com/neetil/vibe/internal/media"
	"github.com/neetil/vibe/internal/session"
	"github.com/neetil/vibe/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	urlFlag := flag.String("url", "", "Relay WebSocket URL (e.g. wss://example.com/ws)")
	noMedia := flag.Bool("no-media", false, "Skip media capture, text chat only")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Vibe — v%s", version))
	pterm.Println()

	wsURL := *urlFlag
	if wsURL == "" {
		wsURL = askURL()
	} else {
		normalized, err := normalizeWSURL(wsURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		wsURL = normalized
	}

	iceServers, err := config.LoadICEServers()
	if err != nil {
		util.LogError("ICE configuration: %v", err)
		os.Exit(1)
	}

	source, mediaStatus := acquireMedia(*noMedia)
	if mediaStatus == media.StatusDenied {
		pterm.Warning.Println("Camera/mic unavailable — video chat will not work.")
	}

	link, err := session.Dial(ctx, wsURL)
	if err != nil {
		util.LogError("failed to reach relay: %v", err)
		os.Exit(1)
	}
	defer link.Close()
	util.LogInfo("connected to relay: %s", wsURL)

	ctrl := session.NewController(session.ControllerConfig{
		Sender:      link,
		ICEServers:  iceServers,
		Source:      source,
		MediaStatus: mediaStatus,
		OnStatus: func(_ session.Status, info string) {
			pterm.Info.Println(info)
		},
		OnChat: func(entry session.ChatEntry) {
			pterm.Printf("%s %s\n", pterm.Cyan("Stranger:"), entry.Text)
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			util.LogInfo("receiving partner %s track", track.Kind())
		},
	})

	// The read loop owns the connection; when it dies, so does the run.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		if err := link.ReadLoop(ctrl.Handle); err != nil {
			util.LogDebug("relay link closed: %v", err)
		}
		ctrl.LinkClosed()
	}()

	if err := ctrl.FindPartner(); err != nil {
		util.LogError("failed to enter queue: %v", err)
		os.Exit(1)
	}

	pterm.Println()
	pterm.Println("Type to chat. Commands: /next (new partner), /stop (quit)")
	pterm.Println()

	chatLoop(ctx, ctrl, readDone)

	ctrl.Stop()
	util.LogInfo("session ended")
}

// chatLoop reads stdin lines until the user stops, the relay link dies,
// or the context is cancelled.
func chatLoop(ctx context.Context, ctrl *session.Controller, readDone <-chan struct{}) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/stop":
				return
			case line == "/next":
				if err := ctrl.Skip(); err != nil {
					util.LogWarning("skip failed: %v", err)
				}
			default:
				if err := ctrl.SendChat(line); err != nil {
					util.LogWarning("%v", err)
				}
			}
		}
	}
}

// acquireMedia sets up the local media source. There is no capture
// pipeline in the terminal client yet, so granted media is a sample
// source; -no-media maps to a denied, text-only session.
func acquireMedia(disabled bool) (media.Source, media.Status) {
	if disabled {
		return media.Disabled(), media.StatusDenied
	}
	source, err := media.NewSampleSource()
	if err != nil {
		util.LogWarning("media setup failed: %v", err)
		return media.Disabled(), media.StatusDenied
	}
	return source, media.StatusGranted
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates and normalizes a raw WebSocket URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://vibe.example.com)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
