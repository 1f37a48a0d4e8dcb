package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsestats"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockProfileServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// 4 profiles over a 20s cycle: one poll every 5s
	ps, err := pulsestats.New(
		pulsestats.WithIdentifiers("alice", "bob", "carol", "dave"),
		pulsestats.WithCycleDuration(20*time.Second),
		pulsestats.WithJitter(time.Second),
		pulsestats.WithFetchBaseURL("http://localhost:9999/api/v1/users/web_profile_info/?username="),
		pulsestats.WithMemorySink(),
		pulsestats.WithMetricsAddr(":8080"),
		pulsestats.WithSnapshotCallback(func(s pulsestats.Snapshot) {
			fmt.Printf("  %-6s followers=%-6.0f following=%-4.0f posts=%.0f\n",
				s.Identifier, s.Fields["followers"], s.Fields["following"], s.Fields["posts"])
		}),
	)
	if err != nil {
		slog.Error("failed to create pulsestats", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pulsestats demo")
	fmt.Printf("  polling %d profiles, one every %s\n", len(ps.Identifiers()), ps.Cadence())
	fmt.Println("  metrics:  http://localhost:8080/metrics")
	fmt.Println("  schedule: http://localhost:8080/api/schedule")
	fmt.Println("  events:   http://localhost:8080/api/events")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ps.Start(ctx); err != nil {
		slog.Error("pulsestats error", "error", err)
		os.Exit(1)
	}
}
