package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// mockProfile tracks the counters served for a single username.
type mockProfile struct {
	followers int
	following int
	posts     int
}

// StartMockProfileServer runs a mock web_profile_info endpoint whose follower
// counts drift by a few units on every request.
// Call this in a goroutine before starting pulsestats.
func StartMockProfileServer(addr string) {
	var (
		profiles = make(map[string]*mockProfile)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.IntN(150)) * time.Millisecond)

		mu.Lock()
		p, exists := profiles[username]
		if !exists {
			p = &mockProfile{
				followers: 1000 + rand.IntN(9000),
				following: 100 + rand.IntN(400),
				posts:     10 + rand.IntN(200),
			}
			profiles[username] = p
		}
		p.followers += rand.IntN(11) - 3
		body := profileBody(p)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	slog.Info("mock profile server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

// profileBody shapes p like the upstream response so the default field paths resolve.
func profileBody(p *mockProfile) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"user": map[string]any{
				"edge_followed_by":             map[string]int{"count": p.followers},
				"edge_follow":                  map[string]int{"count": p.following},
				"edge_owner_to_timeline_media": map[string]int{"count": p.posts},
			},
		},
	}
}
