// Standalone mock profile server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pulsestats run -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
)

func main() {
	fmt.Println("Mock profile server starting on :9999")
	fmt.Println("Follower counts drift on every request")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		followers = make(map[string]int)
		mu        sync.Mutex
	)

	http.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("login required"))
	})

	http.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")

		// the real endpoint bounces unauthenticated sessions to the login page
		if r.Header.Get("Cookie") == "" {
			http.Redirect(w, r, "/accounts/login/", http.StatusFound)
			return
		}

		mu.Lock()
		count, exists := followers[username]
		if !exists {
			count = 1000 + rand.IntN(9000)
		}
		count += rand.IntN(11) - 3
		followers[username] = count
		mu.Unlock()

		slog.Info("profile served", "username", username, "followers", count)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"user": map[string]any{
					"edge_followed_by":             map[string]int{"count": count},
					"edge_follow":                  map[string]int{"count": 250},
					"edge_owner_to_timeline_media": map[string]int{"count": 42},
				},
			},
		})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
