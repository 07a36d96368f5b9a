package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// reviewSummary is one entry of GET /reviews.
type reviewSummary struct {
	ID         string    `json:"id"`
	Elements   int       `json:"elements"`
	Operations int       `json:"operations"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewHandler creates the HTTP handler with all routes. Static files are
// served from staticDir.
func NewHandler(hub *Hub, staticDir string) http.Handler {
	mux := http.NewServeMux()

	// Serve static files.
	fs := http.FileServer(http.Dir(staticDir))
	mux.Handle("/", fs)

	mux.HandleFunc("GET /reviews", func(w http.ResponseWriter, r *http.Request) {
		docs, err := hub.store.List(r.Context())
		if err != nil {
			log.Printf("list reviews: %v", err)
			http.Error(w, "failed to list reviews", http.StatusInternalServerError)
			return
		}
		out := make([]reviewSummary, 0, len(docs))
		for _, d := range docs {
			out = append(out, reviewSummary{
				ID:         d.ID,
				Elements:   len(d.Elements),
				Operations: d.Operations,
				UpdatedAt:  d.UpdatedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	// WebSocket endpoint.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
