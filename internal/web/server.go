// Package web serves the live dashboard API over HTTP.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andywolf/beadbridge/internal/broadcast"
)

// Server exposes issue state snapshots and a live event stream.
type Server struct {
	Router *chi.Mux

	store       *broadcast.StateStore
	broadcaster *broadcast.ChannelBroadcaster
	logger      *log.Logger
}

// NewServer creates a dashboard server over the given state store and
// broadcaster.
func NewServer(store *broadcast.StateStore, bc *broadcast.ChannelBroadcaster, logger *log.Logger) *Server {
	s := &Server{store: store, broadcaster: bc, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Minute))
			r.Get("/state", s.getAllState)
			r.Get("/state/{issueID}", s.getIssueState)
		})
		// The event stream is long-lived and must not ride the timeout
		r.Get("/events", s.streamEvents)
	})

	s.Router = r
}

// ListenAndServe blocks serving the dashboard on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   "beadbridge-dashboard",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) getAllState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.All())
}

func (s *Server) getIssueState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "issueID")
	state, ok := s.store.GetState(id)
	if !ok {
		http.Error(w, fmt.Sprintf("no state for issue %s", id), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// streamEvents bridges a broadcast subscription onto a server-sent event
// stream. The subscription is released when the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(env)
			if err != nil {
				if s.logger != nil {
					s.logger.Printf("dropping unencodable event: %v", err)
				}
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
			flusher.Flush()
		}
	}
}
