// Package health serves liveness and status over HTTP for operators
// and the status CLI.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cachewarden/cachewarden/internal/controller"
	"github.com/cachewarden/cachewarden/pkg/logging"
	"github.com/cachewarden/cachewarden/pkg/status"
)

// Server exposes /health and /status. The controller snapshot is read
// fresh on every request; there is no caching layer to go stale.
type Server struct {
	controller *controller.Controller
	recorder   *status.Recorder
	logger     *logging.Logger
	started    time.Time
	server     *http.Server
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Controller controller.Snapshot `json:"controller"`
	LastUpdate *status.Update      `json:"last_update,omitempty"`
	History    []status.Update     `json:"history,omitempty"`
	UptimeSecs float64             `json:"uptime_seconds"`
}

// NewServer creates a health server over the controller and recorder.
func NewServer(ctrl *controller.Controller, rec *status.Recorder, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		controller: ctrl,
		recorder:   rec,
		logger:     logger.WithComponent("health"),
		started:    time.Now(),
	}
}

// Handler returns the HTTP mux, for embedding or testing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves on the given port in the background.
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	// The daemon is healthy as long as it answers; a degraded reclaim
	// path is visible in /status, not a liveness failure.
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Controller: s.controller.Snapshot(),
		UptimeSecs: time.Since(s.started).Seconds(),
	}
	if s.recorder != nil {
		if last, ok := s.recorder.Last(); ok {
			resp.LastUpdate = &last
		}
		resp.History = s.recorder.History()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Status encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
