package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"scenesequencer/internal/sequencer"

	"go.uber.org/zap"
)

// Server provides the HTTP invocation surface for the scene sequencer
type Server struct {
	sequencer *sequencer.Sequencer
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a new API server
func NewServer(seq *sequencer.Sequencer, logger *zap.Logger, port int) *Server {
	s := &Server{
		sequencer: seq,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/cycle", s.handleCycle)
	mux.HandleFunc("/api/sequences", s.handleSequences)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// errorResponse is the JSON body for failed requests
type errorResponse struct {
	Error string `json:"error"`
}

// handleCycle advances a scene sequence one step
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sequencer.CycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.sequencer.Cycle(req); err != nil {
		if errors.Is(err, sequencer.ErrNoScenes) || errors.Is(err, sequencer.ErrTimeoutOutOfRange) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Error("Cycle failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)

	s.logger.Debug("Cycle request served",
		zap.Int("scenes", len(req.Scenes)),
		zap.String("remote_addr", r.RemoteAddr))
}

// handleSequences returns the persisted position and timestamp for every known sequence
func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mapping, err := s.sequencer.Sequences()
	if err != nil {
		s.logger.Error("Failed to load sequences", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(mapping); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

// Handler exposes the server's mux for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
