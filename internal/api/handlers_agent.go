package api

import (
	"net/http"
)

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	message := "Agent started"
	if !s.agent.Start() {
		message = "Agent already running"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"status":  s.agent.Status(),
	})
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	message := "Agent stopped"
	if !s.agent.Stop() {
		message = "Agent not running"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"status":  s.agent.Status(),
	})
}

// handleAgentRun runs one pass synchronously
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	assessment, err := s.agent.RunOnce(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"alert":   assessment,
	})
}
