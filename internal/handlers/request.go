package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type mockGenerateRequest struct {
	Message string `json:"message"`
}

type mockGenerateResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type mockGenerateError struct {
	Error string `json:"error"`
}

// HandleRequest serves the generation endpoint with a canned response, echoing
// the message back. It lets the server run self-contained: point the remote
// generator at this route and the whole send/reveal cycle works without any
// model backend.
func (m *Main) HandleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mockGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.logger.Error("Failed to decode generate request", slog.String(errLoggerKey, err.Error()))
		m.writeJSON(w, http.StatusInternalServerError, mockGenerateError{Error: "Internal server error"})
		return
	}

	m.writeJSON(w, http.StatusOK, mockGenerateResponse{
		Response:  fmt.Sprintf("This is a mock response to your message: %q", req.Message),
		Timestamp: time.Now().UTC(),
	})
}
