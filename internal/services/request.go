package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Remote implements the session.Generator interface against the generation
// endpoint: a single blocking POST carrying the message, answered with the
// complete response text. Any non-2xx status is a failure regardless of the
// body shape.
type Remote struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type generateRequest struct {
	Message string `json:"message"`
}

type generateResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRemote creates a Remote generator targeting the given endpoint URL.
func NewRemote(url string, logger *slog.Logger) Remote {
	return Remote{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger.With(slog.String("module", "remote")),
	}
}

// Generate posts the message and returns the complete response text.
func (r Remote) Generate(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(generateRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		r.logger.Error("generation endpoint returned failure",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(msg)))
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	r.logger.Debug("generation response received",
		slog.Int("length", len(gr.Response)),
		slog.Time("timestamp", gr.Timestamp))

	return gr.Response, nil
}
