package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/MegaGrindStone/chat-session-core/internal/session"
	"github.com/tmaxmax/go-sse"
)

const errLoggerKey = "err"

// Store defines the persistence surface the handlers and the session controller
// consume: chats, messages, assistant context, and the settings source records.
type Store interface {
	session.MessageStore
	session.ContextStore

	Chats(ctx context.Context) ([]models.Chat, error)
	Chat(ctx context.Context, chatID string) (*models.Chat, error)
	AddChat(ctx context.Context, chat models.Chat) error

	Assistant(ctx context.Context, assistantID string) (*models.Assistant, error)
	Preset(ctx context.Context, presetID string) (*models.Preset, error)
}

// SSE event types for real-time updates.
var (
	timelineSSEType     = sse.Type("timeline")
	stateSSEType        = sse.Type("generation_state")
	notificationSSEType = sse.Type("notification")
)

const sessionSSETopic = "session"

// Main handles the core functionality of the chat application, wiring the
// session controller to the HTTP surface and publishing session changes over
// server-sent events: every timeline replacement, every generation state
// transition, and user-visible notifications.
type Main struct {
	sseSrv     *sse.Server
	controller *session.Controller
	store      Store
	workspace  models.Workspace
	logger     *slog.Logger
}

// NewMain creates a Main instance around the given generator and store. userID
// identifies the session owner; workspace is the always-present fallback
// settings source. revealDelay tunes the pause between reveal steps (zero means
// the default).
func NewMain(
	gen session.Generator,
	store Store,
	workspace models.Workspace,
	userID string,
	revealDelay time.Duration,
	logger *slog.Logger,
) *Main {
	m := &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, sessionSSETopic},
				}, true
			},
		},
		store:     store,
		workspace: workspace,
		logger:    logger.With(slog.String("module", "handlers")),
	}

	state := session.NewState(userID)
	state.OnTimelineChange(func(t session.Timeline) {
		if t == nil {
			t = session.Timeline{}
		}
		data, err := json.Marshal(t)
		if err != nil {
			m.logger.Error("failed to marshal timeline", slog.String(errLoggerKey, err.Error()))
			return
		}
		m.publish(timelineSSEType, string(data))
	})
	state.OnGenerationChange(func(s models.GenerationState) {
		m.publish(stateSSEType, string(s))
	})

	m.controller = session.NewController(session.Config{
		State:       state,
		Generator:   gen,
		Messages:    store,
		Contexts:    store,
		Notifier:    session.NotifyFunc(m.notify),
		Logger:      logger,
		RevealDelay: revealDelay,
	})

	return m
}

// Controller returns the session controller driven by these handlers.
func (m *Main) Controller() *session.Controller {
	return m.controller
}

// HandleSSE serves the event stream carrying timeline snapshots, generation
// state transitions, and notifications.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the SSE server. It broadcasts a close message
// to all connected clients and waits up to 5 seconds for connections to
// terminate.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeSession")}
	// The close event complies with the SSE spec requiring data.
	e.AppendData("bye")

	// The error is ignored since we're shutting down anyway.
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// notify implements the user-visible notification channel of the session
// controller, e.g. the failure toast for a failed send.
func (m *Main) notify(text string) {
	m.publish(notificationSSEType, text)
}

func (m *Main) publish(eventType sse.EventType, data string) {
	msg := sse.Message{Type: eventType}
	msg.AppendData(data)
	if err := m.sseSrv.Publish(&msg, sessionSSETopic); err != nil {
		m.logger.Error("failed to publish sse event",
			slog.String("type", eventType.String()),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m *Main) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Error("failed to encode response", slog.String(errLoggerKey, err.Error()))
	}
}
