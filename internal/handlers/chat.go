package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/MegaGrindStone/chat-session-core/internal/session"
	"github.com/google/uuid"
)

type newChatRequest struct {
	AssistantID string `json:"assistant_id"`
	PresetID    string `json:"preset_id"`
}

type newChatResponse struct {
	Settings models.SessionSettings `json:"settings"`
	Files    []models.FileRef       `json:"files"`
	Tools    []models.Tool          `json:"tools"`
}

type sendRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

type sendResponse struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type editRequest struct {
	Content        string `json:"content"`
	SequenceNumber int    `json:"sequence_number"`
}

// HandleNewChat enters a new chat session. It resolves the session settings from
// the optional assistant or preset in the request body (workspace defaults
// otherwise) and loads the assistant's files, collections, and tools. The
// response carries the resolved configuration so a client can render it.
func (m *Main) HandleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req newChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var assistant *models.Assistant
	if req.AssistantID != "" {
		a, err := m.store.Assistant(r.Context(), req.AssistantID)
		if err != nil {
			m.logger.Error("Failed to get assistant", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if a == nil {
			http.Error(w, "Assistant not found", http.StatusNotFound)
			return
		}
		assistant = a
	}

	var preset *models.Preset
	if assistant == nil && req.PresetID != "" {
		p, err := m.store.Preset(r.Context(), req.PresetID)
		if err != nil {
			m.logger.Error("Failed to get preset", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if p == nil {
			http.Error(w, "Preset not found", http.StatusNotFound)
			return
		}
		preset = p
	}

	if err := m.controller.StartChat(r.Context(), assistant, preset, m.workspace); err != nil {
		m.logger.Error("Failed to start chat", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state := m.controller.State()
	m.writeJSON(w, http.StatusOK, newChatResponse{
		Settings: state.Settings(),
		Files:    state.Files(),
		Tools:    state.Tools(),
	})
}

// HandleChats processes a user send. It accepts a JSON body with the message
// and an optional chat id; without a chat id a new chat is created and
// persisted. The optimistic user message and assistant placeholder become
// visible on the event stream before the generation call is issued, and the
// response is revealed incrementally on the same stream.
//
// While a generation is in flight for the session, a new send is rejected with
// status 409.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	if req.ChatID == "" {
		// Reuse the active chat when there is one; only a fresh session gets a
		// new persisted chat.
		if m.controller.State().Chat() == nil {
			if err := m.newChat(r, req.Message); err != nil {
				m.logger.Error("Failed to create new chat", slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
	} else if err := m.continueChat(r, req.ChatID); err != nil {
		m.logger.Error("Failed to continue chat", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h, err := m.controller.Begin(r.Context(), req.Message, false)
	if err != nil {
		if errors.Is(err, session.ErrGenerationInFlight) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		m.logger.Error("Failed to begin generation", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, http.StatusAccepted, sendResponse{
		ChatID:    m.controller.State().Chat().ID,
		MessageID: h.MessageID(),
	})
}

// HandleEdit edits a message and regenerates from its position: the persisted
// tail at and after the sequence number is deleted, the in-memory timeline is
// truncated, and generation replays with the edited content. Without an active
// chat the edit is a no-op.
func (m *Main) HandleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}

	h, err := m.controller.Edit(r.Context(), req.Content, req.SequenceNumber)
	if err != nil {
		if errors.Is(err, session.ErrGenerationInFlight) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, session.ErrSequenceOutOfRange) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.logger.Error("Failed to edit message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m.writeJSON(w, http.StatusAccepted, sendResponse{
		ChatID:    m.controller.State().Chat().ID,
		MessageID: h.MessageID(),
	})
}

// HandleStop cancels the in-flight generation, if any. Content revealed so far
// stays in place.
func (m *Main) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.controller.StopGeneration()
	w.WriteHeader(http.StatusNoContent)
}

// HandleListChats lists all stored chats.
func (m *Main) HandleListChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chats, err := m.store.Chats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get chats", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.writeJSON(w, http.StatusOK, chats)
}

func (m *Main) newChat(r *http.Request, message string) error {
	state := m.controller.State()
	settings := state.Settings()

	// Truncate on a rune boundary so a multi-byte character is never split.
	name := message
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	assistantID := ""
	if a := state.Assistant(); a != nil {
		assistantID = a.ID
	}

	chat := models.Chat{
		ID:          uuid.New().String(),
		UserID:      state.UserID(),
		WorkspaceID: m.workspace.ID,
		AssistantID: assistantID,
		Name:        name,
		Model:       settings.Model,
		CreatedAt:   time.Now(),
	}
	if err := m.store.AddChat(r.Context(), chat); err != nil {
		return err
	}
	return m.controller.OpenChat(r.Context(), &chat)
}

func (m *Main) continueChat(r *http.Request, chatID string) error {
	state := m.controller.State()
	if current := state.Chat(); current != nil && current.ID == chatID {
		return nil
	}

	chat, err := m.store.Chat(r.Context(), chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return errors.New("chat not found")
	}
	return m.controller.OpenChat(r.Context(), chat)
}
