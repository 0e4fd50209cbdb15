package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/MegaGrindStone/chat-session-core/internal/handlers"
	"github.com/MegaGrindStone/chat-session-core/internal/models"
)

type mockGenerator struct {
	response string
	err      error
	release  chan struct{}
}

func (g *mockGenerator) Generate(ctx context.Context, _ string) (string, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type mockStore struct {
	mu         sync.Mutex
	chats      map[string]models.Chat
	messages   map[string][]models.Message
	assistants map[string]models.Assistant
	presets    map[string]models.Preset
	files      map[string][]models.FileRef
	tools      map[string][]models.Tool
	deletes    []int
	err        error
}

func newMockStore() *mockStore {
	return &mockStore{
		chats:      map[string]models.Chat{},
		messages:   map[string][]models.Message{},
		assistants: map[string]models.Assistant{},
		presets:    map[string]models.Preset{},
		files:      map[string][]models.FileRef{},
		tools:      map[string][]models.Tool{},
	}
}

func (m *mockStore) Chats(context.Context) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chats []models.Chat
	for _, c := range m.chats {
		chats = append(chats, c)
	}
	return chats, m.err
}

func (m *mockStore) Chat(_ context.Context, chatID string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, m.err
	}
	return &c, m.err
}

func (m *mockStore) AddChat(_ context.Context, chat models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat
	return m.err
}

func (m *mockStore) Messages(_ context.Context, chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[chatID], m.err
}

func (m *mockStore) AddMessage(_ context.Context, chatID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[chatID] = append(m.messages[chatID], msg)
	return m.err
}

func (m *mockStore) UpdateMessage(_ context.Context, _ string, _ models.Message) error {
	return m.err
}

func (m *mockStore) DeleteMessagesFrom(_ context.Context, _, chatID string, seq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, seq)
	kept := m.messages[chatID][:0:0]
	for _, msg := range m.messages[chatID] {
		if msg.SequenceNumber < seq {
			kept = append(kept, msg)
		}
	}
	m.messages[chatID] = kept
	return m.err
}

func (m *mockStore) Assistant(_ context.Context, assistantID string) (*models.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assistants[assistantID]
	if !ok {
		return nil, m.err
	}
	return &a, m.err
}

func (m *mockStore) Preset(_ context.Context, presetID string) (*models.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[presetID]
	if !ok {
		return nil, m.err
	}
	return &p, m.err
}

func (m *mockStore) AssistantFiles(_ context.Context, assistantID string) ([]models.FileRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[assistantID], m.err
}

func (m *mockStore) AssistantCollections(context.Context, string) ([]models.Collection, error) {
	return nil, nil
}

func (m *mockStore) CollectionFiles(context.Context, string) ([]models.FileRef, error) {
	return nil, nil
}

func (m *mockStore) AssistantTools(_ context.Context, assistantID string) ([]models.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools[assistantID], m.err
}

func newTestMain(gen *mockGenerator, store *mockStore) *handlers.Main {
	return handlers.NewMain(
		gen,
		store,
		models.Workspace{ID: "ws-1"},
		"user-1",
		-1, // no reveal pause in tests
		slog.Default(),
	)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func waitIdle(t *testing.T, m *handlers.Main) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Controller().State().Generation() == models.GenerationIdle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("generation did not return to idle in time")
}

func TestHandleRequest(t *testing.T) {
	m := newTestMain(&mockGenerator{}, newMockStore())

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Malformed body",
			method:     http.MethodPost,
			body:       "{not json",
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal server error",
		},
		{
			name:       "Valid message",
			method:     http.MethodPost,
			body:       `{"message": "Hello"}`,
			wantStatus: http.StatusOK,
			wantBody:   `This is a mock response to your message: \"Hello\"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/request", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			m.HandleRequest(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleRequest() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("HandleRequest() body = %v, want to contain %v", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleNewChat(t *testing.T) {
	store := newMockStore()
	store.assistants["asst-1"] = models.Assistant{
		ID:                 "asst-1",
		Model:              "claude-3-5-sonnet",
		EmbeddingsProvider: "openai",
	}
	store.tools["asst-1"] = []models.Tool{{ID: "t1", Name: "search"}}
	m := newTestMain(&mockGenerator{}, store)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "Workspace defaults",
			body:       `{}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "With assistant",
			body:       `{"assistant_id": "asst-1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Unknown assistant",
			body:       `{"assistant_id": "nope"}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, m.HandleNewChat, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("HandleNewChat() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Settings models.SessionSettings `json:"settings"`
				Tools    []models.Tool          `json:"tools"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if strings.Contains(tt.body, "asst-1") {
				if resp.Settings.Model != "claude-3-5-sonnet" {
					t.Errorf("model = %q, want the assistant's model", resp.Settings.Model)
				}
				if len(resp.Tools) != 1 {
					t.Errorf("tools = %+v, want the assistant's tool set", resp.Tools)
				}
			}
		})
	}
}

func TestHandleChats(t *testing.T) {
	gen := &mockGenerator{response: "Hi!"}
	store := newMockStore()
	m := newTestMain(gen, store)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	m.HandleChats(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %v, want %v", w.Code, http.StatusMethodNotAllowed)
	}

	if w := postJSON(t, m.HandleChats, `{"message": ""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %v, want %v", w.Code, http.StatusBadRequest)
	}

	w = postJSON(t, m.HandleChats, `{"message": "Hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("send status = %v, body = %v", w.Code, w.Body.String())
	}

	var resp struct {
		ChatID    string `json:"chat_id"`
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ChatID == "" || resp.MessageID == "" {
		t.Fatalf("send response = %+v", resp)
	}
	if _, ok := store.chats[resp.ChatID]; !ok {
		t.Error("new chat was not persisted")
	}

	waitIdle(t, m)

	tl := m.Controller().State().Timeline()
	if len(tl) != 2 {
		t.Fatalf("timeline len = %d, want 2", len(tl))
	}
	if tl[1].Content != "Hi!" {
		t.Errorf("assistant content = %q, want %q", tl[1].Content, "Hi!")
	}
}

func TestHandleChatsTruncatesNameOnRuneBoundary(t *testing.T) {
	gen := &mockGenerator{response: "ok"}
	store := newMockStore()
	m := newTestMain(gen, store)

	message := strings.Repeat("日", 150)
	w := postJSON(t, m.HandleChats, `{"message": "`+message+`"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("send status = %v, body = %v", w.Code, w.Body.String())
	}
	waitIdle(t, m)

	chat := m.Controller().State().Chat()
	if chat == nil {
		t.Fatal("no active chat after send")
	}
	name := store.chats[chat.ID].Name
	if !utf8.ValidString(name) {
		t.Fatalf("persisted chat name is not valid UTF-8: %q", name)
	}
	if want := strings.Repeat("日", 100); name != want {
		t.Errorf("chat name = %d runes, want 100", utf8.RuneCountInString(name))
	}
}

func TestHandleChatsRejectsConcurrentSend(t *testing.T) {
	gen := &mockGenerator{response: "ok", release: make(chan struct{})}
	m := newTestMain(gen, newMockStore())

	if w := postJSON(t, m.HandleChats, `{"message": "one"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first send status = %v", w.Code)
	}
	if w := postJSON(t, m.HandleChats, `{"message": "two"}`); w.Code != http.StatusConflict {
		t.Errorf("second send status = %v, want %v", w.Code, http.StatusConflict)
	}

	close(gen.release)
	waitIdle(t, m)
}

func TestHandleEdit(t *testing.T) {
	gen := &mockGenerator{response: "redone"}
	store := newMockStore()
	m := newTestMain(gen, store)

	// Without an active chat an edit is a silent no-op.
	if w := postJSON(t, m.HandleEdit, `{"content": "x", "sequence_number": 1}`); w.Code != http.StatusNoContent {
		t.Fatalf("edit without chat status = %v, want %v", w.Code, http.StatusNoContent)
	}

	chat := models.Chat{ID: "chat-1", UserID: "user-1"}
	store.chats[chat.ID] = chat
	store.messages[chat.ID] = []models.Message{
		{ID: "a", Role: models.RoleUser, Content: "q1", SequenceNumber: 0},
		{ID: "b", Role: models.RoleAssistant, Content: "a1", SequenceNumber: 1},
		{ID: "c", Role: models.RoleUser, Content: "q2", SequenceNumber: 2},
		{ID: "d", Role: models.RoleAssistant, Content: "a2", SequenceNumber: 3},
	}
	if err := m.Controller().OpenChat(context.Background(), &chat); err != nil {
		t.Fatal(err)
	}

	if w := postJSON(t, m.HandleEdit, `{"content": "x", "sequence_number": 9}`); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range edit status = %v, want %v", w.Code, http.StatusBadRequest)
	}

	w := postJSON(t, m.HandleEdit, `{"content": "q2 edited", "sequence_number": 2}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("edit status = %v, body = %v", w.Code, w.Body.String())
	}
	waitIdle(t, m)

	store.mu.Lock()
	deletes := append([]int(nil), store.deletes...)
	store.mu.Unlock()
	if len(deletes) != 1 || deletes[0] != 2 {
		t.Errorf("storage deletes = %v, want one at sequence 2", deletes)
	}

	tl := m.Controller().State().Timeline()
	if len(tl) != 4 {
		t.Fatalf("timeline len = %d, want 4", len(tl))
	}
	if tl[2].Content != "q2 edited" || tl[2].SequenceNumber != 2 {
		t.Errorf("edited message = %+v", tl[2])
	}
	if tl[3].Content != "redone" {
		t.Errorf("regenerated content = %q", tl[3].Content)
	}
}

func TestHandleStop(t *testing.T) {
	m := newTestMain(&mockGenerator{}, newMockStore())

	req := httptest.NewRequest(http.MethodPost, "/api/chats/stop", nil)
	w := httptest.NewRecorder()
	m.HandleStop(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("stop status = %v, want %v", w.Code, http.StatusNoContent)
	}
}

func TestShutdown(t *testing.T) {
	m := newTestMain(&mockGenerator{}, newMockStore())
	if err := m.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() error = %v", err)
	}
}
