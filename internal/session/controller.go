package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
)

const errLoggerKey = "err"

// DefaultRevealDelay is the minimum pause between reveal steps, making the
// reveal perceptible rather than instantaneous.
const DefaultRevealDelay = 20 * time.Millisecond

// Generator produces a complete assistant response for a user message. The call
// blocks until the full response text is available; the controller exposes it to
// observers as a sequence of growing prefixes, so a streaming transport can
// replace an implementation without changing the controller's contract.
type Generator interface {
	Generate(ctx context.Context, message string) (string, error)
}

// MessageStore is the persistence collaborator for chat messages. Reconciliation
// of optimistic records is owned by the store, not by this package.
type MessageStore interface {
	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	AddMessage(ctx context.Context, chatID string, msg models.Message) error
	UpdateMessage(ctx context.Context, chatID string, msg models.Message) error
	DeleteMessagesFrom(ctx context.Context, userID, chatID string, sequenceNumber int) error
}

// ContextStore provides the attachable context of an assistant.
type ContextStore interface {
	AssistantFiles(ctx context.Context, assistantID string) ([]models.FileRef, error)
	AssistantCollections(ctx context.Context, assistantID string) ([]models.Collection, error)
	CollectionFiles(ctx context.Context, collectionID string) ([]models.FileRef, error)
	AssistantTools(ctx context.Context, assistantID string) ([]models.Tool, error)
}

// Notifier surfaces user-visible transient notifications, e.g. a failed send.
type Notifier interface {
	Notify(text string)
}

// NotifyFunc adapts a function to the Notifier interface.
type NotifyFunc func(text string)

// Notify calls f.
func (f NotifyFunc) Notify(text string) { f(text) }

// Config carries the collaborators of a Controller.
type Config struct {
	State     *State
	Generator Generator
	Messages  MessageStore
	Contexts  ContextStore
	Notifier  Notifier
	Logger    *slog.Logger

	// RevealDelay is the minimum pause between reveal steps. Zero means
	// DefaultRevealDelay; a negative value disables the delay.
	RevealDelay time.Duration

	// Defaults fills settings fields the workspace leaves absent. Zero means
	// DefaultSettings().
	Defaults models.SessionSettings
}

// Controller orchestrates one chat session: settings resolution and context
// loading at session start, optimistic sends with incremental reveal, and
// edit-and-regenerate. At most one generation is in flight per session; a
// second Begin is rejected with ErrGenerationInFlight.
type Controller struct {
	state    *State
	gen      Generator
	messages MessageStore
	contexts ContextStore
	notifier Notifier
	logger   *slog.Logger

	revealDelay time.Duration
	defaults    models.SessionSettings

	mu     sync.Mutex
	active *Handle
}

// NewController creates a controller around the given session state and
// collaborators.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.RevealDelay
	switch {
	case delay == 0:
		delay = DefaultRevealDelay
	case delay < 0:
		delay = 0
	}
	defaults := cfg.Defaults
	if defaults == (models.SessionSettings{}) {
		defaults = DefaultSettings()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifyFunc(func(string) {})
	}
	return &Controller{
		state:       cfg.State,
		gen:         cfg.Generator,
		messages:    cfg.Messages,
		contexts:    cfg.Contexts,
		notifier:    notifier,
		logger:      logger.With(slog.String("module", "session")),
		revealDelay: delay,
		defaults:    defaults,
	}
}

// State returns the session state the controller operates on.
func (c *Controller) State() *State {
	return c.state
}

// StartChat enters a new chat: it resets session state so nothing leaks across
// the session-start boundary, resolves settings from the assistant, preset, or
// workspace defaults, and loads the assistant's context when one is selected. A
// context-load failure fails the whole start; no partial state is applied.
func (c *Controller) StartChat(ctx context.Context, assistant *models.Assistant, preset *models.Preset, workspace models.Workspace) error {
	c.state.Reset()
	c.state.SetSettings(ResolveSettings(assistant, preset, workspace, c.defaults))

	if assistant == nil {
		return nil
	}

	files, tools, err := LoadAssistantContext(ctx, c.contexts, assistant.ID)
	if err != nil {
		return fmt.Errorf("failed to load assistant context: %w", err)
	}
	c.state.applyAssistantContext(assistant, files, tools)

	c.logger.Info("chat started",
		slog.String("assistant_id", assistant.ID),
		slog.Int("files", len(files)),
		slog.Int("tools", len(tools)))
	return nil
}

// OpenChat selects an existing chat and replaces the timeline with its persisted
// messages.
func (c *Controller) OpenChat(ctx context.Context, chat *models.Chat) error {
	msgs, err := c.messages.Messages(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	c.state.SelectChat(chat)
	c.state.setTimeline(Timeline(msgs))
	return nil
}
