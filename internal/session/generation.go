package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/google/uuid"
)

// ErrGenerationInFlight is returned by Begin while a previous generation for the
// session has not finished. Sends are rejected rather than queued so two reveal
// loops never race over the timeline.
var ErrGenerationInFlight = errors.New("generation already in flight")

// Handle represents one in-flight generation. Cancellation is cooperative: the
// reveal loop polls the handle's context before each step, so cancelling stops
// further reveal work and leaves the assistant message at the last written
// prefix. An in-flight remote call is not interrupted pre-emptively.
type Handle struct {
	messageID string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	revealed  atomic.Int64
}

// MessageID returns the id of the assistant placeholder this generation writes
// into.
func (h *Handle) MessageID() string { return h.messageID }

// Cancel stops further reveal steps. Content already revealed is preserved, not
// rolled back; this is "stop generating", not "discard".
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the generation has fully finished, whether by completing
// the reveal, failing, or being cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Revealed returns how many units of the response have been written so far.
func (h *Handle) Revealed() int { return int(h.revealed.Load()) }

// Begin starts a request/response cycle for content against the current
// timeline: it marks the session in-progress, clears the input box and pickers,
// appends the optimistic user message and empty assistant placeholder in one
// visible step, and then issues the remote call and reveals the response
// incrementally from a background goroutine. The optimistic append is visible
// before the remote call is issued.
//
// isRegeneration distinguishes edit-driven regeneration from a fresh user turn;
// it does not change behavior here beyond diagnostics.
func (c *Controller) Begin(ctx context.Context, content string, isRegeneration bool) (*Handle, error) {
	h, err := c.reserve()
	if err != nil {
		return nil, err
	}
	return c.beginReserved(ctx, h, content, isRegeneration), nil
}

// reserve claims the single-flight slot. The controller lock is never held
// across state calls: state change callbacks are allowed to call back into the
// controller (e.g. StopGeneration).
func (c *Controller) reserve() (*Handle, error) {
	genCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ctx:    genCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		cancel()
		return nil, ErrGenerationInFlight
	}
	c.active = h
	c.mu.Unlock()

	return h, nil
}

// release gives a reserved slot back without having run a generation. Only for
// failures between reserve and beginReserved.
func (c *Controller) release(h *Handle) {
	h.cancel()
	close(h.done)
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Controller) beginReserved(ctx context.Context, h *Handle, content string, isRegeneration bool) *Handle {
	c.state.beginSend()

	chat := c.state.Chat()
	settings := c.state.Settings()

	chatID := ""
	if chat != nil {
		chatID = chat.ID
	}
	assistantID := ""
	if a := c.state.Assistant(); a != nil {
		assistantID = a.ID
	}

	now := time.Now()
	user := models.Message{
		ID:         uuid.New().String(),
		ChatID:     chatID,
		UserID:     c.state.UserID(),
		Content:    content,
		Model:      settings.Model,
		Role:       models.RoleUser,
		ImagePaths: []string{},
		CreatedAt:  now,
	}
	placeholder := models.Message{
		ID:          uuid.New().String(),
		ChatID:      chatID,
		AssistantID: assistantID,
		UserID:      c.state.UserID(),
		Model:       settings.Model,
		Role:        models.RoleAssistant,
		ImagePaths:  []string{},
		CreatedAt:   now,
	}
	user, placeholder = c.state.appendPair(user, placeholder)
	h.messageID = placeholder.ID

	// The pair is persisted as-is for an already-persisted chat; reconciling
	// optimistic records is the store's concern.
	if chatID != "" && c.messages != nil {
		if err := c.messages.AddMessage(ctx, chatID, user); err != nil {
			c.logger.Error("failed to persist user message", slog.String(errLoggerKey, err.Error()))
		}
		if err := c.messages.AddMessage(ctx, chatID, placeholder); err != nil {
			c.logger.Error("failed to persist assistant placeholder", slog.String(errLoggerKey, err.Error()))
		}
	}

	c.logger.Info("generation started",
		slog.String("chat_id", chatID),
		slog.String("message_id", placeholder.ID),
		slog.Bool("regeneration", isRegeneration))

	go c.generate(h.ctx, h, chatID, placeholder, content)

	return h
}

// StopGeneration cancels the active generation, if any.
func (c *Controller) StopGeneration() {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (c *Controller) generate(ctx context.Context, h *Handle, chatID string, placeholder models.Message, content string) {
	defer close(h.done)
	defer func() {
		// Idle is written before the single-flight slot is released so a new
		// Begin can never have its in-progress state overwritten by this one.
		c.state.setGeneration(models.GenerationIdle)
		c.mu.Lock()
		if c.active == h {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	response, err := c.gen.Generate(ctx, content)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The placeholder stays empty and the user message stays visible; it was
		// genuinely attempted. No automatic retry.
		c.logger.Error("generation request failed",
			slog.String("chat_id", chatID),
			slog.String(errLoggerKey, err.Error()))
		c.notifier.Notify("Failed to send message")
		return
	}

	if !c.reveal(ctx, h, response) {
		return
	}

	if chatID != "" && c.messages != nil {
		placeholder.Content = response
		now := time.Now()
		placeholder.UpdatedAt = &now
		if err := c.messages.UpdateMessage(context.Background(), chatID, placeholder); err != nil {
			c.logger.Error("failed to persist assistant response",
				slog.String("chat_id", chatID),
				slog.String(errLoggerKey, err.Error()))
		}
	}
}

// reveal advances a cursor over the response one rune at a time, writing each
// prefix into the assistant placeholder with a minimum inter-step delay. Step
// N's write is visible before step N+1 begins. It reports whether the full
// response was revealed.
func (c *Controller) reveal(ctx context.Context, h *Handle, response string) bool {
	runes := []rune(response)
	for i := range runes {
		if ctx.Err() != nil {
			return false
		}
		if err := c.state.revealLast(string(runes[:i+1])); err != nil {
			c.logger.Error("failed to write response prefix", slog.String(errLoggerKey, err.Error()))
			return false
		}
		h.revealed.Store(int64(i + 1))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.revealDelay):
		}
	}
	return true
}
