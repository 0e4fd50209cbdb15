package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrSequenceOutOfRange is returned by Edit when the requested sequence number
// does not address a position in the current timeline.
var ErrSequenceOutOfRange = errors.New("sequence number out of range")

// Edit truncates the conversation at sequenceNumber and replays generation from
// there with the edited content. The persisted tail is deleted first, then the
// in-memory timeline is truncated, so after an edit no message at or after
// sequenceNumber from before the edit remains visible or persisted; the edited
// content occupies exactly that sequence number.
//
// Edit claims the same single-flight slot as Begin before touching anything, so
// while a generation is in flight it returns ErrGenerationInFlight with the
// store and timeline unchanged.
//
// Without an active chat there is nothing meaningful to edit; Edit returns a nil
// handle and no error.
func (c *Controller) Edit(ctx context.Context, editedContent string, sequenceNumber int) (*Handle, error) {
	chat := c.state.Chat()
	if chat == nil {
		c.logger.Debug("edit ignored, no active chat")
		return nil, nil
	}

	h, err := c.reserve()
	if err != nil {
		return nil, err
	}

	if sequenceNumber < 0 || sequenceNumber > len(c.state.Timeline()) {
		c.release(h)
		return nil, fmt.Errorf("%w: %d", ErrSequenceOutOfRange, sequenceNumber)
	}

	if err := c.messages.DeleteMessagesFrom(ctx, chat.UserID, chat.ID, sequenceNumber); err != nil {
		c.release(h)
		return nil, fmt.Errorf("failed to delete persisted messages: %w", err)
	}

	c.state.truncateFrom(sequenceNumber)

	return c.beginReserved(ctx, h, editedContent, true), nil
}
