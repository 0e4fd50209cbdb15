package session

import (
	"errors"
	"slices"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
)

// Timeline is the ordered, sequence-numbered list of messages in one chat. All
// operations are copy-on-write: they return a new timeline and never mutate the
// receiver, so a snapshot handed to a reader is never torn by a later write.
//
// Invariant: sequence numbers form the contiguous run [0, len) in slice order.
type Timeline []models.Message

var (
	// ErrEmptyTimeline is returned when an operation needs a last message and the
	// timeline has none.
	ErrEmptyTimeline = errors.New("timeline is empty")
	// ErrLastNotAssistant is returned when the last message is not an assistant
	// message and therefore cannot receive streamed content.
	ErrLastNotAssistant = errors.New("last message is not an assistant message")
)

// Append returns a new timeline with msgs added at the end. The caller is
// responsible for assigning correct sequence numbers before calling.
func (t Timeline) Append(msgs ...models.Message) Timeline {
	out := make(Timeline, 0, len(t)+len(msgs))
	out = append(out, t...)
	return append(out, msgs...)
}

// AppendOptimisticPair assigns the next two sequence numbers to the user message
// and the assistant placeholder and appends both in one step, so no snapshot ever
// shows only one of the pair.
func (t Timeline) AppendOptimisticPair(user, assistant models.Message) Timeline {
	user.SequenceNumber = len(t)
	assistant.SequenceNumber = len(t) + 1
	return t.Append(user, assistant)
}

// TruncateFrom returns a new timeline containing only messages with a sequence
// number strictly below seq.
func (t Timeline) TruncateFrom(seq int) Timeline {
	out := make(Timeline, 0, len(t))
	for _, msg := range t {
		if msg.SequenceNumber < seq {
			out = append(out, msg)
		}
	}
	return out
}

// ReplaceLastContent returns a new timeline whose final message carries text as
// its content. It is used by the reveal loop, so the final message must be an
// assistant message.
func (t Timeline) ReplaceLastContent(text string) (Timeline, error) {
	if len(t) == 0 {
		return nil, ErrEmptyTimeline
	}
	if t[len(t)-1].Role != models.RoleAssistant {
		return nil, ErrLastNotAssistant
	}
	out := slices.Clone(t)
	out[len(out)-1].Content = text
	return out, nil
}

// Last returns the final message of the timeline. It panics on an empty
// timeline; callers check length first.
func (t Timeline) Last() models.Message {
	return t[len(t)-1]
}
