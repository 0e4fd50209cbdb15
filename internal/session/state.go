package session

import (
	"sync"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
)

// ToolNone marks that no tool is in use. Set at every session-start boundary so
// no tool selection leaks across chats.
const ToolNone = "none"

// State holds the mutable fields of one chat session. Each component touches
// exactly the subset it needs, and every mutation goes through a method here so
// readers only ever observe complete snapshots: the timeline is replaced wholesale
// (copy-on-write), never edited in place.
//
// Change callbacks run synchronously under the state lock, in write order. They
// must not call back into State.
type State struct {
	mu sync.Mutex

	userID    string
	chat      *models.Chat
	assistant *models.Assistant
	settings  models.SessionSettings
	timeline  Timeline

	files            []models.FileRef
	tools            []models.Tool
	toolInUse        string
	showFilesDisplay bool

	userInput        string
	promptPickerOpen bool
	filePickerOpen   bool

	generation models.GenerationState

	onTimeline   func(Timeline)
	onGeneration func(models.GenerationState)
}

// NewState creates session state for the given user with an empty timeline and no
// generation in flight.
func NewState(userID string) *State {
	return &State{
		userID:     userID,
		toolInUse:  ToolNone,
		generation: models.GenerationIdle,
	}
}

// OnTimelineChange registers fn to be called with the new snapshot after every
// timeline replacement.
func (s *State) OnTimelineChange(fn func(Timeline)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTimeline = fn
}

// OnGenerationChange registers fn to be called after every generation state
// transition.
func (s *State) OnGenerationChange(fn func(models.GenerationState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGeneration = fn
}

// UserID returns the owning user's identifier.
func (s *State) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Chat returns the currently selected chat, or nil when no chat is active.
func (s *State) Chat() *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// SelectChat makes chat the active chat. Passing nil deselects.
func (s *State) SelectChat(chat *models.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = chat
}

// Assistant returns the currently selected assistant, or nil.
func (s *State) Assistant() *models.Assistant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistant
}

// Settings returns the resolved session settings.
func (s *State) Settings() models.SessionSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings overrides the session settings, e.g. on a manual model switch.
func (s *State) SetSettings(settings models.SessionSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Timeline returns the current timeline snapshot. The snapshot is safe to hold:
// later writes replace the timeline instead of mutating it.
func (s *State) Timeline() Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// Files returns the attachable files loaded for the selected assistant.
func (s *State) Files() []models.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files
}

// Tools returns the tools loaded for the selected assistant.
func (s *State) Tools() []models.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools
}

// ShowFilesDisplay reports whether the files panel should be visible.
func (s *State) ShowFilesDisplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showFilesDisplay
}

// SetUserInput stores the current input box content.
func (s *State) SetUserInput(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInput = input
}

// UserInput returns the current input box content.
func (s *State) UserInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInput
}

// SetPickersOpen records picker UI visibility. Beginning a send closes both.
func (s *State) SetPickersOpen(prompt, file bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptPickerOpen = prompt
	s.filePickerOpen = file
}

// PickersOpen reports the visibility of the prompt and file pickers.
func (s *State) PickersOpen() (prompt, file bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptPickerOpen, s.filePickerOpen
}

// Generation returns the current generation state.
func (s *State) Generation() models.GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Reset clears everything a session-start boundary must not leak: input, timeline,
// chat selection, loaded context, picker visibility, tool selection, and the
// generation flag.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInput = ""
	s.chat = nil
	s.assistant = nil
	s.timeline = nil
	s.files = nil
	s.tools = nil
	s.toolInUse = ToolNone
	s.showFilesDisplay = false
	s.promptPickerOpen = false
	s.filePickerOpen = false
	s.setGenerationLocked(models.GenerationIdle)
	s.fireTimelineLocked()
}

// applyAssistantContext installs the loaded assistant context in one step.
func (s *State) applyAssistantContext(assistant *models.Assistant, files []models.FileRef, tools []models.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = assistant
	s.files = files
	s.tools = tools
	s.showFilesDisplay = len(files) > 0
}

// beginSend performs the observable transitions that open a generation: state to
// in-progress, input cleared, pickers closed.
func (s *State) beginSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInput = ""
	s.promptPickerOpen = false
	s.filePickerOpen = false
	s.setGenerationLocked(models.GenerationInProgress)
}

// setGeneration transitions the generation state and notifies the callback.
func (s *State) setGeneration(state models.GenerationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setGenerationLocked(state)
}

func (s *State) setGenerationLocked(state models.GenerationState) {
	if s.generation == state {
		return
	}
	s.generation = state
	if s.onGeneration != nil {
		s.onGeneration(state)
	}
}

// appendPair appends the optimistic user/assistant pair atomically and returns
// the pair with sequence numbers assigned.
func (s *State) appendPair(user, assistant models.Message) (models.Message, models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.SequenceNumber = len(s.timeline)
	assistant.SequenceNumber = len(s.timeline) + 1
	s.timeline = s.timeline.Append(user, assistant)
	s.fireTimelineLocked()
	return user, assistant
}

// revealLast writes a response prefix into the final assistant message.
func (s *State) revealLast(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.timeline.ReplaceLastContent(text)
	if err != nil {
		return err
	}
	s.timeline = t
	s.fireTimelineLocked()
	return nil
}

// truncateFrom drops every message with a sequence number at or above seq.
func (s *State) truncateFrom(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = s.timeline.TruncateFrom(seq)
	s.fireTimelineLocked()
}

// setTimeline replaces the timeline wholesale, e.g. with messages loaded from the
// store when an existing chat is opened.
func (s *State) setTimeline(t Timeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = t
	s.fireTimelineLocked()
}

func (s *State) fireTimelineLocked() {
	if s.onTimeline != nil {
		s.onTimeline(s.timeline)
	}
}
