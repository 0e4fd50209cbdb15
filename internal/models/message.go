package models

import "time"

// Message represents an individual communication entry within a chat. A message is
// created either as a persisted record loaded from the store, or as an optimistic
// placeholder built client-side before the backend confirms it.
type Message struct {
	ID             string     `json:"id"`
	ChatID         string     `json:"chat_id"`
	AssistantID    string     `json:"assistant_id,omitempty"`
	UserID         string     `json:"user_id"`
	Content        string     `json:"content"`
	Model          string     `json:"model"`
	Role           Role       `json:"role"`
	SequenceNumber int        `json:"sequence_number"`
	ImagePaths     []string   `json:"image_paths"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// FileItem is a retrieved file fragment associated with a message. Items are
// append-only and never mutated after creation.
type FileItem struct {
	ID      string `json:"id"`
	FileID  string `json:"file_id"`
	Content string `json:"content"`
}

// MessageWithAttachments pairs a message with the file fragments retrieved for it.
type MessageWithAttachments struct {
	Message   Message    `json:"message"`
	FileItems []FileItem `json:"file_items"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message. An assistant message starts out
	// with empty content and grows while a response is revealed.
	RoleAssistant Role = "assistant"
)
