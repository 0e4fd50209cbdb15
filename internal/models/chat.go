package models

import "time"

// Chat represents a conversation container in the chat system. It records which
// workspace it belongs to and, when an assistant started it, which assistant.
type Chat struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	AssistantID string    `json:"assistant_id,omitempty"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileRef describes an attachable file without its binary payload. The payload is
// fetched lazily elsewhere; consumers key by ID.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Collection is a named group of files that can be attached to an assistant as a
// unit. Its member files are expanded at session start.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tool is a tool binding attached to an assistant. This system never invokes
// tools; they are carried as opaque records for downstream consumers.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
