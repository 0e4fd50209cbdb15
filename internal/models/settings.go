package models

// EmbeddingsProvider selects which backend computes embeddings for retrieval.
type EmbeddingsProvider string

const (
	// EmbeddingsOpenAI uses the hosted OpenAI embeddings API.
	EmbeddingsOpenAI EmbeddingsProvider = "openai"
	// EmbeddingsLocal uses a locally running embeddings model.
	EmbeddingsLocal EmbeddingsProvider = "local"
)

// ParseEmbeddingsProvider validates a stored free-form string against the closed
// provider set. Unknown values fall back to EmbeddingsOpenAI rather than failing,
// so a malformed record never blocks session start.
func ParseEmbeddingsProvider(s string) EmbeddingsProvider {
	switch EmbeddingsProvider(s) {
	case EmbeddingsOpenAI, EmbeddingsLocal:
		return EmbeddingsProvider(s)
	default:
		return EmbeddingsOpenAI
	}
}

// SessionSettings is the resolved generation configuration for one session. It is
// produced once at session start from an assistant, a preset, or workspace
// defaults, and lives for the session's duration. A later manual override (e.g. a
// model switch) changes the value but not its provenance.
type SessionSettings struct {
	Model                        string             `json:"model"`
	Prompt                       string             `json:"prompt"`
	Temperature                  float64            `json:"temperature"`
	ContextLength                int                `json:"context_length"`
	IncludeProfileContext        bool               `json:"include_profile_context"`
	IncludeWorkspaceInstructions bool               `json:"include_workspace_instructions"`
	EmbeddingsProvider           EmbeddingsProvider `json:"embeddings_provider"`
}

// Assistant is a stored assistant record: a settings source plus attached files,
// collections and tools fetched separately at session start.
type Assistant struct {
	ID                           string  `json:"id"`
	Name                         string  `json:"name"`
	Model                        string  `json:"model"`
	Prompt                       string  `json:"prompt"`
	Temperature                  float64 `json:"temperature"`
	ContextLength                int     `json:"context_length"`
	IncludeProfileContext        bool    `json:"include_profile_context"`
	IncludeWorkspaceInstructions bool    `json:"include_workspace_instructions"`
	EmbeddingsProvider           string  `json:"embeddings_provider"`
}

// Settings maps the assistant's fields into session settings, validating the
// stored embeddings provider string.
func (a Assistant) Settings() SessionSettings {
	return SessionSettings{
		Model:                        a.Model,
		Prompt:                       a.Prompt,
		Temperature:                  a.Temperature,
		ContextLength:                a.ContextLength,
		IncludeProfileContext:        a.IncludeProfileContext,
		IncludeWorkspaceInstructions: a.IncludeWorkspaceInstructions,
		EmbeddingsProvider:           ParseEmbeddingsProvider(a.EmbeddingsProvider),
	}
}

// Preset is a stored settings preset, a settings source without any attached
// context of its own.
type Preset struct {
	ID                           string  `json:"id"`
	Name                         string  `json:"name"`
	Model                        string  `json:"model"`
	Prompt                       string  `json:"prompt"`
	Temperature                  float64 `json:"temperature"`
	ContextLength                int     `json:"context_length"`
	IncludeProfileContext        bool    `json:"include_profile_context"`
	IncludeWorkspaceInstructions bool    `json:"include_workspace_instructions"`
	EmbeddingsProvider           string  `json:"embeddings_provider"`
}

// Settings maps the preset's fields into session settings.
func (p Preset) Settings() SessionSettings {
	return SessionSettings{
		Model:                        p.Model,
		Prompt:                       p.Prompt,
		Temperature:                  p.Temperature,
		ContextLength:                p.ContextLength,
		IncludeProfileContext:        p.IncludeProfileContext,
		IncludeWorkspaceInstructions: p.IncludeWorkspaceInstructions,
		EmbeddingsProvider:           ParseEmbeddingsProvider(p.EmbeddingsProvider),
	}
}

// Workspace is the always-present fallback settings source. Default fields may be
// absent; pointer fields distinguish "unset" from a zero value. Absent fields are
// filled from documented defaults by the resolver.
type Workspace struct {
	ID                           string   `json:"id"`
	Name                         string   `json:"name"`
	DefaultModel                 string   `json:"default_model,omitempty"`
	DefaultPrompt                string   `json:"default_prompt,omitempty"`
	DefaultTemperature           *float64 `json:"default_temperature,omitempty"`
	DefaultContextLength         *int     `json:"default_context_length,omitempty"`
	IncludeProfileContext        *bool    `json:"include_profile_context,omitempty"`
	IncludeWorkspaceInstructions *bool    `json:"include_workspace_instructions,omitempty"`
	EmbeddingsProvider           string   `json:"embeddings_provider,omitempty"`
}

// GenerationState reports whether a generation is currently in flight for the
// session.
type GenerationState string

const (
	// GenerationIdle means no generation is running.
	GenerationIdle GenerationState = "idle"
	// GenerationInProgress means a generation is running; a new send must be
	// rejected until the session returns to idle.
	GenerationInProgress GenerationState = "in_progress"
)
