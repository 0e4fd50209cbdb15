package session

import "github.com/MegaGrindStone/chat-session-core/internal/models"

// DefaultSettings returns the settings used for workspace fields that are
// absent. A workspace is always present as the last-resort settings source, but
// its default columns are optional.
func DefaultSettings() models.SessionSettings {
	return models.SessionSettings{
		Model:                        "gpt-4-1106-preview",
		Prompt:                       "You are a friendly, helpful AI assistant.",
		Temperature:                  0.5,
		ContextLength:                4096,
		IncludeProfileContext:        true,
		IncludeWorkspaceInstructions: true,
		EmbeddingsProvider:           models.EmbeddingsOpenAI,
	}
}

// ResolveSettings derives the active session settings from the first available
// source, in priority order: the selected assistant, the selected preset, then
// workspace defaults layered over fallback. At most one of assistant/preset is
// selected at a time. Malformed enum values never propagate; they fail closed
// inside the source's Settings mapping.
func ResolveSettings(assistant *models.Assistant, preset *models.Preset, workspace models.Workspace, fallback models.SessionSettings) models.SessionSettings {
	if assistant != nil {
		return assistant.Settings()
	}
	if preset != nil {
		return preset.Settings()
	}
	return workspaceSettings(workspace, fallback)
}

func workspaceSettings(workspace models.Workspace, fallback models.SessionSettings) models.SessionSettings {
	out := fallback
	if workspace.DefaultModel != "" {
		out.Model = workspace.DefaultModel
	}
	if workspace.DefaultPrompt != "" {
		out.Prompt = workspace.DefaultPrompt
	}
	if workspace.DefaultTemperature != nil {
		out.Temperature = *workspace.DefaultTemperature
	}
	if workspace.DefaultContextLength != nil {
		out.ContextLength = *workspace.DefaultContextLength
	}
	if workspace.IncludeProfileContext != nil {
		out.IncludeProfileContext = *workspace.IncludeProfileContext
	}
	if workspace.IncludeWorkspaceInstructions != nil {
		out.IncludeWorkspaceInstructions = *workspace.IncludeWorkspaceInstructions
	}
	if workspace.EmbeddingsProvider != "" {
		out.EmbeddingsProvider = models.ParseEmbeddingsProvider(workspace.EmbeddingsProvider)
	}
	return out
}
