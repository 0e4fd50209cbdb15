package session

import (
	"context"
	"fmt"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
)

// LoadAssistantContext fetches the full attachable context of an assistant: its
// directly attached files, the member files of each attached collection, and its
// tools. Collection files are unioned into the file list without de-duplication;
// consumers key by id. The fan-out is sequential, bounded by the collection
// count, and any fetch failure fails the whole load so tools are never applied
// without their files.
func LoadAssistantContext(ctx context.Context, store ContextStore, assistantID string) ([]models.FileRef, []models.Tool, error) {
	files, err := store.AssistantFiles(ctx, assistantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assistant files: %w", err)
	}

	collections, err := store.AssistantCollections(ctx, assistantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assistant collections: %w", err)
	}
	for _, collection := range collections {
		collectionFiles, err := store.CollectionFiles(ctx, collection.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get files of collection %s: %w", collection.ID, err)
		}
		files = append(files, collectionFiles...)
	}

	tools, err := store.AssistantTools(ctx, assistantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assistant tools: %w", err)
	}

	return files, tools, nil
}
