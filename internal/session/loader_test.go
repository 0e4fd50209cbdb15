package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/MegaGrindStone/chat-session-core/internal/session"
)

var errStore = errors.New("store unavailable")

type mockContextStore struct {
	files           map[string][]models.FileRef
	collections     map[string][]models.Collection
	collectionFiles map[string][]models.FileRef
	tools           map[string][]models.Tool

	filesErr           bool
	collectionsErr     bool
	collectionFilesErr bool
	toolsErr           bool
}

func (m *mockContextStore) AssistantFiles(_ context.Context, assistantID string) ([]models.FileRef, error) {
	if m.filesErr {
		return nil, errStore
	}
	return m.files[assistantID], nil
}

func (m *mockContextStore) AssistantCollections(_ context.Context, assistantID string) ([]models.Collection, error) {
	if m.collectionsErr {
		return nil, errStore
	}
	return m.collections[assistantID], nil
}

func (m *mockContextStore) CollectionFiles(_ context.Context, collectionID string) ([]models.FileRef, error) {
	if m.collectionFilesErr {
		return nil, errStore
	}
	return m.collectionFiles[collectionID], nil
}

func (m *mockContextStore) AssistantTools(_ context.Context, assistantID string) ([]models.Tool, error) {
	if m.toolsErr {
		return nil, errStore
	}
	return m.tools[assistantID], nil
}

func TestLoadAssistantContextExpandsCollections(t *testing.T) {
	store := &mockContextStore{
		files: map[string][]models.FileRef{
			"asst-1": {{ID: "f1", Name: "direct.md"}},
		},
		collections: map[string][]models.Collection{
			"asst-1": {{ID: "col-1"}, {ID: "col-2"}},
		},
		collectionFiles: map[string][]models.FileRef{
			"col-1": {{ID: "f2", Name: "one.pdf"}},
			// Duplicates by id are acceptable; consumers key by id.
			"col-2": {{ID: "f1", Name: "direct.md"}, {ID: "f3", Name: "two.pdf"}},
		},
		tools: map[string][]models.Tool{
			"asst-1": {{ID: "t1", Name: "search"}},
		},
	}

	files, tools, err := session.LoadAssistantContext(context.Background(), store, "asst-1")
	if err != nil {
		t.Fatal(err)
	}

	wantIDs := []string{"f1", "f2", "f1", "f3"}
	if len(files) != len(wantIDs) {
		t.Fatalf("files = %+v, want ids %v", files, wantIDs)
	}
	for i, id := range wantIDs {
		if files[i].ID != id {
			t.Errorf("file %d id = %q, want %q", i, files[i].ID, id)
		}
	}
	if len(tools) != 1 || tools[0].ID != "t1" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestLoadAssistantContextPropagatesErrors(t *testing.T) {
	tests := []struct {
		name  string
		store *mockContextStore
	}{
		{name: "Assistant files fetch fails", store: &mockContextStore{filesErr: true}},
		{name: "Collections fetch fails", store: &mockContextStore{collectionsErr: true}},
		{
			name: "Collection files fetch fails",
			store: &mockContextStore{
				collections:        map[string][]models.Collection{"asst-1": {{ID: "col-1"}}},
				collectionFilesErr: true,
			},
		},
		{name: "Tools fetch fails", store: &mockContextStore{toolsErr: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, tools, err := session.LoadAssistantContext(context.Background(), tt.store, "asst-1")
			if !errors.Is(err, errStore) {
				t.Fatalf("err = %v, want wrapped store error", err)
			}
			if files != nil || tools != nil {
				t.Error("partial context returned alongside an error")
			}
		})
	}
}
