package services_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/MegaGrindStone/chat-session-core/internal/services"
)

func newTestDB(t *testing.T) services.BoltDB {
	t.Helper()
	db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close db: %v", err)
		}
	})
	return db
}

func TestBoltDBMessagesOrderedBySequence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chat := models.Chat{ID: "chat-1", UserID: "user-1"}
	if err := db.AddChat(ctx, chat); err != nil {
		t.Fatal(err)
	}

	// Insert out of order; reads must come back in sequence order.
	for _, seq := range []int{2, 0, 3, 1} {
		msg := models.Message{
			ID:             "msg-" + string(rune('a'+seq)),
			ChatID:         chat.ID,
			UserID:         "user-1",
			Role:           models.RoleUser,
			SequenceNumber: seq,
		}
		if err := db.AddMessage(ctx, chat.ID, msg); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.Messages(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceNumber != i {
			t.Errorf("message at index %d has sequence number %d", i, m.SequenceNumber)
		}
	}
}

func TestBoltDBDeleteMessagesFrom(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chat := models.Chat{ID: "chat-1", UserID: "user-1"}
	if err := db.AddChat(ctx, chat); err != nil {
		t.Fatal(err)
	}
	for seq := 0; seq < 4; seq++ {
		msg := models.Message{ChatID: chat.ID, UserID: "user-1", SequenceNumber: seq}
		if err := db.AddMessage(ctx, chat.ID, msg); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.DeleteMessagesFrom(ctx, "someone-else", chat.ID, 2); err == nil {
		t.Fatal("delete by a non-owner should fail")
	}

	if err := db.DeleteMessagesFrom(ctx, "user-1", chat.ID, 2); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.Messages(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages after delete = %d, want 2", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceNumber != i {
			t.Errorf("message at index %d has sequence number %d", i, m.SequenceNumber)
		}
	}
}

func TestBoltDBAssistantContext(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assistant := models.Assistant{ID: "asst-1", Name: "Helper", Model: "gpt-4o", EmbeddingsProvider: "local"}
	if err := db.AddAssistant(ctx, assistant); err != nil {
		t.Fatal(err)
	}
	if err := db.AddAssistantFile(ctx, assistant.ID, models.FileRef{ID: "f1", Name: "notes.md", Type: "md"}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddAssistantCollection(ctx, assistant.ID, models.Collection{ID: "col-1", Name: "Docs"}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddCollectionFile(ctx, "col-1", models.FileRef{ID: "f2", Name: "spec.pdf", Type: "pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddAssistantTool(ctx, assistant.ID, models.Tool{ID: "t1", Name: "search"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.Assistant(ctx, assistant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Model != "gpt-4o" {
		t.Fatalf("assistant = %+v", got)
	}

	files, err := db.AssistantFiles(ctx, assistant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].ID != "f1" {
		t.Errorf("assistant files = %+v", files)
	}

	collections, err := db.AssistantCollections(ctx, assistant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(collections) != 1 || collections[0].ID != "col-1" {
		t.Errorf("assistant collections = %+v", collections)
	}

	collectionFiles, err := db.CollectionFiles(ctx, "col-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(collectionFiles) != 1 || collectionFiles[0].ID != "f2" {
		t.Errorf("collection files = %+v", collectionFiles)
	}

	tools, err := db.AssistantTools(ctx, assistant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].ID != "t1" {
		t.Errorf("assistant tools = %+v", tools)
	}

	// Unknown ids yield empty results, not errors.
	if files, err := db.AssistantFiles(ctx, "nope"); err != nil || len(files) != 0 {
		t.Errorf("files for unknown assistant = %+v, err = %v", files, err)
	}
	if missing, err := db.Assistant(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("unknown assistant = %+v, err = %v", missing, err)
	}
}
