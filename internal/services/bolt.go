package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the storage collaborators using a BoltDB backend: chats and
// their messages, plus the assistant context records (files, collections,
// collection files, tools). Messages are keyed by big-endian sequence number
// inside a bucket per chat, so a ranged delete from a sequence threshold is a
// cursor walk.
type BoltDB struct {
	db *bolt.DB
}

const (
	chatsBucket      = "chats"
	assistantsBucket = "assistants"
	presetsBucket    = "presets"
)

// NewBoltDB creates a new BoltDB instance with the specified file path. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{chatsBucket, assistantsBucket, presetsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})

	return BoltDB{db: db}, err
}

// Close closes the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(chatID string) []byte {
	return []byte(fmt.Sprintf("chat-%s", chatID))
}

func assistantFilesBucketName(assistantID string) []byte {
	return []byte(fmt.Sprintf("assistant-files-%s", assistantID))
}

func assistantCollectionsBucketName(assistantID string) []byte {
	return []byte(fmt.Sprintf("assistant-collections-%s", assistantID))
}

func collectionFilesBucketName(collectionID string) []byte {
	return []byte(fmt.Sprintf("collection-files-%s", collectionID))
}

func assistantToolsBucketName(assistantID string) []byte {
	return []byte(fmt.Sprintf("assistant-tools-%s", assistantID))
}

func sequenceKey(seq int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

// Chats retrieves all stored chat records.
func (b BoltDB) Chats(context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(chatsBucket)).ForEach(func(_, v []byte) error {
			var chat models.Chat
			if err := json.Unmarshal(v, &chat); err != nil {
				return fmt.Errorf("failed to unmarshal chat: %w", err)
			}
			chats = append(chats, chat)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// Chat retrieves one chat by id, or nil when it doesn't exist.
func (b BoltDB) Chat(_ context.Context, chatID string) (*models.Chat, error) {
	var chat *models.Chat
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(chatsBucket)).Get([]byte(chatID))
		if v == nil {
			return nil
		}
		chat = &models.Chat{}
		return json.Unmarshal(v, chat)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// AddChat stores a new chat record and creates its message bucket.
func (b BoltDB) AddChat(_ context.Context, chat models.Chat) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messageBucketName(chat.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}
		v, err := json.Marshal(chat)
		if err != nil {
			return fmt.Errorf("failed to marshal chat: %w", err)
		}
		return tx.Bucket([]byte(chatsBucket)).Put([]byte(chat.ID), v)
	})
}

// Messages retrieves all messages of a chat in sequence order.
func (b BoltDB) Messages(_ context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(chatID))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage stores a message in its chat's bucket, keyed by sequence number.
// Adding a message with an existing sequence number overwrites it; that is how
// an optimistic record is reconciled with its confirmed form.
func (b BoltDB) AddMessage(_ context.Context, chatID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(messageBucketName(chatID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}
		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return bkt.Put(sequenceKey(message.SequenceNumber), v)
	})
}

// UpdateMessage overwrites the stored message at the message's sequence number.
// The operation is silently ignored when the chat has no bucket.
func (b BoltDB) UpdateMessage(_ context.Context, chatID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(chatID))
		if bkt == nil {
			return nil
		}
		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return bkt.Put(sequenceKey(message.SequenceNumber), v)
	})
}

// DeleteMessagesFrom deletes every message of the chat with a sequence number at
// or above sequenceNumber. The chat must belong to userID.
func (b BoltDB) DeleteMessagesFrom(ctx context.Context, userID, chatID string, sequenceNumber int) error {
	chat, err := b.Chat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return fmt.Errorf("chat %s not found", chatID)
	}
	if chat.UserID != userID {
		return fmt.Errorf("chat %s does not belong to user %s", chatID, userID)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(chatID))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, _ := c.Seek(sequenceKey(sequenceNumber)); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return fmt.Errorf("failed to delete message: %w", err)
			}
		}
		return nil
	})
}

// AddAssistant stores an assistant record.
func (b BoltDB) AddAssistant(_ context.Context, assistant models.Assistant) error {
	return b.putJSON(assistantsBucket, assistant.ID, assistant)
}

// Assistant retrieves one assistant by id, or nil when it doesn't exist.
func (b BoltDB) Assistant(_ context.Context, assistantID string) (*models.Assistant, error) {
	var assistant *models.Assistant
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(assistantsBucket)).Get([]byte(assistantID))
		if v == nil {
			return nil
		}
		assistant = &models.Assistant{}
		return json.Unmarshal(v, assistant)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assistant: %w", err)
	}
	return assistant, nil
}

// AddPreset stores a preset record.
func (b BoltDB) AddPreset(_ context.Context, preset models.Preset) error {
	return b.putJSON(presetsBucket, preset.ID, preset)
}

// Preset retrieves one preset by id, or nil when it doesn't exist.
func (b BoltDB) Preset(_ context.Context, presetID string) (*models.Preset, error) {
	var preset *models.Preset
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(presetsBucket)).Get([]byte(presetID))
		if v == nil {
			return nil
		}
		preset = &models.Preset{}
		return json.Unmarshal(v, preset)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return preset, nil
}

// AddAssistantFile attaches a file to an assistant.
func (b BoltDB) AddAssistantFile(_ context.Context, assistantID string, file models.FileRef) error {
	return b.putJSONBucket(assistantFilesBucketName(assistantID), file.ID, file)
}

// AssistantFiles lists the files directly attached to an assistant.
func (b BoltDB) AssistantFiles(_ context.Context, assistantID string) ([]models.FileRef, error) {
	var files []models.FileRef
	err := b.forEachJSON(assistantFilesBucketName(assistantID), func(v []byte) error {
		var file models.FileRef
		if err := json.Unmarshal(v, &file); err != nil {
			return fmt.Errorf("failed to unmarshal file: %w", err)
		}
		files = append(files, file)
		return nil
	})
	return files, err
}

// AddAssistantCollection attaches a collection to an assistant.
func (b BoltDB) AddAssistantCollection(_ context.Context, assistantID string, collection models.Collection) error {
	return b.putJSONBucket(assistantCollectionsBucketName(assistantID), collection.ID, collection)
}

// AssistantCollections lists the collections attached to an assistant.
func (b BoltDB) AssistantCollections(_ context.Context, assistantID string) ([]models.Collection, error) {
	var collections []models.Collection
	err := b.forEachJSON(assistantCollectionsBucketName(assistantID), func(v []byte) error {
		var collection models.Collection
		if err := json.Unmarshal(v, &collection); err != nil {
			return fmt.Errorf("failed to unmarshal collection: %w", err)
		}
		collections = append(collections, collection)
		return nil
	})
	return collections, err
}

// AddCollectionFile adds a file to a collection.
func (b BoltDB) AddCollectionFile(_ context.Context, collectionID string, file models.FileRef) error {
	return b.putJSONBucket(collectionFilesBucketName(collectionID), file.ID, file)
}

// CollectionFiles lists the member files of a collection.
func (b BoltDB) CollectionFiles(_ context.Context, collectionID string) ([]models.FileRef, error) {
	var files []models.FileRef
	err := b.forEachJSON(collectionFilesBucketName(collectionID), func(v []byte) error {
		var file models.FileRef
		if err := json.Unmarshal(v, &file); err != nil {
			return fmt.Errorf("failed to unmarshal file: %w", err)
		}
		files = append(files, file)
		return nil
	})
	return files, err
}

// AddAssistantTool attaches a tool to an assistant.
func (b BoltDB) AddAssistantTool(_ context.Context, assistantID string, tool models.Tool) error {
	return b.putJSONBucket(assistantToolsBucketName(assistantID), tool.ID, tool)
}

// AssistantTools lists the tools attached to an assistant.
func (b BoltDB) AssistantTools(_ context.Context, assistantID string) ([]models.Tool, error) {
	var tools []models.Tool
	err := b.forEachJSON(assistantToolsBucketName(assistantID), func(v []byte) error {
		var tool models.Tool
		if err := json.Unmarshal(v, &tool); err != nil {
			return fmt.Errorf("failed to unmarshal tool: %w", err)
		}
		tools = append(tools, tool)
		return nil
	})
	return tools, err
}

func (b BoltDB) putJSON(bucket, key string, value any) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), v)
	})
}

func (b BoltDB) putJSONBucket(bucket []byte, key string, value any) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return bkt.Put([]byte(key), v)
	})
}

func (b BoltDB) forEachJSON(bucket []byte, fn func(v []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}
