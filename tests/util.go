package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/core/tutor"
	"github.com/trezcool/homeworkchat/storage/database"
)

// TestDatabaseURLEnv names the variable holding the postgres URL used by database tests.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

// PrepareDB opens and migrates the test database, skipping the test when none is configured.
// Threads are wiped before and after the test.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv(TestDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s is not set", TestDatabaseURLEnv)
	}

	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	truncate := func() {
		if _, err := db.Exec("TRUNCATE conversation_threads"); err != nil {
			t.Errorf("truncating threads: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		_ = db.Close()
	})
	return db
}

func TextMessage(id string, from conversation.Role, content string, ts time.Time) conversation.Message {
	return conversation.Message{ID: id, From: from, Kind: conversation.KindText, Content: content, Timestamp: ts}
}

func CreateConversation(t *testing.T, repo tutor.Repository, id, userID string, msgs ...conversation.Message) tutor.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv, err := repo.CreateConversation(context.Background(), tutor.Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	if len(msgs) > 0 {
		if conv, err = repo.AppendMessages(context.Background(), id, msgs...); err != nil {
			t.Fatalf("CreateConversation() failed: %v", err)
		}
	}
	return conv
}

// StoreContract checks the behavior every conversation.Store must have.
func StoreContract(t *testing.T, store conversation.Store) {
	t.Helper()
	ctx := context.Background()
	key := conversation.ResolveThreadKey("homework", "contract-1")
	other := conversation.ResolveThreadKey("exam", "contract-1")
	ts := time.Date(2021, 1, 10, 9, 0, 0, 0, time.UTC)

	thread := []conversation.Message{
		TextMessage("1", conversation.RoleAgent, "Hi", ts),
		TextMessage("2", conversation.RoleStudent, "Apple", ts.Add(time.Second)),
		{
			ID:        "3",
			From:      conversation.RoleAgent,
			Kind:      conversation.KindTable,
			Table:     &conversation.Table{ExtractedText: "2+2", QA: []conversation.QA{{Text: "2+2", Answer: "4"}}},
			Timestamp: ts.Add(2 * time.Second),
		},
		{ID: "4", From: conversation.RoleStudent, Kind: conversation.KindImage, Content: "https://cdn.example.com/u/1.png", Timestamp: ts.Add(3 * time.Second)},
	}

	t.Run("missing thread", func(t *testing.T) {
		msgs, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, msgs)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, thread))
		msgs, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		if diff := cmp.Diff(thread, msgs); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("set replaces the whole thread", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, thread[:1]))
		msgs, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		if diff := cmp.Diff(thread[:1], msgs); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("threads are partitioned by key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, other)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty thread", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, other, []conversation.Message{}))
		msgs, ok, err := store.Get(ctx, other)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, msgs)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, key))
		require.NoError(t, store.Clear(ctx, key), "clearing a missing thread is not an error")
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Get(ctx, other)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
