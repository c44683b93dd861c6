package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/core/tutor"
)

func TestTutorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTutorRepository(Open())
	now := time.Date(2021, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := repo.GetConversation(ctx, "missing")
	assert.Equal(t, tutor.ErrNotFound, err)
	_, err = repo.AppendMessages(ctx, "missing")
	assert.Equal(t, tutor.ErrNotFound, err)
	_, err = repo.GetUpload(ctx, "missing")
	assert.Equal(t, tutor.ErrUploadNotFound, err)

	conv, err := repo.CreateConversation(ctx, tutor.Conversation{ID: "c1", UserID: "u1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)

	later := now.Add(time.Minute)
	conv, err = repo.AppendMessages(ctx, "c1",
		conversation.Message{ID: "m1", From: conversation.RoleStudent, Kind: conversation.KindText, Content: "Hello", Timestamp: later},
		conversation.Message{ID: "m2", From: conversation.RoleAgent, Kind: conversation.KindText, Content: "Hi", Timestamp: later},
	)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, later, conv.UpdatedAt)

	conv, err = repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hello", conv.Messages[0].Content)

	up, err := repo.CreateUpload(ctx, tutor.Upload{ID: "u1", UserID: "u1", ConversationID: "c1", Data: []byte("x")})
	require.NoError(t, err)
	got, err := repo.GetUpload(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, []byte("x"), got.Data)
}
