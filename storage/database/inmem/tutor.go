package inmemdb

import (
	"context"

	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/core/tutor"
)

type tutorRepository struct {
	conv   *conversationTable
	upload *uploadTable
}

func NewTutorRepository(db *DB) tutor.Repository {
	return &tutorRepository{conv: db.conversation, upload: db.upload}
}

func (repo *tutorRepository) CreateConversation(_ context.Context, conv tutor.Conversation) (tutor.Conversation, error) {
	repo.conv.Lock()
	defer repo.conv.Unlock()

	conv.Messages = cloneMessages(conv.Messages)
	repo.conv.table[conv.ID] = &conv
	return copyConversation(conv), nil
}

func (repo *tutorRepository) GetConversation(_ context.Context, id string) (tutor.Conversation, error) {
	repo.conv.RLock()
	defer repo.conv.RUnlock()

	if conv, ok := repo.conv.table[id]; ok {
		return copyConversation(*conv), nil
	}
	return tutor.Conversation{}, tutor.ErrNotFound
}

func (repo *tutorRepository) AppendMessages(_ context.Context, id string, msgs ...conversation.Message) (tutor.Conversation, error) {
	repo.conv.Lock()
	defer repo.conv.Unlock()

	conv, ok := repo.conv.table[id]
	if !ok {
		return tutor.Conversation{}, tutor.ErrNotFound
	}
	conv.Messages = append(conv.Messages, cloneMessages(msgs)...)
	for _, m := range msgs {
		if m.Timestamp.After(conv.UpdatedAt) {
			conv.UpdatedAt = m.Timestamp
		}
	}
	return copyConversation(*conv), nil
}

func (repo *tutorRepository) CreateUpload(_ context.Context, up tutor.Upload) (tutor.Upload, error) {
	repo.upload.Lock()
	defer repo.upload.Unlock()

	up.Data = append([]byte(nil), up.Data...)
	repo.upload.table[up.ID] = &up
	return up, nil
}

func (repo *tutorRepository) GetUpload(_ context.Context, id string) (tutor.Upload, error) {
	repo.upload.RLock()
	defer repo.upload.RUnlock()

	if up, ok := repo.upload.table[id]; ok {
		return *up, nil
	}
	return tutor.Upload{}, tutor.ErrUploadNotFound
}

func copyConversation(conv tutor.Conversation) tutor.Conversation {
	conv.Messages = cloneMessages(conv.Messages)
	return conv
}
