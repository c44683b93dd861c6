package inmemdb

import (
	"context"

	"github.com/trezcool/homeworkchat/core/conversation"
)

type threadStore struct {
	db *threadTable
}

// NewThreadStore returns a conversation.Store keeping threads in memory.
// Threads are deep-copied in and out.
func NewThreadStore(db *DB) conversation.Store {
	return &threadStore{db: db.thread}
}

func (s *threadStore) Get(_ context.Context, key conversation.ThreadKey) ([]conversation.Message, bool, error) {
	s.db.RLock()
	defer s.db.RUnlock()
	msgs, ok := s.db.table[key]
	return cloneMessages(msgs), ok, nil
}

func (s *threadStore) Set(_ context.Context, key conversation.ThreadKey, msgs []conversation.Message) error {
	s.db.Lock()
	defer s.db.Unlock()
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	s.db.table[key] = cloneMessages(msgs)
	return nil
}

func (s *threadStore) Clear(_ context.Context, key conversation.ThreadKey) error {
	s.db.Lock()
	defer s.db.Unlock()
	delete(s.db.table, key)
	return nil
}
