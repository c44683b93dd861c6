package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core/conversation"
)

const (
	getThreadQuery = `SELECT messages FROM conversation_threads WHERE mode = $1 AND task_id = $2`

	upsertThreadQuery = `
INSERT INTO conversation_threads (mode, task_id, messages, updated_at)
VALUES (:mode, :task_id, :messages, :updated_at)
ON CONFLICT (mode, task_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`

	deleteThreadQuery = `DELETE FROM conversation_threads WHERE mode = $1 AND task_id = $2`
)

type threadRow struct {
	Mode      string         `db:"mode"`
	TaskID    string         `db:"task_id"`
	Messages  types.JSONText `db:"messages"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type threadStore struct {
	db *sqlx.DB
}

// NewThreadStore returns a conversation.Store keeping each thread as one jsonb row of conversation_threads.
func NewThreadStore(db *sql.DB) conversation.Store {
	return &threadStore{db: sqlx.NewDb(db, "postgres")}
}

func (s *threadStore) Get(ctx context.Context, key conversation.ThreadKey) ([]conversation.Message, bool, error) {
	var raw types.JSONText
	err := s.db.GetContext(ctx, &raw, getThreadQuery, key.Mode, key.TaskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "selecting thread")
	}

	var msgs []conversation.Message
	if err = raw.Unmarshal(&msgs); err != nil {
		return nil, false, errors.Wrap(err, "decoding thread")
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return msgs, true, nil
}

func (s *threadStore) Set(ctx context.Context, key conversation.ThreadKey, msgs []conversation.Message) error {
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "encoding thread")
	}

	row := threadRow{
		Mode:      key.Mode,
		TaskID:    key.TaskID,
		Messages:  types.JSONText(raw),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err = s.db.NamedExecContext(ctx, upsertThreadQuery, row); err != nil {
		return errors.Wrap(err, "upserting thread")
	}
	return nil
}

func (s *threadStore) Clear(ctx context.Context, key conversation.ThreadKey) error {
	if _, err := s.db.ExecContext(ctx, deleteThreadQuery, key.Mode, key.TaskID); err != nil {
		return errors.Wrap(err, "deleting thread")
	}
	return nil
}
