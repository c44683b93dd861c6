package pebblestore

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core/conversation"
)

const threadPrefix = "thread/"

// Open opens (or creates) a Pebble database at path.
// opts may be nil; with opts.FS unset the database lives on disk.
func Open(path string, opts *pebble.Options) (*pebble.DB, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	if opts.FS == nil {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, errors.Wrap(err, "creating store directory")
		}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble store at %s", path)
	}
	return db, nil
}

type ThreadStore struct {
	db *pebble.DB
}

var _ conversation.Store = (*ThreadStore)(nil)

// NewThreadStore returns a conversation.Store keeping each thread as one JSON value under
// `thread/<mode>/<task>`, both parts path-escaped. Writes are synced.
func NewThreadStore(db *pebble.DB) *ThreadStore {
	return &ThreadStore{db: db}
}

func threadKey(key conversation.ThreadKey) []byte {
	return []byte(threadPrefix + url.PathEscape(key.Mode) + "/" + url.PathEscape(key.TaskID))
}

func (s *ThreadStore) Get(_ context.Context, key conversation.ThreadKey) ([]conversation.Message, bool, error) {
	v, closer, err := s.db.Get(threadKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "reading thread")
	}
	defer func() { _ = closer.Close() }()

	var msgs []conversation.Message
	if err = json.Unmarshal(v, &msgs); err != nil {
		return nil, false, errors.Wrap(err, "decoding thread")
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return msgs, true, nil
}

func (s *ThreadStore) Set(_ context.Context, key conversation.ThreadKey, msgs []conversation.Message) error {
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "encoding thread")
	}
	if err = s.db.Set(threadKey(key), data, pebble.Sync); err != nil {
		return errors.Wrap(err, "writing thread")
	}
	return nil
}

func (s *ThreadStore) Clear(_ context.Context, key conversation.ThreadKey) error {
	if err := s.db.Delete(threadKey(key), pebble.Sync); err != nil {
		return errors.Wrap(err, "deleting thread")
	}
	return nil
}

// Keys lists the stored threads, in key order.
func (s *ThreadStore) Keys(_ context.Context) ([]conversation.ThreadKey, error) {
	prefix := []byte(threadPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: []byte("thread0"), // '0' follows '/'
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterating threads")
	}
	defer func() { _ = iter.Close() }()

	var keys []conversation.ThreadKey
	for ok := iter.First(); ok; ok = iter.Next() {
		mode, task, found := strings.Cut(string(iter.Key()[len(prefix):]), "/")
		if !found {
			continue
		}
		key, err := unescapeKey(mode, task)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding thread key %q", iter.Key())
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(iter.Error(), "iterating threads")
}

func unescapeKey(mode, task string) (conversation.ThreadKey, error) {
	var key conversation.ThreadKey
	var err error
	if key.Mode, err = url.PathUnescape(mode); err != nil {
		return key, err
	}
	key.TaskID, err = url.PathUnescape(task)
	return key, err
}
