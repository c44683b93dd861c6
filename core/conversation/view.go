package conversation

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Composer produces the rendered message list of one thread, by merging the durable thread with
// a session-local buffer, and serializes every write to it.
//
// Every message first seen in the write path gets a local sequence number,
// which lets ReplaceWithHistory tell entries appended after a Mark from older ones.
// Every Reset starts a new epoch; writes bound to an older epoch are refused.
type Composer struct {
	mu       sync.Mutex
	store    Store
	host     HostThread
	key      ThreadKey
	epoch    uint64
	local    []Message
	seeded   bool
	seq      uint64
	seqs     map[string]uint64
	onChange func([]Message)
}

// ErrThreadChanged is returned by a write bound to an epoch that a Reset has ended.
var ErrThreadChanged = errors.New("thread changed")

// NewComposer returns a Composer for the thread identified by key.
// When host is not nil the store is bypassed entirely.
func NewComposer(store Store, host HostThread, key ThreadKey) *Composer {
	return &Composer{
		store: store,
		host:  host,
		key:   key,
		seqs:  make(map[string]uint64),
	}
}

// OnChange registers fn to be called with the new view after every write.
func (c *Composer) OnChange(fn func([]Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Composer) Key() ThreadKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Reset switches the composer to another thread, dropping the local buffer and the seeding guard.
func (c *Composer) Reset(key ThreadKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
	c.epoch++
	c.local = nil
	c.seeded = false
	c.seqs = make(map[string]uint64)
}

// Epoch identifies the current thread of the composer; it changes on every Reset.
func (c *Composer) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// View returns the message list to render.
func (c *Composer) View(ctx context.Context) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, err := c.compose(ctx)
	if err != nil {
		return nil, err
	}
	return cloneMessages(view), nil
}

// Seed writes the initial messages to the durable thread the first time it is found empty.
// It is a no-op on every later call for the same key, and when the thread is host managed.
func (c *Composer) Seed(ctx context.Context, initial []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seeded || c.host != nil {
		return nil
	}

	durable, _, err := c.store.Get(ctx, c.key)
	if err != nil {
		return errors.Wrapf(err, "reading thread %s", c.key)
	}
	if len(durable) == 0 && len(initial) > 0 {
		if err := c.store.Set(ctx, c.key, Persistable(cloneMessages(initial))); err != nil {
			return errors.Wrapf(err, "seeding thread %s", c.key)
		}
	}
	c.seeded = true
	return nil
}

// Mark returns the latest local sequence number handed out.
func (c *Composer) Mark() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Update applies fn to the freshly composed view and writes the result back:
// the persistable subset to the store, everything to the local buffer.
func (c *Composer) Update(ctx context.Context, fn func([]Message) []Message) ([]Message, error) {
	return c.write(ctx, fn, nil)
}

// UpdateAt is Update bound to epoch: nothing is written once the composer moved to another thread.
func (c *Composer) UpdateAt(ctx context.Context, epoch uint64, fn func([]Message) []Message) ([]Message, error) {
	return c.write(ctx, fn, &epoch)
}

func (c *Composer) Append(ctx context.Context, msgs ...Message) ([]Message, error) {
	return c.Update(ctx, appendFn(msgs))
}

func (c *Composer) AppendAt(ctx context.Context, epoch uint64, msgs ...Message) ([]Message, error) {
	return c.UpdateAt(ctx, epoch, appendFn(msgs))
}

// ReplaceWithHistory replaces the thread with the server history. Local entries missing from it
// are put back after it when they are transient or were appended after mark.
func (c *Composer) ReplaceWithHistory(ctx context.Context, history []Message, mark uint64) ([]Message, error) {
	return c.Update(ctx, c.historyFn(history, mark))
}

func (c *Composer) ReplaceWithHistoryAt(ctx context.Context, epoch uint64, history []Message, mark uint64) ([]Message, error) {
	return c.UpdateAt(ctx, epoch, c.historyFn(history, mark))
}

func (c *Composer) write(ctx context.Context, fn func([]Message) []Message, epoch *uint64) ([]Message, error) {
	c.mu.Lock()
	if epoch != nil && *epoch != c.epoch {
		c.mu.Unlock()
		return nil, ErrThreadChanged
	}
	view, notify, err := c.update(ctx, fn)
	c.mu.Unlock()

	if notify != nil {
		notify(cloneMessages(view))
	}
	return view, err
}

func appendFn(msgs []Message) func([]Message) []Message {
	return func(view []Message) []Message {
		return append(view, msgs...)
	}
}

// historyFn runs with c.mu held, inside update.
func (c *Composer) historyFn(history []Message, mark uint64) func([]Message) []Message {
	return func(view []Message) []Message {
		next := Merge(history)
		inHistory := keySet(next)
		for _, m := range view {
			k := MessageKey(m)
			if _, ok := inHistory[k]; ok {
				continue
			}
			if m.Transient || c.seqs[k] > mark {
				next = append(next, m)
			}
		}
		return next
	}
}

// update must be called with c.mu held.
func (c *Composer) update(ctx context.Context, fn func([]Message) []Message) ([]Message, func([]Message), error) {
	base, err := c.compose(ctx)
	if err != nil {
		return nil, nil, err
	}
	next := fn(cloneMessages(base))
	c.stamp(base, next)

	if c.host != nil {
		c.host.SetMessages(cloneMessages(next))
		return cloneMessages(next), c.onChange, nil
	}

	c.local = next
	if err := c.store.Set(ctx, c.key, Persistable(cloneMessages(next))); err != nil {
		return cloneMessages(next), c.onChange, errors.Wrapf(err, "writing thread %s", c.key)
	}
	return cloneMessages(next), c.onChange, nil
}

// compose must be called with c.mu held.
func (c *Composer) compose(ctx context.Context) ([]Message, error) {
	if c.host != nil {
		return cloneMessages(c.host.Messages()), nil
	}
	durable, _, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading thread %s", c.key)
	}
	return ComposeView(durable, c.local), nil
}

// stamp hands out sequence numbers to the messages of next that were not in base.
func (c *Composer) stamp(base, next []Message) {
	inBase := keySet(base)
	for _, m := range next {
		k := MessageKey(m)
		if _, ok := c.seqs[k]; ok {
			continue
		}
		if _, ok := inBase[k]; ok {
			continue
		}
		c.seq++
		c.seqs[k] = c.seq
	}
}

// ComposeView merges the durable thread with the local buffer.
// When the local buffer already holds every durable message, its order wins so that the
// rendered list never reorders under the user's eyes.
func ComposeView(durable, local []Message) []Message {
	inLocal := keySet(local)
	for _, m := range durable {
		if _, ok := inLocal[MessageKey(m)]; !ok {
			return Merge(durable, local)
		}
	}
	return Merge(local, durable)
}
