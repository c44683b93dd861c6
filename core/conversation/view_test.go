package conversation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var homeworkKey = ResolveThreadKey("homework", "t-1")

func TestComposerSeed(t *testing.T) {
	store := newMemStore()
	seed := []Message{
		textMsg("s1", RoleAgent, "Hi", t0),
		textMsg("s2", RoleAgent, "Send me a photo", t0),
	}

	c := NewComposer(store, nil, homeworkKey)
	require.NoError(t, c.Seed(ctx, seed))
	require.NoError(t, c.Seed(ctx, seed))
	assert.Len(t, store.thread(homeworkKey), 2)

	// a new mount finds the thread already seeded
	c2 := NewComposer(store, nil, homeworkKey)
	require.NoError(t, c2.Seed(ctx, seed))
	view, err := c2.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", "Send me a photo"}, texts(view))

	// other threads are seeded on their own
	other := ResolveThreadKey("homework", "t-2")
	c.Reset(other)
	require.NoError(t, c.Seed(ctx, seed[:1]))
	assert.Len(t, store.thread(other), 1)
	assert.Len(t, store.thread(homeworkKey), 2)
}

func TestComposerWriteAfterReset(t *testing.T) {
	store := newMemStore()
	c := NewComposer(store, nil, homeworkKey)
	epoch := c.Epoch()
	_, err := c.AppendAt(ctx, epoch, textMsg("a", RoleStudent, "Hello", t0))
	require.NoError(t, err)

	other := ResolveThreadKey("homework", "t-2")
	c.Reset(other)
	assert.NotEqual(t, epoch, c.Epoch())

	_, err = c.AppendAt(ctx, epoch, textMsg("b", RoleAgent, "late", t0))
	assert.Equal(t, ErrThreadChanged, err)
	_, err = c.ReplaceWithHistoryAt(ctx, epoch, []Message{textMsg("h", RoleAgent, "history", t0)}, 0)
	assert.Equal(t, ErrThreadChanged, err)

	assert.Empty(t, store.thread(other))
	assert.Equal(t, []string{"Hello"}, texts(store.thread(homeworkKey)))

	_, err = c.AppendAt(ctx, c.Epoch(), textMsg("c", RoleStudent, "Hi", t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, texts(store.thread(other)))
}

func TestComposerSeedSkipsTransient(t *testing.T) {
	store := newMemStore()
	status := Message{ID: "st", From: RoleAgent, Kind: KindStatus, Content: "Analyzing...", Transient: true}
	c := NewComposer(store, nil, homeworkKey)
	require.NoError(t, c.Seed(ctx, []Message{textMsg("s1", RoleAgent, "Hi", t0), status}))
	assert.Equal(t, []string{"Hi"}, texts(store.thread(homeworkKey)))
}

func TestComposerWritePath(t *testing.T) {
	store := newMemStore()
	c := NewComposer(store, nil, homeworkKey)

	var changes [][]Message
	c.OnChange(func(view []Message) { changes = append(changes, view) })

	transient := textMsg("t", RoleStudent, "File uploaded: hw.txt", t0)
	transient.Transient = true
	preview := Message{ID: "p", From: RoleStudent, Kind: KindImage, Content: "data:image/png;base64,AAAA", Timestamp: t0}
	a := textMsg("a", RoleAgent, "Hi", t0)
	b := textMsg("b", RoleStudent, "Apple", t0)

	view, err := c.Append(ctx, transient, preview, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "p", "a", "b"}, ids(view))

	assert.Equal(t, []string{"a", "b"}, ids(store.thread(homeworkKey)))

	view, err = c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "p", "a", "b"}, ids(view), "transient entries keep their place")
	require.Len(t, changes, 1)
	assert.Equal(t, ids(view), ids(changes[0]))

	// a fresh mount only sees the durable thread
	view, err = NewComposer(store, nil, homeworkKey).View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(view))
}

func TestComposerUpdateStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failSet = errors.New("disk full")
	c := NewComposer(store, nil, homeworkKey)

	view, err := c.Append(ctx, textMsg("a", RoleAgent, "Hi", t0))
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, ids(view))

	view, err = c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(view), "local buffer survives store failures")
}

func TestComposerReplaceWithHistory(t *testing.T) {
	store := newMemStore()
	c := NewComposer(store, nil, homeworkKey)

	_, err := c.Append(ctx, textMsg("local-q", RoleStudent, "What is 2+2?", t0))
	require.NoError(t, err)
	mark := c.Mark()

	status := Message{ID: "status", From: RoleAgent, Kind: KindStatus, Content: "Analyzing...", Transient: true, Timestamp: t0}
	later := textMsg("local-later", RoleStudent, "And 3+3?", t0.Add(time.Second))
	_, err = c.Append(ctx, status, later)
	require.NoError(t, err)

	history := []Message{
		textMsg("h1", RoleStudent, "What is 2+2?", t0),
		textMsg("h2", RoleAgent, "4", t0.Add(time.Second)),
	}
	view, err := c.ReplaceWithHistory(ctx, history, mark)
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "h2", "status", "local-later"}, ids(view))
	assert.Equal(t, []string{"h1", "h2", "local-later"}, ids(store.thread(homeworkKey)))

	// history acknowledging the later message supersedes the local copy
	history = append(history, textMsg("h3", RoleStudent, "And 3+3?", t0.Add(2*time.Second)))
	view, err = c.ReplaceWithHistory(ctx, history, c.Mark())
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "h3", "status"}, ids(view))
}

func TestComposerHostThread(t *testing.T) {
	host := &fakeHost{msgs: []Message{textMsg("h", RoleAgent, "Hosted", t0)}}
	c := NewComposer(nil, host, homeworkKey)

	require.NoError(t, c.Seed(ctx, []Message{textMsg("s", RoleAgent, "ignored", t0)}))
	status := Message{ID: "st", From: RoleAgent, Kind: KindStatus, Content: "Analyzing...", Transient: true}
	_, err := c.Append(ctx, status)
	require.NoError(t, err)

	assert.Equal(t, []string{"h", "st"}, ids(host.Messages()), "host receives every write, transient included")
	view, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "st"}, ids(view))
}

func TestComposeView(t *testing.T) {
	a := textMsg("a", RoleAgent, "a", t0)
	b := textMsg("b", RoleStudent, "b", t0)
	c := textMsg("c", RoleAgent, "c", t0)
	tr := Message{ID: "t", From: RoleAgent, Kind: KindStatus, Transient: true}

	tests := []struct {
		name           string
		durable, local []Message
		want           []string
	}{
		{name: "no local buffer", durable: []Message{a, b}, want: []string{"a", "b"}},
		{name: "no durable thread", local: []Message{a, tr}, want: []string{"a", "t"}},
		{name: "local buffer covers durable", durable: []Message{a, b}, local: []Message{a, tr, b}, want: []string{"a", "t", "b"}},
		{name: "durable has new entries", durable: []Message{a, b, c}, local: []Message{a, tr}, want: []string{"a", "b", "c", "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeView(tt.durable, tt.local)
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("ComposeView() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
