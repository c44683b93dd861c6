package conversation

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func isStatus(m Message) bool { return m.Kind == KindStatus }
func isTable(m Message) bool  { return m.Kind == KindTable }

func TestUploadResolvesStatus(t *testing.T) {
	tests := []struct {
		name      string
		file      File
		analysis  Analysis
		wantKinds []Kind
		wantTable *Table
	}{
		{
			name:      "extracted text",
			file:      File{Name: "hw.png", ContentType: "image/png", Data: pngHeader},
			analysis:  Analysis{ExtractedText: "x", QA: []QA{}},
			wantKinds: []Kind{KindImage, KindText, KindTable},
			wantTable: &Table{ExtractedText: "x"},
		},
		{
			name:      "questions and answers",
			file:      File{Name: "hw.txt", Data: []byte("2+2 = 4")},
			analysis:  Analysis{QA: []QA{{Text: "2+2", Answer: "4"}}},
			wantKinds: []Kind{KindText, KindText, KindTable},
			wantTable: &Table{QA: []QA{{Text: "2+2", Answer: "4"}}},
		},
		{
			name:      "confirmation only",
			file:      File{Name: "hw.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
			analysis:  Analysis{},
			wantKinds: []Kind{KindText, KindText},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.backend.upload = func(File) (Analysis, error) { return tt.analysis, nil }

			require.NoError(t, env.svc.Upload(ctx, tt.file))

			view := env.view(t)
			var kinds []Kind
			for _, m := range view {
				kinds = append(kinds, m.Kind)
			}
			assert.Equal(t, tt.wantKinds, kinds)
			assert.Zero(t, count(view, isStatus), "the status bubble is resolved")
			assert.True(t, view[0].Transient)
			assert.Equal(t, RoleStudent, view[0].From)
			assert.Equal(t, defaultTexts.Confirmation, view[1].Content)

			if tt.wantTable != nil {
				assert.Equal(t, 1, count(view, isTable))
				assert.Equal(t, tt.wantTable, view[2].Table)
			}

			durable := env.store.thread(env.svc.Key())
			assert.Len(t, durable, len(view)-1, "the transient bubble is not persisted")
			assert.Zero(t, count(durable, func(m Message) bool { return m.Transient }))
		})
	}
}

func TestUploadBubbles(t *testing.T) {
	env := newTestEnv(t, Options{})
	var during, durableDuring []Message
	env.backend.upload = func(File) (Analysis, error) {
		during = env.view(t)
		durableDuring = env.store.thread(env.svc.Key())
		return Analysis{}, nil
	}

	require.NoError(t, env.svc.Upload(ctx, File{Name: "hw.png", Data: pngHeader}))

	require.Len(t, during, 2)
	assert.Equal(t, KindImage, during[0].Kind)
	assert.True(t, strings.HasPrefix(during[0].Content, "data:image/png;base64,"))
	assert.True(t, during[0].Transient)
	assert.Equal(t, KindStatus, during[1].Kind)
	assert.Equal(t, RoleAgent, during[1].From)
	assert.Equal(t, defaultTexts.Analyzing, during[1].Content)
	assert.True(t, during[1].Transient)
	assert.Empty(t, durableDuring, "nothing durable while analyzing")

	view := env.view(t)
	require.Len(t, view, 2)
	assert.Equal(t, during[0].ID, view[0].ID)
	assert.NotEqual(t, during[1].ID, view[1].ID, "the status is replaced, not updated")
}

func TestUploadPreviewFallback(t *testing.T) {
	env := newTestEnv(t, Options{MaxPreviewBytes: 4})
	require.NoError(t, env.svc.Upload(ctx, File{Name: "big.png", Data: pngHeader}))

	view := env.view(t)
	require.NotEmpty(t, view)
	assert.Equal(t, KindText, view[0].Kind)
	assert.Equal(t, "File uploaded: big.png", view[0].Content)
	assert.Equal(t, []string{"upload:big.png"}, env.backend.Calls(), "a preview failure does not abort the upload")
}

func TestUploadFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.upload = func(File) (Analysis, error) {
		return Analysis{}, &APIError{Status: http.StatusRequestEntityTooLarge, Message: "file too large"}
	}

	err := env.svc.Upload(ctx, File{Name: "hw.png", Data: pngHeader})
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))

	view := env.view(t)
	require.Len(t, view, 2)
	assert.Zero(t, count(view, isStatus))
	want := "Sorry, something went wrong (HTTP 413): file too large"
	assert.Equal(t, want, view[1].Content)
	assert.Equal(t, RoleAgent, view[1].From)

	toasts := env.notifier.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, want, toasts[0].Text)
}

func TestUploadAdoptsIDs(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.upload = func(File) (Analysis, error) {
		return Analysis{ConversationID: "c9", ScanID: "scan-9", ImageURL: "https://cdn.example.com/u/1.png"}, nil
	}

	require.NoError(t, env.svc.Upload(ctx, File{Name: "hw.png", Data: pngHeader}))
	assert.Equal(t, "c9", env.svc.ConversationID())
	assert.Equal(t, "scan-9", env.svc.ScanID())

	view := env.view(t)
	require.Len(t, view, 2)
	assert.Equal(t, KindImage, view[0].Kind)
	assert.Equal(t, "https://cdn.example.com/u/1.png", view[0].Content)
	assert.False(t, view[0].Transient)
	assert.Len(t, env.store.thread(env.svc.Key()), 2, "the uploaded image is durable")

	// text sends now go to the adopted conversation, without a nudge
	var got SendRequest
	env.backend.post = func(convID string, req SendRequest) (Reply, error) {
		got = req
		return Reply{ConversationID: convID}, nil
	}
	env.backend.history = func(string) ([]Message, error) { return nil, nil }
	outcome, err := env.svc.Send(ctx, "Explain question 1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome)
	assert.Equal(t, "scan-9", got.ScanID)
	assert.Equal(t, []string{"upload:hw.png", "post:c9", "history:c9"}, env.backend.Calls())
}

func TestUploadSequential(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.upload = func(file File) (Analysis, error) {
		view := env.view(t)
		assert.Equal(t, 1, count(view, isStatus), "one status bubble at a time")
		if file.Name == "b.txt" {
			return Analysis{}, &APIError{Status: http.StatusUnprocessableEntity, Message: "unreadable"}
		}
		return Analysis{ExtractedText: file.Name}, nil
	}

	err := env.svc.Upload(ctx,
		File{Name: "a.txt", Data: []byte("a")},
		File{Name: "b.txt", Data: []byte("b")},
		File{Name: "c.txt", Data: []byte("c")},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")

	assert.Equal(t, []string{"upload:a.txt", "upload:b.txt", "upload:c.txt"}, env.backend.Calls())
	view := env.view(t)
	assert.Equal(t, []string{
		"File uploaded: a.txt", defaultTexts.Confirmation, "a.txt",
		"File uploaded: b.txt", "Sorry, something went wrong (HTTP 422): unreadable",
		"File uploaded: c.txt", defaultTexts.Confirmation, "c.txt",
	}, texts(view))
}

func TestUploadStatusGone(t *testing.T) {
	assert.Equal(t,
		[]string{"a", "x", "y"},
		ids(replaceByID([]Message{{ID: "a"}}, "missing", Message{ID: "x"}, Message{ID: "y"})),
	)
	assert.Equal(t,
		[]string{"a", "x", "y", "c"},
		ids(replaceByID([]Message{{ID: "a"}, {ID: "st"}, {ID: "c"}}, "st", Message{ID: "x"}, Message{ID: "y"})),
	)
}
