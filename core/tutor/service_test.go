package tutor_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/core/tutor"
	inmemdb "github.com/trezcool/homeworkchat/storage/database/inmem"
)

var ctx = context.Background()

func newService() (*tutor.Service, tutor.Repository) {
	validate, _ := core.NewValidator()
	repo := inmemdb.NewTutorRepository(inmemdb.Open())
	return tutor.NewService(repo, validate, func(id string) string { return "http://files.test/" + id }), repo
}

func TestService_CreateMessage(t *testing.T) {
	svc, repo := newService()

	reply, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: " kid ", Text: " How do I start? "})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, tutor.Answer("How do I start?", nil), reply.Answer)

	conv, err := repo.GetConversation(ctx, reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "kid", conv.UserID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, conversation.RoleStudent, conv.Messages[0].From)
	assert.Equal(t, "How do I start?", conv.Messages[0].Content)
	assert.Equal(t, conversation.RoleAgent, conv.Messages[1].From)

	// a new conversation each time without scan
	again, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "again"})
	require.NoError(t, err)
	assert.NotEqual(t, reply.ConversationID, again.ConversationID)
}

func TestService_CreateMessage_Validation(t *testing.T) {
	svc, _ := newService()

	_, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "  "})
	var vErrs validator.ValidationErrors
	require.True(t, errors.As(err, &vErrs))
	require.Len(t, vErrs, 1)
	assert.Equal(t, "text", vErrs[0].Field())
}

func TestService_PostMessage(t *testing.T) {
	svc, _ := newService()
	first, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "hi"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		convID  string
		userID  string
		wantErr error
	}{
		{name: "same conversation", convID: first.ConversationID, userID: "kid"},
		{name: "unknown conversation", convID: "nope", userID: "kid", wantErr: tutor.ErrNotFound},
		{name: "someone else's conversation", convID: first.ConversationID, userID: "other", wantErr: tutor.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := svc.PostMessage(ctx, tt.convID, tutor.NewMessage{UserID: tt.userID, Text: "next"})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.convID, reply.ConversationID)
		})
	}

	history, err := svc.History(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestService_History(t *testing.T) {
	svc, repo := newService()

	_, err := svc.History(ctx, "nope")
	assert.Equal(t, tutor.ErrNotFound, err)

	_, err = repo.CreateConversation(ctx, tutor.Conversation{ID: "c1", UserID: "kid"})
	require.NoError(t, err)
	history, err := svc.History(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestService_Analyze(t *testing.T) {
	svc, repo := newService()

	t.Run("text", func(t *testing.T) {
		analysis, err := svc.Analyze(ctx, tutor.NewUpload{
			UserID: "kid",
			Name:   "hw.txt",
			Data:   []byte("Maths\n2+2 = 4\n= nothing\nx =\n3*3 = 9\n"),
		})
		require.NoError(t, err)
		assert.Empty(t, analysis.ImageURL)
		assert.Equal(t, "Maths\n2+2 = 4\n= nothing\nx =\n3*3 = 9", analysis.ExtractedText)
		assert.Equal(t, []conversation.QA{{Text: "2+2", Answer: "4"}, {Text: "3*3", Answer: "9"}}, analysis.QA)

		up, err := svc.GetUpload(ctx, analysis.ScanID)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", up.ContentType)
		assert.Equal(t, analysis.ConversationID, up.ConversationID)

		conv, err := repo.GetConversation(ctx, analysis.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, analysis.ScanID, conv.ScanID)
		require.Len(t, conv.Messages, 2)
		assert.Equal(t, "File uploaded: hw.txt", conv.Messages[0].Content)
		assert.Equal(t, conversation.KindTable, conv.Messages[1].Kind)

		// messages about the scan are answered from it, in its conversation
		reply, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "what about 3*3?", ScanID: analysis.ScanID})
		require.NoError(t, err)
		assert.Equal(t, analysis.ConversationID, reply.ConversationID)
		assert.Equal(t, `The answer to "3*3" is 9.`, reply.Answer)

		reply, err = svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "help", ScanID: analysis.ScanID})
		require.NoError(t, err)
		assert.Equal(t, "I found 2 question(s) in your homework. Which one should we work on?", reply.Answer)

		// another student's scan opens a new conversation
		reply, err = svc.CreateMessage(ctx, tutor.NewMessage{UserID: "other", Text: "help", ScanID: analysis.ScanID})
		require.NoError(t, err)
		assert.NotEqual(t, analysis.ConversationID, reply.ConversationID)
	})

	t.Run("image", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		analysis, err := svc.Analyze(ctx, tutor.NewUpload{UserID: "kid", Name: "page", ContentType: "application/octet-stream", Data: png})
		require.NoError(t, err)
		assert.Equal(t, "http://files.test/"+analysis.ScanID, analysis.ImageURL)
		assert.Empty(t, analysis.QA)

		conv, err := repo.GetConversation(ctx, analysis.ConversationID)
		require.NoError(t, err)
		require.Len(t, conv.Messages, 1)
		assert.Equal(t, conversation.KindImage, conv.Messages[0].Kind)
		assert.Equal(t, analysis.ImageURL, conv.Messages[0].Content)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.Analyze(ctx, tutor.NewUpload{UserID: "kid", Name: "x.txt"})
		assert.Error(t, err)
	})
}

type vanishingRepo struct {
	tutor.Repository
}

func (vanishingRepo) AppendMessages(context.Context, string, ...conversation.Message) (tutor.Conversation, error) {
	return tutor.Conversation{}, tutor.ErrNotFound
}

func TestService_RepositoryIntegrity(t *testing.T) {
	validate, _ := core.NewValidator()
	repo := vanishingRepo{inmemdb.NewTutorRepository(inmemdb.Open())}
	svc := tutor.NewService(repo, validate, func(id string) string { return id })

	_, err := svc.CreateMessage(ctx, tutor.NewMessage{UserID: "kid", Text: "hi"})
	assert.True(t, core.IsShutdown(err), "%v", err)

	_, err = svc.Analyze(ctx, tutor.NewUpload{UserID: "kid", Name: "hw.txt", Data: []byte("1+1 = 2")})
	assert.True(t, core.IsShutdown(err), "%v", err)
}

func TestExtractQA(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantText string
		wantQA   []conversation.QA
	}{
		{name: "empty", text: "  ", wantText: ""},
		{name: "no pairs", text: "just text", wantText: "just text"},
		{name: "last equal sign splits", text: "a = b = c", wantText: "a = b = c", wantQA: []conversation.QA{{Text: "a = b", Answer: "c"}}},
		{name: "blank sides", text: " = x\ny = \n", wantText: "= x\ny =", wantQA: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, qa := tutor.ExtractQA(tt.text)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantQA, qa)
		})
	}
}

func TestAnswer(t *testing.T) {
	qa := []conversation.QA{{Text: "Capital of France", Answer: "Paris"}}
	assert.Equal(t, `The answer to "Capital of France" is Paris.`, tutor.Answer("what is the capital of france?", qa))
	assert.Equal(t, "I found 1 question(s) in your homework. Which one should we work on?", tutor.Answer("hmm", qa))
	assert.Equal(t, `Let's work through "hmm" together. What have you tried so far?`, tutor.Answer("hmm", nil))
}
