package tutor

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
)

var (
	// errors
	ErrNotFound       = errors.New("conversation not found")
	ErrUploadNotFound = errors.New("upload not found")
)

type (
	Repository interface {
		CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
		GetConversation(ctx context.Context, id string) (Conversation, error)
		// AppendMessages adds msgs at the end of the conversation and bumps its UpdatedAt.
		AppendMessages(ctx context.Context, id string, msgs ...conversation.Message) (Conversation, error)
		CreateUpload(ctx context.Context, up Upload) (Upload, error)
		GetUpload(ctx context.Context, id string) (Upload, error)
	}

	Service struct {
		repo      Repository
		validate  *validator.Validate
		uploadURL func(id string) string
		now       func() time.Time
	}
)

// NewService returns the tutoring service. uploadURL builds the public URL of a stored upload.
func NewService(repo Repository, validate *validator.Validate, uploadURL func(id string) string) *Service {
	return &Service{
		repo:      repo,
		validate:  validate,
		uploadURL: uploadURL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateMessage posts a student message without conversation: it lands in the conversation of
// the referenced scan when there is one, a new conversation otherwise.
func (svc *Service) CreateMessage(ctx context.Context, nm NewMessage) (Reply, error) {
	if err := nm.Validate(svc.validate); err != nil {
		return Reply{}, err
	}

	if nm.ScanID != "" {
		up, err := svc.repo.GetUpload(ctx, nm.ScanID)
		switch {
		case err == nil && up.ConversationID != "" && up.UserID == nm.UserID:
			return svc.post(ctx, up.ConversationID, nm)
		case err != nil && err != ErrUploadNotFound:
			return Reply{}, errors.Wrap(err, "finding scan")
		}
	}

	now := svc.now()
	conv, err := svc.repo.CreateConversation(ctx, Conversation{
		ID:        uuid.New().String(),
		UserID:    nm.UserID,
		ScanID:    nm.ScanID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Reply{}, errors.Wrap(err, "creating conversation")
	}
	return svc.post(ctx, conv.ID, nm)
}

// PostMessage posts a student message to an existing conversation.
func (svc *Service) PostMessage(ctx context.Context, conversationID string, nm NewMessage) (Reply, error) {
	if err := nm.Validate(svc.validate); err != nil {
		return Reply{}, err
	}
	return svc.post(ctx, conversationID, nm)
}

func (svc *Service) post(ctx context.Context, conversationID string, nm NewMessage) (Reply, error) {
	conv, err := svc.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}
	if conv.UserID != nm.UserID {
		return Reply{}, ErrNotFound
	}

	var qa []conversation.QA
	if scanID := firstNonEmpty(nm.ScanID, conv.ScanID); scanID != "" {
		if up, err := svc.repo.GetUpload(ctx, scanID); err == nil {
			qa = up.QA
		}
	}

	answer := Answer(nm.Text, qa)
	now := svc.now()
	_, err = svc.repo.AppendMessages(ctx, conv.ID,
		svc.message(conversation.RoleStudent, conversation.KindText, nm.Text, now),
		svc.message(conversation.RoleAgent, conversation.KindText, answer, now),
	)
	if err != nil {
		return Reply{}, appendError(err, conv.ID)
	}
	return Reply{ConversationID: conv.ID, Answer: answer}, nil
}

// History returns the messages of a conversation, oldest first.
func (svc *Service) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	conv, err := svc.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Messages == nil {
		return []conversation.Message{}, nil
	}
	return conv.Messages, nil
}

// Analyze stores an upload, extracts what it can from it and opens a conversation about it.
// Text files are read line by line: `question = answer` lines become question/answer pairs.
func (svc *Service) Analyze(ctx context.Context, nu NewUpload) (Analysis, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return Analysis{}, err
	}
	if nu.ContentType == "" || nu.ContentType == "application/octet-stream" {
		nu.ContentType = http.DetectContentType(nu.Data)
	}
	nu.ContentType = strings.TrimSpace(strings.SplitN(nu.ContentType, ";", 2)[0])

	now := svc.now()
	up := Upload{
		ID:          uuid.New().String(),
		UserID:      nu.UserID,
		Name:        nu.Name,
		ContentType: nu.ContentType,
		Data:        nu.Data,
		CreatedAt:   now,
	}
	if strings.HasPrefix(up.ContentType, "text/") {
		up.ExtractedText, up.QA = ExtractQA(string(nu.Data))
	}

	conv, err := svc.repo.CreateConversation(ctx, Conversation{
		ID:        uuid.New().String(),
		UserID:    up.UserID,
		ScanID:    up.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Analysis{}, errors.Wrap(err, "creating conversation")
	}
	up.ConversationID = conv.ID

	if up, err = svc.repo.CreateUpload(ctx, up); err != nil {
		return Analysis{}, errors.Wrap(err, "storing upload")
	}

	analysis := Analysis{
		ConversationID: conv.ID,
		ScanID:         up.ID,
		ExtractedText:  up.ExtractedText,
		QA:             up.QA,
	}
	msgs := make([]conversation.Message, 0, 2)
	if up.IsImage() {
		analysis.ImageURL = svc.uploadURL(up.ID)
		msgs = append(msgs, svc.message(conversation.RoleStudent, conversation.KindImage, analysis.ImageURL, now))
	} else {
		msgs = append(msgs, svc.message(conversation.RoleStudent, conversation.KindText, "File uploaded: "+up.Name, now))
	}
	if up.ExtractedText != "" || len(up.QA) > 0 {
		tbl := svc.message(conversation.RoleAgent, conversation.KindTable, "", now)
		tbl.Table = &conversation.Table{ExtractedText: up.ExtractedText, QA: up.QA}
		msgs = append(msgs, tbl)
	}
	if _, err := svc.repo.AppendMessages(ctx, conv.ID, msgs...); err != nil {
		return Analysis{}, appendError(err, conv.ID)
	}
	return analysis, nil
}

func (svc *Service) GetUpload(ctx context.Context, id string) (Upload, error) {
	return svc.repo.GetUpload(ctx, id)
}

func (svc *Service) message(from conversation.Role, kind conversation.Kind, content string, ts time.Time) conversation.Message {
	return conversation.Message{
		ID:        uuid.New().String(),
		From:      from,
		Kind:      kind,
		Content:   content,
		Timestamp: ts,
	}
}

// Answer is the canned tutor: it answers questions found in the scan and coaches otherwise.
func Answer(text string, qa []conversation.QA) string {
	lower := strings.ToLower(text)
	for _, pair := range qa {
		q := strings.ToLower(strings.TrimSpace(pair.Text))
		if q != "" && strings.Contains(lower, q) {
			return fmt.Sprintf("The answer to %q is %s.", pair.Text, pair.Answer)
		}
	}
	if len(qa) > 0 {
		return fmt.Sprintf("I found %d question(s) in your homework. Which one should we work on?", len(qa))
	}
	return fmt.Sprintf("Let's work through %q together. What have you tried so far?", text)
}

// ExtractQA returns the trimmed text and the `question = answer` pairs it holds.
func ExtractQA(text string) (string, []conversation.QA) {
	var qa []conversation.QA
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		i := strings.LastIndex(line, "=")
		if i <= 0 || i == len(line)-1 {
			continue
		}
		q, a := strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
		if q == "" || a == "" {
			continue
		}
		qa = append(qa, conversation.QA{Text: q, Answer: a})
	}
	return strings.TrimSpace(text), qa
}

// appendError wraps a failure to append to a conversation that was just read or created.
// Losing it in between means the repository cannot be trusted anymore: the server is shut down.
func appendError(err error, conversationID string) error {
	if err == ErrNotFound {
		return core.NewShutdownError("conversation " + conversationID + " vanished from the repository")
	}
	return errors.Wrap(err, "appending messages")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
