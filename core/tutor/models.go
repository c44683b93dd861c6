package tutor

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
)

type Conversation struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	ScanID    string                 `json:"scanId,omitempty"`
	Messages  []conversation.Message `json:"messages"`
	CreatedAt time.Time              `json:"createdAt"` // UTC
	UpdatedAt time.Time              `json:"updatedAt"` // UTC
}

type Upload struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	ConversationID string            `json:"conversationId"`
	Name           string            `json:"name"`
	ContentType    string            `json:"contentType"`
	Data           []byte            `json:"-"`
	ExtractedText  string            `json:"extractedText,omitempty"`
	QA             []conversation.QA `json:"qa,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"` // UTC
}

func (up Upload) IsImage() bool { return strings.HasPrefix(up.ContentType, "image/") }

// Reply is the response to a student message.
type Reply struct {
	ConversationID string `json:"conversationId"`
	Answer         string `json:"answer"`
}

// Analysis is the response to an upload.
type Analysis struct {
	ConversationID string            `json:"conversationId"`
	ScanID         string            `json:"scanId"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	ExtractedText  string            `json:"extractedText,omitempty"`
	QA             []conversation.QA `json:"qa,omitempty"`
}

// NewMessage contains information needed to post a student message.
type NewMessage struct {
	UserID string `json:"userId" validate:"required"`
	Text   string `json:"text" validate:"required"`
	ScanID string `json:"scanId"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.UserID = core.CleanString(nm.UserID)
	nm.Text = core.CleanString(nm.Text)
	nm.ScanID = core.CleanString(nm.ScanID)
	return validate.Struct(nm)
}

// NewUpload contains information needed to analyze a file.
type NewUpload struct {
	UserID      string `json:"userId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-" validate:"min=1"`
}

func (nu *NewUpload) Validate(validate *validator.Validate) error {
	nu.UserID = core.CleanString(nu.UserID)
	nu.Name = core.CleanString(nu.Name)
	nu.ContentType = core.CleanString(nu.ContentType, true /* lower */)
	return validate.Struct(nu)
}
