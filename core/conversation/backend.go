package conversation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type (
	SendRequest struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
		ScanID string `json:"scanId,omitempty"`
	}

	Reply struct {
		ConversationID string
		Answer         string
	}

	File struct {
		Name        string
		ContentType string
		Data        []byte
	}

	Analysis struct {
		ConversationID string
		ScanID         string
		ImageURL       string
		ExtractedText  string
		QA             []QA
	}

	// Backend is the messaging backend.
	Backend interface {
		// CreateConversationMessage posts to the flat endpoint, the backend picks or creates the conversation.
		CreateConversationMessage(ctx context.Context, req SendRequest) (Reply, error)
		// PostToConversation posts to an existing conversation; fails with a 404 or 400 APIError when the id is stale.
		PostToConversation(ctx context.Context, conversationID string, req SendRequest) (Reply, error)
		FetchConversationHistory(ctx context.Context, conversationID string) ([]Message, error)
		UploadAndAnalyze(ctx context.Context, file File, userID string) (Analysis, error)
	}
)

func (a Analysis) HasTable() bool {
	return a.ExtractedText != "" || len(a.QA) > 0
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend responded with HTTP %d: %s", e.Status, e.Message)
}

// IsStaleReference reports whether err means the conversation id is no longer known by the backend.
func IsStaleReference(err error) bool {
	switch StatusOf(err) {
	case http.StatusNotFound, http.StatusBadRequest:
		return true
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ServerMessage returns the human readable message the backend sent along with err, if any.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
