package backend

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core/conversation"
)

type replyBody struct {
	ConversationID  string          `json:"conversationId"`
	ConversationID2 string          `json:"conversation_id"`
	Answer          string          `json:"answer"`
	Reply           string          `json:"reply"`
	Message         json.RawMessage `json:"message"`
}

func (rb replyBody) reply() conversation.Reply {
	return conversation.Reply{
		ConversationID: firstNonEmpty(rb.ConversationID, rb.ConversationID2),
		Answer:         firstNonEmpty(rb.Answer, rb.Reply, rawString(rb.Message)),
	}
}

type analysisBody struct {
	ConversationID  string            `json:"conversationId"`
	ConversationID2 string            `json:"conversation_id"`
	ScanID          string            `json:"scanId"`
	ScanID2         string            `json:"scan_id"`
	ImageURL        string            `json:"imageUrl"`
	ImageURL2       string            `json:"image_url"`
	ExtractedText   string            `json:"extractedText"`
	ExtractedText2  string            `json:"extracted_text"`
	QA              []conversation.QA `json:"qa"`
}

func (ab analysisBody) analysis() conversation.Analysis {
	return conversation.Analysis{
		ConversationID: firstNonEmpty(ab.ConversationID, ab.ConversationID2),
		ScanID:         firstNonEmpty(ab.ScanID, ab.ScanID2),
		ImageURL:       firstNonEmpty(ab.ImageURL, ab.ImageURL2),
		ExtractedText:  firstNonEmpty(ab.ExtractedText, ab.ExtractedText2),
		QA:             ab.QA,
	}
}

// decodeHistory accepts a bare message list, `{"messages": [...]}` and `{"items": [...]}`.
func decodeHistory(data []byte) ([]conversation.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}

	var msgs []conversation.Message
	if data[0] == '[' {
		err := json.Unmarshal(data, &msgs)
		return msgs, err
	}

	var wrapped struct {
		Messages []conversation.Message `json:"messages"`
		Items    []conversation.Message `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Messages != nil {
		return wrapped.Messages, nil
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return []conversation.Message{}, nil
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body string) string {
	var eb struct {
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &eb); err == nil {
		if msg := firstNonEmpty(rawString(eb.Error), rawString(eb.Message), rawString(eb.Detail)); msg != "" {
			return msg
		}
		// validation errors: {"text": "text is required"}
		var fields map[string]string
		if err := json.Unmarshal([]byte(body), &fields); err == nil && len(fields) > 0 {
			parts := make([]string, 0, len(fields))
			for _, v := range fields {
				parts = append(parts, v)
			}
			sort.Strings(parts)
			return strings.Join(parts, "; ")
		}
		return ""
	}

	msg := strings.TrimSpace(body)
	if len(msg) > maxErrorLen {
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

// rawString returns raw when it holds a JSON string.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
