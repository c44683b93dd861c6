package conversation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Roles
const (
	RoleAgent   Role = "agent"
	RoleStudent Role = "student"
)

// Kinds
const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindStatus Kind = "status" // transient progress indicator, eg. "analyzing"
	KindTable  Kind = "table"  // structured extraction result
)

var (
	roleSynonyms = map[string]Role{
		"agent":     RoleAgent,
		"assistant": RoleAgent,
		"bot":       RoleAgent,
		"ai":        RoleAgent,
		"tutor":     RoleAgent,
		"system":    RoleAgent,
		"student":   RoleStudent,
		"user":      RoleStudent,
		"me":        RoleStudent,
		"human":     RoleStudent,
	}

	kinds = map[string]Kind{
		"text":   KindText,
		"image":  KindImage,
		"status": KindStatus,
		"table":  KindTable,
	}
)

type (
	Role string
	Kind string

	QA struct {
		Text   string `json:"text"`
		Answer string `json:"answer"`
	}

	Table struct {
		ExtractedText string `json:"extractedText,omitempty"`
		QA            []QA   `json:"qa"`
	}

	Message struct {
		ID        string    `json:"id"`
		From      Role      `json:"from" validate:"required,oneof=agent student"`
		Kind      Kind      `json:"type" validate:"required,oneof=text image status table"`
		Content   string    `json:"content"`
		Table     *Table    `json:"-"`
		Timestamp time.Time `json:"timestamp"`
		Transient bool      `json:"transient,omitempty"`
	}
)

// NormalizeRole maps the many sender vocabularies found in the wild to one canonical Role.
// Unknown and blank values are treated as the student's.
func NormalizeRole(s string) Role {
	if role, ok := roleSynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return role
	}
	return RoleStudent
}

func NewMessageID() string { return uuid.New().String() }

func (m Message) IsAgent() bool   { return m.From == RoleAgent }
func (m Message) IsStudent() bool { return m.From == RoleStudent }

// Text returns the textual part of the message, the extracted text for tables.
func (m Message) Text() string {
	if m.Kind == KindTable && m.Table != nil && m.Content == "" {
		return m.Table.ExtractedText
	}
	return m.Content
}

func (m Message) Validate(validate *validator.Validate) error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if m.Kind == KindTable && m.Table == nil {
		return errors.New("table message without table content")
	}
	return nil
}

func (m Message) clone() Message {
	if m.Table != nil {
		tbl := *m.Table
		tbl.QA = append([]QA(nil), m.Table.QA...)
		m.Table = &tbl
	}
	return m
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}

type wireMessage struct {
	ID        string      `json:"id,omitempty"`
	From      Role        `json:"from"`
	Kind      Kind        `json:"type"`
	Content   interface{} `json:"content"`
	Timestamp string      `json:"timestamp,omitempty"`
	Transient bool        `json:"transient,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:        m.ID,
		From:      m.From,
		Kind:      m.Kind,
		Content:   m.Content,
		Transient: m.Transient,
	}
	if m.Kind == KindTable && m.Table != nil {
		w.Content = m.Table
	}
	if !m.Timestamp.IsZero() {
		w.Timestamp = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

type looseMessage struct {
	ID        json.RawMessage `json:"id"`
	From      string          `json:"from"`
	Role      string          `json:"role"`
	Sender    string          `json:"sender"`
	Type      string          `json:"type"`
	Kind      string          `json:"kind"`
	Content   json.RawMessage `json:"content"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
	CreatedAt json.RawMessage `json:"createdAt"`
	Transient bool            `json:"transient"`
}

// UnmarshalJSON accepts the message shapes produced by the messaging backend and by older clients:
// `role`/`sender` for `from`, `kind` for `type`, numeric ids, string or object content,
// and RFC3339 or unix timestamps.
func (m *Message) UnmarshalJSON(data []byte) error {
	var lm looseMessage
	if err := json.Unmarshal(data, &lm); err != nil {
		return err
	}

	msg := Message{Transient: lm.Transient}
	msg.ID = rawToString(lm.ID)
	msg.From = NormalizeRole(firstNonEmpty(lm.From, lm.Role, lm.Sender))

	content := bytes.TrimSpace(lm.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
		msg.Content = lm.Text
	case content[0] == '{':
		var tbl Table
		if err := json.Unmarshal(content, &tbl); err != nil {
			return errors.Wrap(err, "decoding table content")
		}
		msg.Table = &tbl
	default:
		msg.Content = rawToString(content)
	}

	kind, ok := kinds[strings.ToLower(strings.TrimSpace(firstNonEmpty(lm.Type, lm.Kind)))]
	switch {
	case ok:
		msg.Kind = kind
	case msg.Table != nil:
		msg.Kind = KindTable
	default:
		msg.Kind = KindText
	}
	if msg.Kind == KindTable && msg.Table == nil {
		msg.Table = &Table{ExtractedText: msg.Content}
		msg.Content = ""
	}

	ts := lm.Timestamp
	if len(bytes.TrimSpace(ts)) == 0 || bytes.Equal(ts, []byte("null")) {
		ts = lm.CreatedAt
	}
	t, err := parseTimestamp(ts)
	if err != nil {
		return err
	}
	msg.Timestamp = t

	*m = msg
	return nil
}

type looseTable struct {
	ExtractedText  *string         `json:"extractedText"`
	ExtractedText2 *string         `json:"extracted_text"`
	QA             []QA            `json:"qa"`
	QAs            []QA            `json:"qas"`
	Questions      []looseQuestion `json:"questions"`
}

type looseQuestion struct {
	Text     string `json:"text"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var lt looseTable
	if err := json.Unmarshal(data, &lt); err != nil {
		return err
	}
	tbl := Table{}
	if lt.ExtractedText != nil {
		tbl.ExtractedText = *lt.ExtractedText
	} else if lt.ExtractedText2 != nil {
		tbl.ExtractedText = *lt.ExtractedText2
	}
	switch {
	case lt.QA != nil:
		tbl.QA = lt.QA
	case lt.QAs != nil:
		tbl.QA = lt.QAs
	default:
		for _, q := range lt.Questions {
			tbl.QA = append(tbl.QA, QA{Text: firstNonEmpty(q.Text, q.Question), Answer: q.Answer})
		}
	}
	*t = tbl
	return nil
}

func (q *QA) UnmarshalJSON(data []byte) error {
	var lq looseQuestion
	if err := json.Unmarshal(data, &lq); err != nil {
		return err
	}
	*q = QA{Text: firstNonEmpty(lq.Text, lq.Question), Answer: lq.Answer}
	return nil
}

// parseTimestamp accepts RFC3339 strings, unix milliseconds and (small values) unix seconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), nil
		}
		return time.Time{}, errors.Errorf("invalid timestamp %q", s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "invalid timestamp")
	}
	return unixTime(int64(f)), nil
}

func unixTime(n int64) time.Time {
	if n < 1e11 { // seconds
		return time.Unix(n, 0).UTC()
	}
	return time.Unix(0, n*int64(time.Millisecond)).UTC()
}

func rawToString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
