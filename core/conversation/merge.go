package conversation

import (
	"strconv"
	"strings"
)

// keyContentLen is how much of the content goes into a fallback key.
const keyContentLen = 64

// MessageKey returns the stable identity of a message, used for dedup and as a list-rendering key.
// Messages without an id are identified by their sender, timestamp and the start of their content.
func MessageKey(m Message) string {
	if m.ID != "" {
		return "id:" + m.ID
	}

	var ts string
	if !m.Timestamp.IsZero() {
		ts = strconv.FormatInt(m.Timestamp.UnixMilli(), 10)
	}
	content := []rune(m.Text())
	if len(content) > keyContentLen {
		content = content[:keyContentLen]
	}

	var sb strings.Builder
	sb.WriteString(string(m.From))
	sb.WriteByte('|')
	sb.WriteString(ts)
	sb.WriteByte('|')
	sb.WriteString(string(content))
	return sb.String()
}

// Merge concatenates the sequences and drops every message whose key was already seen,
// keeping the first occurrence. Nil sequences are treated as empty.
func Merge(seqs ...[]Message) []Message {
	var n int
	for _, seq := range seqs {
		n += len(seq)
	}
	merged := make([]Message, 0, n)
	seen := make(map[string]struct{}, n)
	for _, seq := range seqs {
		for _, m := range seq {
			k := MessageKey(m)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, m)
		}
	}
	return merged
}

// Persistable returns the messages safe to store durably:
// transient messages and inline (data URI) image previews are left out.
func Persistable(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Transient {
			continue
		}
		if m.Kind == KindImage && IsDataURI(m.Content) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func IsDataURI(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

func keySet(msgs []Message) map[string]struct{} {
	set := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		set[MessageKey(m)] = struct{}{}
	}
	return set
}

func indexByID(msgs []Message, id string) int {
	if id == "" {
		return -1
	}
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
