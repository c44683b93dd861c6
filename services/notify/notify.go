package notifysvc

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
)

// LoggerNotifier records toasts as log entries: errors at Error level, the rest at Info level.
type LoggerNotifier struct {
	logger core.Logger
}

var _ conversation.Notifier = (*LoggerNotifier)(nil)

func NewLoggerNotifier(logger core.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n LoggerNotifier) Notify(toast conversation.Toast) {
	msg := toast.Title + ": " + toast.Text
	if toast.Level == conversation.LevelError {
		n.logger.Error(msg)
		return
	}
	n.logger.Info(msg)
}

// WriterNotifier prints toasts to a writer, one line each.
type WriterNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

var _ conversation.Notifier = (*WriterNotifier)(nil)

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w, now: time.Now}
}

func (n *WriterNotifier) Notify(toast conversation.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "%s [%s] %s: %s\n", n.now().Format("15:04:05"), toast.Level, toast.Title, toast.Text)
}

// Recorder keeps every toast it receives; for tests and hosts that render toasts themselves.
type Recorder struct {
	mu     sync.Mutex
	toasts []conversation.Toast
}

var _ conversation.Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(toast conversation.Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, toast)
	r.mu.Unlock()
}

func (r *Recorder) Toasts() []conversation.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]conversation.Toast(nil), r.toasts...)
}

// Last returns the latest toast, if any.
func (r *Recorder) Last() (conversation.Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return conversation.Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}
