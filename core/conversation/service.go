package conversation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core"
)

// DefaultMaxPreviewBytes bounds the size of images rendered as inline previews.
const DefaultMaxPreviewBytes = 5 << 20

var defaultTexts = Texts{
	Greeting:       "Hi! Upload a photo of your homework, or ask me a question about it.",
	Nudge:          "Please upload a photo of your homework or ask a question about it, so I can help you.",
	Analyzing:      "Analyzing...",
	Confirmation:   "Done! I have analyzed your file.",
	FileUploaded:   "File uploaded: %s",
	Failure:        "Sorry, something went wrong",
	GenericFailure: "Please try again in a moment.",
	ToastTitle:     "Homework chat",
}

type (
	// Texts are the canned messages of the engine. Blank fields take the default.
	Texts struct {
		Greeting       string
		Nudge          string
		Analyzing      string
		Confirmation   string
		FileUploaded   string // format, receives the file name
		Failure        string
		GenericFailure string
		ToastTitle     string
	}

	Options struct {
		UserID         string
		Mode           string
		TaskID         string
		ScanID         string
		ConversationID string

		Store    Store
		Host     HostThread
		Backend  Backend
		Notifier Notifier
		Logger   core.Logger
		Validate *validator.Validate

		// Seed is written to the durable thread the first time it is found empty.
		// A nil Seed means a single greeting from the agent, an empty one disables seeding.
		Seed  []Message
		Texts Texts

		MaxPreviewBytes int
		OnChange        func([]Message)

		Now   func() time.Time
		NewID func() string
	}

	// Service drives one chat widget: it composes the view and coordinates sends and uploads.
	Service struct {
		opts     Options
		texts    Texts
		composer *Composer
		seed     []Message

		sending  atomic.Bool
		uploadMu sync.Mutex

		mu             sync.Mutex
		nudged         bool
		conversationID string
		scanID         string
	}
)

func NewService(opts Options) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(opts.UserID, "UserID"),
		isSet(opts.Backend == nil, "Backend"),
		isSet(opts.Notifier == nil, "Notifier"),
		isSet(opts.Logger == nil, "Logger"),
		storeOrHost(opts),
	).Check()
	if err != nil {
		return nil, core.NewValidationError(err)
	}

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = NewMessageID
	}
	if opts.MaxPreviewBytes <= 0 {
		opts.MaxPreviewBytes = DefaultMaxPreviewBytes
	}
	if opts.Validate == nil {
		opts.Validate, _ = core.NewValidator()
	}

	s := &Service{
		opts:           opts,
		texts:          opts.Texts.withDefaults(),
		conversationID: opts.ConversationID,
		scanID:         opts.ScanID,
	}

	if opts.Seed == nil {
		s.seed = []Message{{From: RoleAgent, Kind: KindText, Content: s.texts.Greeting}}
	} else {
		s.seed = cloneMessages(opts.Seed)
	}
	for i := range s.seed {
		if s.seed[i].ID == "" {
			s.seed[i].ID = opts.NewID()
		}
		if s.seed[i].Timestamp.IsZero() {
			s.seed[i].Timestamp = opts.Now()
		}
		if err := s.seed[i].Validate(opts.Validate); err != nil {
			return nil, errors.Wrapf(err, "validating seed message %d", i)
		}
	}

	s.composer = NewComposer(opts.Store, opts.Host, ResolveThreadKey(opts.Mode, opts.TaskID))
	if opts.OnChange != nil {
		s.composer.OnChange(opts.OnChange)
	}
	return s, nil
}

// isSet replaces vala.IsNotNil, which panics on dependencies implemented by value types.
func isSet(missing bool, name string) vala.Checker {
	return func() (bool, string) {
		if missing {
			return false, "parameter was nil: " + name
		}
		return true, ""
	}
}

func storeOrHost(opts Options) vala.Checker {
	return func() (bool, string) {
		if opts.Store == nil && opts.Host == nil {
			return false, "one of Store or Host is required"
		}
		return true, ""
	}
}

func (t Texts) withDefaults() Texts {
	pick := func(val, def string) string {
		if val == "" {
			return def
		}
		return val
	}
	return Texts{
		Greeting:       pick(t.Greeting, defaultTexts.Greeting),
		Nudge:          pick(t.Nudge, defaultTexts.Nudge),
		Analyzing:      pick(t.Analyzing, defaultTexts.Analyzing),
		Confirmation:   pick(t.Confirmation, defaultTexts.Confirmation),
		FileUploaded:   pick(t.FileUploaded, defaultTexts.FileUploaded),
		Failure:        pick(t.Failure, defaultTexts.Failure),
		GenericFailure: pick(t.GenericFailure, defaultTexts.GenericFailure),
		ToastTitle:     pick(t.ToastTitle, defaultTexts.ToastTitle),
	}
}

func (s *Service) Key() ThreadKey { return s.composer.Key() }

func (s *Service) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Service) ScanID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanID
}

// View seeds the thread if needed and returns the messages to render.
func (s *Service) View(ctx context.Context) ([]Message, error) {
	if err := s.composer.Seed(ctx, s.seed); err != nil {
		return nil, err
	}
	return s.composer.View(ctx)
}

// SetTask adopts the thread of another task. Thread-scoped state (seeding and nudge guards,
// local buffer, conversation and scan ids) is reset; responses still in flight for the
// previous thread are dropped.
func (s *Service) SetTask(mode, taskID string) {
	key := ResolveThreadKey(mode, taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.composer.Key() {
		return
	}
	s.nudged = false
	s.conversationID = ""
	s.scanID = ""
	s.composer.Reset(key)
	s.opts.Logger.Debug("switched thread", map[string]interface{}{"thread": key.String()})
}

// currentGeneration identifies the thread the service is on. SetTask changes it under s.mu.
func (s *Service) currentGeneration() uint64 {
	return s.composer.Epoch()
}

// stale reports whether the thread changed since gen was taken.
func (s *Service) stale(gen uint64) bool {
	return s.currentGeneration() != gen
}

func (s *Service) adopt(gen uint64, conversationID, scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.composer.Epoch() {
		return
	}
	if conversationID != "" && conversationID != s.conversationID {
		s.conversationID = conversationID
	}
	if scanID != "" {
		s.scanID = scanID
	}
}

func (s *Service) newMessage(from Role, kind Kind, content string) Message {
	return Message{
		ID:        s.opts.NewID(),
		From:      from,
		Kind:      kind,
		Content:   content,
		Timestamp: s.opts.Now(),
	}
}

// failureText renders a backend failure for the thread.
func (s *Service) failureText(err error) string {
	msg := ServerMessage(err)
	if msg == "" {
		msg = s.texts.GenericFailure
	}
	if status := StatusOf(err); status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", s.texts.Failure, status, msg)
	}
	return fmt.Sprintf("%s: %s", s.texts.Failure, msg)
}

func (s *Service) toast(text string) {
	s.opts.Notifier.Notify(Toast{Level: LevelError, Title: s.texts.ToastTitle, Text: text})
}

// append writes msgs to the thread of gen. It reports false when the thread changed meanwhile.
func (s *Service) append(ctx context.Context, gen uint64, what string, msgs ...Message) bool {
	_, err := s.composer.AppendAt(ctx, gen, msgs...)
	return s.logWrite(what, err)
}

func (s *Service) update(ctx context.Context, gen uint64, what string, fn func([]Message) []Message) bool {
	_, err := s.composer.UpdateAt(ctx, gen, fn)
	return s.logWrite(what, err)
}

// logWrite logs store failures of the write path: the local view stays usable.
// It returns false when the write was refused because the thread changed.
func (s *Service) logWrite(what string, err error) bool {
	switch {
	case err == ErrThreadChanged:
		s.opts.Logger.Debug(what+": thread changed", map[string]interface{}{"thread": s.composer.Key().String()})
		return false
	case err != nil:
		s.opts.Logger.Error(what, err, map[string]interface{}{"thread": s.composer.Key().String()})
	}
	return true
}
