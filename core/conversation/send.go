package conversation

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const (
	// OutcomeRejected: busy, blank or duplicate input. Nothing was appended.
	OutcomeRejected Outcome = iota
	// OutcomeNudged: no photo/scan context yet, the one-shot nudge was shown instead of calling the backend.
	OutcomeNudged
	// OutcomeAnswered: the backend answered, its answer (if any) was appended.
	OutcomeAnswered
	// OutcomeReplaced: the thread was replaced by the conversation history.
	OutcomeReplaced
	// OutcomeFailed: the failure was appended to the thread and notified.
	OutcomeFailed
	// OutcomeDropped: the thread changed while the backend was busy, the response was ignored.
	OutcomeDropped
)

type Outcome int

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeNudged:
		return "nudged"
	case OutcomeAnswered:
		return "answered"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	}
	return "unknown"
}

// Send submits a student text message.
// Only one send runs at a time: a submission arriving while another is in flight is rejected.
func (s *Service) Send(ctx context.Context, text string) (Outcome, error) {
	if !s.sending.CompareAndSwap(false, true) {
		s.opts.Logger.Debug("send rejected: another send is in flight")
		return OutcomeRejected, nil
	}
	defer s.sending.Store(false)

	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeRejected, nil
	}

	gen := s.currentGeneration()
	view, err := s.View(ctx)
	if err != nil {
		return OutcomeRejected, errors.Wrap(err, "composing view")
	}
	if isDuplicate(view, RoleStudent, text) {
		s.opts.Logger.Debug("send rejected: duplicate submission", map[string]interface{}{"thread": s.Key().String()})
		return OutcomeRejected, nil
	}

	if !s.append(ctx, gen, "appending student message", s.newMessage(RoleStudent, KindText, text)) {
		return OutcomeDropped, nil
	}
	mark := s.composer.Mark()

	if s.shouldNudge(view) {
		s.append(ctx, gen, "appending nudge", s.newMessage(RoleAgent, KindText, s.texts.Nudge))
		return OutcomeNudged, nil
	}

	reply, err := s.post(ctx, SendRequest{UserID: s.opts.UserID, Text: text, ScanID: s.ScanID()})
	if s.stale(gen) {
		s.opts.Logger.Debug("send response dropped: thread changed")
		return OutcomeDropped, nil
	}
	if err != nil {
		s.opts.Logger.Error("sending message", err, map[string]interface{}{"thread": s.Key().String()})
		failure := s.failureText(err)
		if !s.append(ctx, gen, "appending failure", s.newMessage(RoleAgent, KindText, failure)) {
			return OutcomeDropped, nil
		}
		s.toast(failure)
		return OutcomeFailed, err
	}

	s.adopt(gen, reply.ConversationID, "")
	if convID := s.ConversationID(); convID != "" {
		history, err := s.opts.Backend.FetchConversationHistory(ctx, convID)
		switch {
		case s.stale(gen):
			return OutcomeDropped, nil
		case err != nil:
			s.opts.Logger.Warn("fetching conversation history", err, map[string]interface{}{"conversation": convID})
		case len(history) == 0:
			s.opts.Logger.Warn("empty conversation history", map[string]interface{}{"conversation": convID})
		default:
			_, err = s.composer.ReplaceWithHistoryAt(ctx, gen, history, mark)
			if !s.logWrite("replacing thread with history", err) {
				return OutcomeDropped, nil
			}
			return OutcomeReplaced, nil
		}
	}

	if reply.Answer != "" {
		if !s.append(ctx, gen, "appending answer", s.newMessage(RoleAgent, KindText, reply.Answer)) {
			return OutcomeDropped, nil
		}
	}
	return OutcomeAnswered, nil
}

// post calls the nested endpoint when a conversation id is known, the flat one otherwise.
// A stale conversation id is dropped and the message retried once against the flat endpoint.
func (s *Service) post(ctx context.Context, req SendRequest) (Reply, error) {
	convID := s.ConversationID()
	if convID == "" {
		reply, err := s.opts.Backend.CreateConversationMessage(ctx, req)
		return reply, errors.Wrap(err, "creating conversation message")
	}

	reply, err := s.opts.Backend.PostToConversation(ctx, convID, req)
	if err == nil {
		return reply, nil
	}
	if !IsStaleReference(err) {
		return Reply{}, errors.Wrap(err, "posting to conversation")
	}

	s.opts.Logger.Warn("conversation id rejected, retrying without it", err, map[string]interface{}{"conversation": convID})
	s.forgetConversation(convID)
	reply, err = s.opts.Backend.CreateConversationMessage(ctx, req)
	return reply, errors.Wrap(err, "creating conversation message")
}

func (s *Service) forgetConversation(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == convID {
		s.conversationID = ""
	}
}

func (s *Service) shouldNudge(view []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nudged || s.scanID != "" || hasScanContext(view) {
		return false
	}
	s.nudged = true
	return true
}

func hasScanContext(view []Message) bool {
	for _, m := range view {
		if m.Kind == KindImage || m.Kind == KindTable {
			return true
		}
	}
	return false
}

// isDuplicate reports whether text equals the most recent message from the sender.
func isDuplicate(view []Message, from Role, text string) bool {
	for i := len(view) - 1; i >= 0; i-- {
		if view[i].From == from {
			return view[i].Kind == KindText && strings.TrimSpace(view[i].Content) == text
		}
	}
	return false
}
