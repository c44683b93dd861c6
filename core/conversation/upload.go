package conversation

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Upload sends the files one after the other to the backend for analysis.
// Each file shows a transient bubble and an "analyzing" status until its call settles,
// the status is then replaced in place by the outcome. Failures do not stop the remaining files;
// the first one is returned after every file was handled.
func (s *Service) Upload(ctx context.Context, files ...File) error {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	var firstErr error
	for _, file := range files {
		if err := s.upload(ctx, file); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "uploading %s", file.Name)
		}
	}
	return firstErr
}

func (s *Service) upload(ctx context.Context, file File) error {
	gen := s.currentGeneration()

	bubble := s.newMessage(RoleStudent, KindText, fmt.Sprintf(s.texts.FileUploaded, file.Name))
	if preview, err := s.preview(file); err != nil {
		s.opts.Logger.Debug("no preview for upload", err, map[string]interface{}{"file": file.Name})
	} else if preview != "" {
		bubble.Kind = KindImage
		bubble.Content = preview
	}
	bubble.Transient = true

	status := s.newMessage(RoleAgent, KindStatus, s.texts.Analyzing)
	status.Transient = true
	if !s.append(ctx, gen, "appending upload bubbles", bubble, status) {
		return nil
	}

	analysis, err := s.opts.Backend.UploadAndAnalyze(ctx, file, s.opts.UserID)
	if s.stale(gen) {
		s.opts.Logger.Debug("upload response dropped: thread changed", map[string]interface{}{"file": file.Name})
		return err
	}
	if err != nil {
		s.opts.Logger.Error("uploading file", err, map[string]interface{}{"file": file.Name})
		failure := s.failureText(err)
		if s.replaceStatus(ctx, gen, status.ID, s.newMessage(RoleAgent, KindText, failure)) {
			s.toast(failure)
		}
		return err
	}

	s.adopt(gen, analysis.ConversationID, analysis.ScanID)

	results := []Message{s.newMessage(RoleAgent, KindText, s.texts.Confirmation)}
	if analysis.HasTable() {
		tbl := s.newMessage(RoleAgent, KindTable, "")
		tbl.Table = &Table{ExtractedText: analysis.ExtractedText, QA: append([]QA(nil), analysis.QA...)}
		results = append(results, tbl)
	}
	s.update(ctx, gen, "resolving upload status", func(view []Message) []Message {
		if analysis.ImageURL != "" {
			if i := indexByID(view, bubble.ID); i >= 0 {
				view[i].Kind = KindImage
				view[i].Content = analysis.ImageURL
				view[i].Transient = false
			}
		}
		return replaceByID(view, status.ID, results...)
	})
	return nil
}

func (s *Service) replaceStatus(ctx context.Context, gen uint64, statusID string, msgs ...Message) bool {
	return s.update(ctx, gen, "resolving upload status", func(view []Message) []Message {
		return replaceByID(view, statusID, msgs...)
	})
}

// replaceByID puts msgs in place of the message with the given id, or at the end
// when it is gone (eg. the thread was replaced by the server history meanwhile).
func replaceByID(view []Message, id string, msgs ...Message) []Message {
	i := indexByID(view, id)
	if i < 0 {
		return append(view, msgs...)
	}
	next := make([]Message, 0, len(view)+len(msgs)-1)
	next = append(next, view[:i]...)
	next = append(next, msgs...)
	return append(next, view[i+1:]...)
}

// preview renders images as a data URI. Other files have no preview.
func (s *Service) preview(file File) (string, error) {
	ct := imageContentType(file)
	if ct == "" {
		return "", nil
	}
	if len(file.Data) == 0 {
		return "", errors.New("empty image")
	}
	if len(file.Data) > s.opts.MaxPreviewBytes {
		return "", errors.Errorf("image too large for a preview (%d bytes)", len(file.Data))
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(file.Data), nil
}

// imageContentType returns the image content type of the file, or "" when it is not an image.
func imageContentType(file File) string {
	candidates := []string{file.ContentType, mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name)))}
	if len(file.Data) > 0 {
		candidates = append(candidates, http.DetectContentType(file.Data))
	}
	for _, ct := range candidates {
		ct = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		if strings.HasPrefix(ct, "image/") {
			return ct
		}
	}
	return ""
}
