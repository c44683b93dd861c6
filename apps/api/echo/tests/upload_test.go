package tests

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeworkchat/core/conversation"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type analysisResp struct {
	ConversationID string            `json:"conversationId"`
	ScanID         string            `json:"scanId"`
	ImageURL       string            `json:"imageUrl"`
	ExtractedText  string            `json:"extractedText"`
	QA             []conversation.QA `json:"qa"`
}

func TestUploadAPI_TextFile(t *testing.T) {
	token := getToken(t, "student-4")
	req, rec := newUploadRequest(t, token, "", "homework.txt", "text/plain", []byte("2+2 = 4\nCapital of France = Paris\n"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var analysis analysisResp
	unmarshallObj(t, rec.Body.Bytes(), &analysis)
	assert.NotEmpty(t, analysis.ConversationID)
	assert.NotEmpty(t, analysis.ScanID)
	assert.Empty(t, analysis.ImageURL)
	assert.Equal(t, "2+2 = 4\nCapital of France = Paris", analysis.ExtractedText)
	assert.Equal(t, []conversation.QA{{Text: "2+2", Answer: "4"}, {Text: "Capital of France", Answer: "Paris"}}, analysis.QA)

	// a message about the scan lands in the scan's conversation
	reply := createMessage(t, token, map[string]string{"text": "what is 2+2?", "scanId": analysis.ScanID})
	assert.Equal(t, analysis.ConversationID, reply.ConversationID)
	assert.Equal(t, `The answer to "2+2" is 4.`, reply.Answer)

	req, rec = newAuthRequest(http.MethodGet, "/v1/conversations/"+analysis.ConversationID+"/messages", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var history historyResp
	unmarshallObj(t, rec.Body.Bytes(), &history)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, "File uploaded: homework.txt", history.Messages[0].Content)
	assert.Equal(t, conversation.KindTable, history.Messages[1].Kind)
	require.NotNil(t, history.Messages[1].Table)
	assert.Len(t, history.Messages[1].Table.QA, 2)
}

func TestUploadAPI_Image(t *testing.T) {
	token := getToken(t, "student-5")
	req, rec := newUploadRequest(t, token, "student-5", "page.png", "image/png", pngData)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var analysis analysisResp
	unmarshallObj(t, rec.Body.Bytes(), &analysis)
	assert.Equal(t, publicURL+"/v1/uploads/"+analysis.ScanID, analysis.ImageURL)
	assert.Empty(t, analysis.QA)

	// served without authentication
	req, rec = newRequest(http.MethodGet, "/v1/uploads/"+analysis.ScanID)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.Equal(pngData, rec.Body.Bytes()))
}

func TestUploadAPI_Errors(t *testing.T) {
	token := getToken(t, "student-6")

	t.Run("without token", func(t *testing.T) {
		req, rec := newUploadRequest(t, "", "student-6", "a.txt", "text/plain", []byte("x"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("missing file", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "", "", "", nil)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "file is required"})}, rec)
	})

	t.Run("someone else's upload", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "student-7", "a.txt", "text/plain", []byte("x"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("too large", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "", "a.txt", "text/plain", []byte("x"))
		req.ContentLength = 11 << 20
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("unknown upload", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/uploads/nope")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "upload not found"})}, rec)
	})
}
