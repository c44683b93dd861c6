package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/homeworkchat/core/conversation"
)

// maxErrorLen bounds the raw body quoted in errors when the backend sent no usable message.
const maxErrorLen = 200

// Client is the messaging backend REST client.
type Client struct {
	baseURL string
	token   string
	rest    *rest.Client
}

var _ conversation.Backend = (*Client)(nil)

// NewClient returns a client for the API rooted at baseURL (eg. http://localhost:8000/v1).
// token is sent as a bearer token when not empty; a zero timeout means no timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}

func (c *Client) CreateConversationMessage(ctx context.Context, req conversation.SendRequest) (conversation.Reply, error) {
	return c.sendMessage(ctx, "/conversations/messages", req)
}

func (c *Client) PostToConversation(ctx context.Context, conversationID string, req conversation.SendRequest) (conversation.Reply, error) {
	return c.sendMessage(ctx, "/conversations/"+url.PathEscape(conversationID)+"/messages", req)
}

func (c *Client) sendMessage(ctx context.Context, path string, req conversation.SendRequest) (conversation.Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return conversation.Reply{}, errors.Wrap(err, "encoding message")
	}
	resp, err := c.do(ctx, rest.Post, path, body, "application/json")
	if err != nil {
		return conversation.Reply{}, err
	}

	var rb replyBody
	if err = json.Unmarshal([]byte(resp.Body), &rb); err != nil {
		return conversation.Reply{}, errors.Wrap(err, "decoding reply")
	}
	return rb.reply(), nil
}

func (c *Client) FetchConversationHistory(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	resp, err := c.do(ctx, rest.Get, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, "")
	if err != nil {
		return nil, err
	}
	msgs, err := decodeHistory([]byte(resp.Body))
	return msgs, errors.Wrap(err, "decoding history")
}

func (c *Client) UploadAndAnalyze(ctx context.Context, file conversation.File, userID string) (conversation.Analysis, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("userId", userID); err != nil {
		return conversation.Analysis{}, errors.Wrap(err, "writing form")
	}

	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(file.Name)+`"`)
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return conversation.Analysis{}, errors.Wrap(err, "writing form")
	}
	if _, err = part.Write(file.Data); err != nil {
		return conversation.Analysis{}, errors.Wrap(err, "writing form")
	}
	if err = w.Close(); err != nil {
		return conversation.Analysis{}, errors.Wrap(err, "writing form")
	}

	resp, err := c.do(ctx, rest.Post, "/uploads", buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return conversation.Analysis{}, err
	}

	var ab analysisBody
	if err = json.Unmarshal([]byte(resp.Body), &ab); err != nil {
		return conversation.Analysis{}, errors.Wrap(err, "decoding analysis")
	}
	return ab.analysis(), nil
}

// do sends the request; non-2xx responses become a *conversation.APIError.
func (c *Client) do(ctx context.Context, method rest.Method, path string, body []byte, contentType string) (*rest.Response, error) {
	headers := map[string]string{"Accept": "application/json"}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	req, err := rest.BuildRequestObject(rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "building %s %s", method, path)
	}
	res, err := c.rest.MakeRequest(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	resp, err := rest.BuildResponse(res)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &conversation.APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return resp, nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
