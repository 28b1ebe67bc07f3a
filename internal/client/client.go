package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/media"
)

const (
	JSONContentType = "application/json"

	chatPath       = "/chat/"
	historyPath    = "/chat-history/"
	deletePath     = "/chat/%s/delete/"
	transcribePath = "/transcribe-audio/"

	defaultTimeout = 60 * time.Second
)

// ErrMalformedResponse is returned for success responses without a usable payload.
var ErrMalformedResponse = errors.New("malformed response")

// APIError is a non-success HTTP status from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Api request failed: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("Api request failed: status code %d, message %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// TokenSource supplies the identity token attached to outbound requests.
type TokenSource interface {
	Token() string
}

// Client talks to the chat backend: inference, transcription and history.
type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       TokenSource
}

// NewClient creates a Client for baseURL. A non-positive timeout uses the default.
func NewClient(baseURL string, timeout time.Duration, auth TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
	}
}

// Send asks for a reply to a text prompt.
func (c *Client) Send(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(ChatRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, chatPath, JSONContentType, bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to send chat message", "error", err)
		return "", err
	}
	return decodeReply(body)
}

// SendWithImage asks for a reply to a prompt about an image, as a multipart form.
func (c *Client) SendWithImage(ctx context.Context, prompt string, image media.Upload) (string, error) {
	form, contentType, err := multipartForm(map[string]string{"prompt": prompt}, "image", image)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, chatPath, contentType, form)
	if err != nil {
		slog.Error("Failed to send chat message with image", "error", err)
		return "", err
	}
	return decodeReply(body)
}

// Transcribe converts recorded audio into text.
func (c *Client) Transcribe(ctx context.Context, audio media.Upload) (string, error) {
	form, contentType, err := multipartForm(nil, "audio", audio)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, transcribePath, contentType, form)
	if err != nil {
		slog.Error("Failed to transcribe audio", "error", err)
		return "", err
	}

	var resp TranscriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.Result(), nil
}

// ListSessions returns the sessions persisted by the backend.
func (c *Client) ListSessions(ctx context.Context) ([]*chat.Session, error) {
	body, err := c.do(ctx, http.MethodGet, historyPath, "", nil)
	if err != nil {
		slog.Error("Failed to fetch chat history", "error", err)
		return nil, err
	}

	var resp HistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	sessions := resp.Sessions()
	slog.Debug("read remote sessions", slog.Int("count", len(sessions)))
	return sessions, nil
}

// DeleteSession deletes a persisted session. A session the backend does not
// know is already deleted, so 404 is not an error.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf(deletePath, url.PathEscape(id)), "", nil)
	if IsNotFound(err) {
		slog.Debug("remote session already gone", slog.String("id", id))
		return nil
	}
	if err != nil {
		slog.Error("Failed to delete chat session", "error", err)
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", JSONContentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.auth != nil {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s %s request: %w", method, path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if err := handleApiError(res, body); err != nil {
		return nil, err
	}
	return body, nil
}

func handleApiError(res *http.Response, body []byte) error {
	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	apiErr := &APIError{StatusCode: res.StatusCode}
	errResp := ApiErrorResponse{}
	if err := json.Unmarshal(body, &errResp); err == nil {
		for _, s := range []string{errResp.Error, errResp.Detail, errResp.Message} {
			if s != "" {
				apiErr.Message = s
				break
			}
		}
	}
	return apiErr
}

func decodeReply(body []byte) (string, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no reply text", ErrMalformedResponse)
	}
	return text, nil
}

func multipartForm(fields map[string]string, fileField string, file media.Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, file.Name))
	if file.MIME != "" {
		header.Set("Content-Type", file.MIME)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file %s: %w", fileField, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file %s: %w", fileField, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
