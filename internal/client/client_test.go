package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gennadis/chatengine/internal/media"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, staticToken("secret"))
}

func TestSend(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, JSONContentType, r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Tell me about Eyeconic AR glasses features", req.Prompt)

		w.Write([]byte(`{"response": "### Features\n\n1. Display"}`))
	})

	reply, err := c.Send(context.Background(), "Tell me about Eyeconic AR glasses features")
	require.NoError(t, err)
	assert.Equal(t, "### Features\n\n1. Display", reply)
}

func TestSendReplyFieldFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		wantErr  bool
	}{
		{name: "message field", body: `{"message": "from message"}`, expected: "from message"},
		{name: "content field", body: `{"content": "from content"}`, expected: "from content"},
		{name: "response wins", body: `{"response": "r", "message": "m"}`, expected: "r"},
		{name: "no reply field", body: `{"status": "ok"}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			reply, err := c.Send(context.Background(), "hi")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, reply)
		})
	}
}

func TestSendAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": "model overloaded"}`))
	})

	_, err := c.Send(context.Background(), "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "model overloaded", apiErr.Message)
}

func TestSendWithImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "what is this?", r.FormValue("prompt"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "lens.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("png-bytes"), data)

		w.Write([]byte(`{"response": "That is a lens."}`))
	})

	reply, err := c.SendWithImage(context.Background(), "what is this?", media.Upload{
		Name: "lens.png",
		MIME: "image/png",
		Data: []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "That is a lens.", reply)
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe-audio/", r.URL.Path)
		_, header, err := r.FormFile("audio")
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "recording.wav", header.Filename)
		w.Write([]byte(`{"text": "hello glasses"}`))
	})

	text, err := c.Transcribe(context.Background(), media.Upload{Name: "recording.wav", MIME: "audio/wav", Data: []byte("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "hello glasses", text)
}

func TestListSessions(t *testing.T) {
	payload := `{"results": [
		{"id": 42, "title": "", "created_at": "2025-03-01T10:00:00.123456Z", "messages": [
			{"id": 1, "content": "hi", "role": "user", "timestamp": "2025-03-01T10:00:01Z"},
			{"id": "2", "text": "hello", "role": "assistant", "timestamp": "2025-03-01T10:00:02Z", "image": "https://cdn/x.png"}
		]},
		{"id": "abc", "title": "Battery", "created_at": "garbage"}
	]}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-history/", r.URL.Path)
		w.Write([]byte(payload))
	})

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	first := sessions[0]
	assert.Equal(t, "42", first.ID)
	assert.Equal(t, "Chat Session", first.Title)
	assert.Equal(t, 2025, first.CreatedAt.Year())
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "1", first.Messages[0].ID)
	assert.Equal(t, "hi", first.Messages[0].Text)
	assert.True(t, first.Messages[0].IsUser)
	assert.Equal(t, "hello", first.Messages[1].Text)
	assert.False(t, first.Messages[1].IsUser)
	assert.Equal(t, "https://cdn/x.png", first.Messages[1].Image)

	assert.Equal(t, "abc", sessions[1].ID)
	assert.Equal(t, "Battery", sessions[1].Title)
	assert.True(t, sessions[1].CreatedAt.IsZero())
	assert.Empty(t, sessions[1].Messages)
}

func TestListSessionsBareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 7, "title": "Bare"}]`))
	})

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "7", sessions[0].ID)
}

func TestDeleteSession(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/chat/gone/delete/":
			w.WriteHeader(http.StatusNotFound)
		case "/chat/broken/delete/":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	assert.NoError(t, c.DeleteSession(ctx, "abc"))
	assert.NoError(t, c.DeleteSession(ctx, "gone"))
	err := c.DeleteSession(ctx, "broken")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, []string{"/chat/abc/delete/", "/chat/gone/delete/", "/chat/broken/delete/"}, paths)
}

func TestSendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
