package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gennadis/chatengine/internal/auth"
	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/compose"
	"github.com/gennadis/chatengine/internal/dispatch"
	"github.com/gennadis/chatengine/internal/media"
	"github.com/gennadis/chatengine/internal/render"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeInference struct {
	mu      sync.Mutex
	reply   string
	release chan struct{}
	prompts []string
}

func (f *fakeInference) Send(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, nil
}

func (f *fakeInference) SendWithImage(ctx context.Context, prompt string, image media.Upload) (string, error) {
	return f.Send(ctx, prompt)
}

type savingHistory struct {
	mu    sync.Mutex
	saved []string
}

func (h *savingHistory) ListSessions(ctx context.Context) ([]*chat.Session, error) {
	return nil, nil
}

func (h *savingHistory) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func (h *savingHistory) SaveSession(ctx context.Context, s *chat.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, s.ID)
	return nil
}

func newTestEngine(t *testing.T, inference *fakeInference, history *savingHistory) *Engine {
	t.Helper()
	deps := Deps{Inference: inference}
	if history != nil {
		deps.History = history
	}
	e, err := New(auth.Static("token"), deps, Options{RequestTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func waitFlight(t *testing.T, f *dispatch.Flight) dispatch.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := f.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func TestNewRequiresAuthentication(t *testing.T) {
	_, err := New(auth.Static(""), Deps{Inference: &fakeInference{}}, Options{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = New(nil, Deps{Inference: &fakeInference{}}, Options{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSurfacesShareOneSession(t *testing.T) {
	inference := &fakeInference{reply: "Eyeconic glasses pair over Bluetooth."}
	e := newTestEngine(t, inference, nil)

	e.Widget.Open()
	assert.True(t, e.Widget.Visible())
	require.NoError(t, e.Widget.UseQuickPrompt(1))
	assert.Equal(t, "How do I get started with Eyeconic?", e.Widget.Composer().Text())

	f, err := e.Widget.Send()
	require.NoError(t, err)
	assert.Empty(t, e.Widget.Composer().Text())
	assert.Equal(t, dispatch.Settled, waitFlight(t, f))
	assert.Equal(t, []string{"How do I get started with Eyeconic?"}, inference.prompts)

	e.FullPage.Open()
	assert.False(t, e.Widget.Visible())
	assert.True(t, e.FullPage.Visible())
	current := e.Store.Current()
	require.Len(t, current.Messages, 2)
	assert.Equal(t, f.SessionID, current.ID)

	view := e.FullPage.View(render.NewRenderer(), 140)
	assert.Contains(t, view, "Bluetooth")
}

func TestSendKeepsInputOnFailure(t *testing.T) {
	inference := &fakeInference{reply: "a reply long enough", release: make(chan struct{})}
	e := newTestEngine(t, inference, nil)
	e.Widget.Open()

	_, err := e.Widget.Send()
	assert.ErrorIs(t, err, compose.ErrEmptyMessage)

	e.Widget.Composer().SetText("first")
	f, err := e.Widget.Send()
	require.NoError(t, err)

	e.Widget.Composer().SetText("second")
	_, err = e.Widget.Send()
	assert.ErrorIs(t, err, dispatch.ErrPending)
	assert.Equal(t, "second", e.Widget.Composer().Text())

	close(inference.release)
	assert.Equal(t, dispatch.Settled, waitFlight(t, f))
}

func TestUnknownQuickPrompt(t *testing.T) {
	e := newTestEngine(t, &fakeInference{}, nil)
	assert.ErrorIs(t, e.Widget.UseQuickPrompt(len(QuickPrompts)), ErrUnknownPrompt)
	assert.ErrorIs(t, e.Widget.UseQuickPrompt(-1), ErrUnknownPrompt)
}

func TestImageSendTransfersPreview(t *testing.T) {
	e := newTestEngine(t, &fakeInference{reply: "That is the charging case."}, nil)
	e.FullPage.Open()

	require.NoError(t, e.FullPage.AttachImage(context.Background(), "case.png", "image/png", []byte("not really a png")))
	assert.Equal(t, "case.png", e.FullPage.Input().ImageName)
	assert.Equal(t, 2, e.Media.Live())

	f, err := e.FullPage.Send()
	require.NoError(t, err)
	assert.Empty(t, e.FullPage.Input().ImageName)
	assert.Equal(t, dispatch.Settled, waitFlight(t, f))
	assert.Equal(t, 1, e.Media.Live())

	e.DeleteSession(context.Background(), f.SessionID)
	assert.Equal(t, 0, e.Media.Live())
}

func TestDeleteSessionCancelsReply(t *testing.T) {
	inference := &fakeInference{release: make(chan struct{})}
	e := newTestEngine(t, inference, nil)
	e.Widget.Open()
	e.Widget.Composer().SetText("hello")

	f, err := e.Widget.Send()
	require.NoError(t, err)
	e.DeleteSession(context.Background(), f.SessionID)

	assert.Equal(t, dispatch.Dropped, waitFlight(t, f))
	assert.Nil(t, e.Store.Current())
	assert.Empty(t, e.Store.History())
	assert.False(t, e.Store.Pending())
}

func TestSavingHistoryIsWired(t *testing.T) {
	history := &savingHistory{}
	e := newTestEngine(t, &fakeInference{reply: "Saved for later reading."}, history)
	e.Widget.Open()
	e.Widget.Composer().SetText("remember this")

	f, err := e.Widget.Send()
	require.NoError(t, err)
	waitFlight(t, f)
	e.Pipeline.Close()

	history.mu.Lock()
	defer history.mu.Unlock()
	assert.Equal(t, []string{f.SessionID}, history.saved)
}

func TestCloseReleasesMedia(t *testing.T) {
	inference := &fakeInference{}
	e, err := New(auth.Static("token"), Deps{Inference: inference}, Options{})
	require.NoError(t, err)
	e.Widget.Open()
	require.NoError(t, e.Widget.AttachImage(context.Background(), "a.png", "image/png", []byte("x")))

	e.Close()
	assert.Equal(t, 0, e.Media.Live())
	assert.False(t, e.Widget.Visible())
}

func TestSendAfterDeletingCurrentSession(t *testing.T) {
	e := newTestEngine(t, &fakeInference{reply: "Happy to help again."}, nil)
	e.FullPage.Open()
	e.FullPage.Composer().SetText("first")
	f, err := e.FullPage.Send()
	require.NoError(t, err)
	waitFlight(t, f)

	e.DeleteSession(context.Background(), f.SessionID)
	require.True(t, e.FullPage.Visible())
	require.Nil(t, e.Store.Current())

	e.FullPage.Composer().SetText("second")
	next, err := e.FullPage.Send()
	require.NoError(t, err)
	assert.NotEqual(t, f.SessionID, next.SessionID)
	assert.Equal(t, dispatch.Settled, waitFlight(t, next))
	assert.Len(t, e.Store.Current().Messages, 2)
}

func TestChangesSignalBackgroundReply(t *testing.T) {
	inference := &fakeInference{reply: "Settled while you were away.", release: make(chan struct{})}
	e := newTestEngine(t, inference, nil)
	e.Widget.Open()

	changes, stop := e.FullPage.Changes()
	defer stop()

	e.Widget.Composer().SetText("hello")
	f, err := e.Widget.Send()
	require.NoError(t, err)
	<-changes

	close(inference.release)
	waitFlight(t, f)
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change signal after the reply settled")
	}
	assert.Contains(t, e.FullPage.View(render.NewRenderer(), 140), "Settled while you were away.")
}
