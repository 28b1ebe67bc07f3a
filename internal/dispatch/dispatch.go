// Package dispatch runs a send from optimistic append to final reply.
//
// A dispatch moves idle → sending → settled | errored. Sending starts by
// appending the user message to the current session. The remote call then
// runs in its own goroutine under a timeout; its reply is sanitized and
// appended, or a fixed apology is appended when the call fails. Either way the
// session leaves the pending state and the upload is released.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/compose"
	"github.com/gennadis/chatengine/internal/media"
	"github.com/gennadis/chatengine/internal/sanitize"
	"github.com/gennadis/chatengine/internal/session"
)

var (
	ErrPending   = session.ErrPending
	ErrNoSession = session.ErrNoSession
)

const (
	FallbackText      = "I apologize, but I encountered an error while processing your message. Please try again with a different question."
	FallbackImageText = "Sorry, I encountered an error while processing your image. Please try again."

	defaultTimeout = 60 * time.Second
	saveTimeout    = 10 * time.Second
)

// Inference is the remote model.
type Inference interface {
	Send(ctx context.Context, prompt string) (string, error)
	SendWithImage(ctx context.Context, prompt string, image media.Upload) (string, error)
}

// Saver persists a session after each finished dispatch.
type Saver interface {
	SaveSession(ctx context.Context, s *chat.Session) error
}

// Store is the part of the session store a dispatch mutates.
type Store interface {
	Begin(msg chat.Message) (string, error)
	Settle(sessionID string, reply chat.Message) (*chat.Session, bool)
	Persist(sessionID string, save func() error) (bool, error)
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTimeout bounds every remote call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSaver persists sessions after each dispatch.
func WithSaver(s Saver) Option {
	return func(p *Pipeline) { p.saver = s }
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	store     Store
	inference Inference
	media     *media.Registry
	saver     Saver
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	flights map[string]*Flight
}

// New creates a Pipeline. Close it to cancel and wait for outstanding calls.
func New(store Store, inference Inference, registry *media.Registry, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		store:     store,
		inference: inference,
		media:     registry,
		timeout:   defaultTimeout,
		ctx:       ctx,
		cancel:    cancel,
		flights:   make(map[string]*Flight),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch appends the draft as a user message and starts the remote call.
// It returns without waiting for the reply. On error nothing was appended
// and the draft still belongs to the caller.
func (p *Pipeline) Dispatch(draft compose.Draft) (*Flight, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}

	var image string
	if draft.Image != nil {
		image = draft.Image.Preview.URL()
	}
	msg := chat.NewUserMessage(draft.Text, image)

	sessionID, err := p.store.Begin(msg)
	if err != nil {
		return nil, err
	}
	if draft.Image != nil {
		p.media.AttachToMessage(draft.Image.Preview, msg.ID)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	f := &Flight{
		SessionID: sessionID,
		MessageID: msg.ID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	p.mu.Lock()
	p.flights[sessionID] = f
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, f, draft)
	return f, nil
}

func (p *Pipeline) run(ctx context.Context, f *Flight, draft compose.Draft) {
	defer p.wg.Done()
	defer close(f.done)
	defer f.cancel()

	reply, err := p.call(ctx, draft)
	p.forget(f)

	var text string
	outcome := Settled
	if err != nil {
		slog.Error("Failed to get reply", "error", err, slog.String("session_id", f.SessionID))
		outcome = Errored
		text = FallbackText
		if draft.Image != nil {
			text = FallbackImageText
		}
	} else {
		var rejected bool
		text, rejected = sanitize.Clean(reply)
		if rejected {
			slog.Warn("Discarded corrupted reply", slog.String("session_id", f.SessionID), slog.Int("length", len(reply)))
		}
	}

	bot := chat.NewBotMessage(text)
	settled, ok := p.store.Settle(f.SessionID, bot)
	if draft.Image != nil {
		p.media.Release(draft.Image.File)
	}
	if !ok {
		outcome = Dropped
	}
	f.finish(outcome, bot)

	if ok && p.saver != nil {
		p.save(settled)
	}
}

func (p *Pipeline) call(ctx context.Context, draft compose.Draft) (string, error) {
	if draft.Image == nil {
		return p.inference.Send(ctx, draft.Text)
	}
	upload, ok := p.media.Upload(draft.Image.File)
	if !ok {
		return "", errReleasedUpload
	}
	return p.inference.SendWithImage(ctx, draft.Text, upload)
}

// save skips sessions deleted since they settled.
func (p *Pipeline) save(s *chat.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), saveTimeout)
	defer cancel()
	_, err := p.store.Persist(s.ID, func() error {
		return p.saver.SaveSession(ctx, s)
	})
	if err != nil {
		slog.Error("Failed to save session", "error", err, slog.String("session_id", s.ID))
	}
}

func (p *Pipeline) forget(f *Flight) {
	p.mu.Lock()
	if p.flights[f.SessionID] == f {
		delete(p.flights, f.SessionID)
	}
	p.mu.Unlock()
}

// Cancel aborts the outstanding call for a session, if any.
func (p *Pipeline) Cancel(sessionID string) bool {
	p.mu.Lock()
	f, ok := p.flights[sessionID]
	p.mu.Unlock()
	if ok {
		f.cancel()
	}
	return ok
}

// Close cancels outstanding calls and waits for their dispatches to finish.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}
