// Package engine wires the session store, the dispatch pipeline and the two
// chat surfaces into one unit with a single lifecycle.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gennadis/chatengine/internal/auth"
	"github.com/gennadis/chatengine/internal/compose"
	"github.com/gennadis/chatengine/internal/dispatch"
	"github.com/gennadis/chatengine/internal/media"
	"github.com/gennadis/chatengine/internal/session"
)

var (
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrUnknownPrompt   = errors.New("unknown quick prompt")
)

// QuickPrompts are the starter prompts offered on an empty conversation.
var QuickPrompts = []string{
	"Tell me about Eyeconic AR glasses features",
	"How do I get started with Eyeconic?",
}

// Deps are the collaborators the engine talks to. History and Microphone
// may be nil.
type Deps struct {
	Inference   dispatch.Inference
	Transcriber compose.Transcriber
	History     session.HistoryStore
	Microphone  compose.Microphone
}

type Options struct {
	RequestTimeout    time.Duration
	TranscribeTimeout time.Duration
}

type Engine struct {
	Store    *session.Store
	Pipeline *dispatch.Pipeline
	Media    *media.Registry

	Widget   *Surface
	FullPage *Surface
}

// New builds an engine for an authenticated user.
func New(authn auth.Authenticator, deps Deps, opts Options) (*Engine, error) {
	if authn == nil || !authn.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	if deps.Inference == nil {
		return nil, errors.New("engine needs an inference collaborator")
	}

	registry := media.NewRegistry()
	store := session.NewStore(deps.History, registry)

	pipelineOpts := []dispatch.Option{dispatch.WithTimeout(opts.RequestTimeout)}
	if saver, ok := deps.History.(dispatch.Saver); ok {
		pipelineOpts = append(pipelineOpts, dispatch.WithSaver(saver))
	}

	e := &Engine{
		Store:    store,
		Pipeline: dispatch.New(store, deps.Inference, registry, pipelineOpts...),
		Media:    registry,
	}
	composerOpts := []compose.Option{
		compose.WithMicrophone(deps.Microphone),
		compose.WithTranscriber(deps.Transcriber),
		compose.WithTranscribeTimeout(opts.TranscribeTimeout),
	}
	e.Widget = newSurface(e, SurfaceWidget, compose.NewComposer(registry, composerOpts...))
	e.FullPage = newSurface(e, SurfaceFullPage, compose.NewComposer(registry, composerOpts...))
	return e, nil
}

// LoadHistory refreshes the history list. Errors leave the list unchanged.
func (e *Engine) LoadHistory(ctx context.Context) error {
	return e.Store.LoadHistory(ctx)
}

// DeleteSession removes the session and cancels any reply outstanding for
// it. A reply arriving in between is dropped by the store.
func (e *Engine) DeleteSession(ctx context.Context, id string) {
	e.Store.DeleteSession(ctx, id)
	if e.Pipeline.Cancel(id) {
		slog.Debug("cancelled pending reply", slog.String("session_id", id))
	}
}

// Close waits for outstanding dispatches and releases every media handle.
func (e *Engine) Close() {
	e.Pipeline.Close()
	e.Widget.composer.Close()
	e.FullPage.composer.Close()
	e.Store.Close()
}
