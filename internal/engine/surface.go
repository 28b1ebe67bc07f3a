package engine

import (
	"context"

	"github.com/gennadis/chatengine/internal/compose"
	"github.com/gennadis/chatengine/internal/dispatch"
	"github.com/gennadis/chatengine/internal/render"
)

type SurfaceKind int

const (
	SurfaceWidget SurfaceKind = iota
	SurfaceFullPage
)

func (k SurfaceKind) String() string {
	if k == SurfaceFullPage {
		return "page"
	}
	return "widget"
}

// Surface is one presentation of the shared store. Each surface composes
// its own input.
type Surface struct {
	kind     SurfaceKind
	engine   *Engine
	composer *compose.Composer
}

func newSurface(e *Engine, kind SurfaceKind, composer *compose.Composer) *Surface {
	return &Surface{kind: kind, engine: e, composer: composer}
}

func (s *Surface) Kind() SurfaceKind {
	return s.kind
}

// Composer returns the surface input.
func (s *Surface) Composer() *compose.Composer {
	return s.composer
}

// Open shows this surface and hides the other one.
func (s *Surface) Open() {
	if s.kind == SurfaceFullPage {
		s.engine.Store.OpenFullPage()
		return
	}
	s.engine.Store.OpenWidget()
}

func (s *Surface) Close() {
	if s.kind == SurfaceFullPage {
		s.engine.Store.CloseFullPage()
		return
	}
	s.engine.Store.CloseWidget()
}

func (s *Surface) Visible() bool {
	state := s.engine.Store.Snapshot()
	if s.kind == SurfaceFullPage {
		return state.FullPageVisible
	}
	return state.WidgetVisible
}

// Send dispatches the composed input. The input is cleared only when the
// dispatch started; on error it is kept for another try.
func (s *Surface) Send() (*dispatch.Flight, error) {
	draft, err := s.composer.Draft()
	if err != nil {
		return nil, err
	}
	flight, err := s.engine.Pipeline.Dispatch(draft)
	if err != nil {
		return nil, err
	}
	s.composer.Commit(draft)
	return flight, nil
}

// UseQuickPrompt fills the input with the i-th quick prompt.
func (s *Surface) UseQuickPrompt(i int) error {
	if i < 0 || i >= len(QuickPrompts) {
		return ErrUnknownPrompt
	}
	s.composer.SetText(QuickPrompts[i])
	return nil
}

func (s *Surface) AttachImage(ctx context.Context, name, mime string, data []byte) error {
	return s.composer.AttachImage(ctx, name, mime, data)
}

func (s *Surface) StartRecording(ctx context.Context) error {
	return s.composer.StartRecording(ctx)
}

func (s *Surface) StopRecording(ctx context.Context) error {
	return s.composer.StopRecording(ctx)
}

// Changes signals after every store change, including replies settling in
// the background. Signals coalesce. Call the returned func to stop.
func (s *Surface) Changes() (<-chan struct{}, func()) {
	return s.engine.Store.Subscribe()
}

// Input describes the compose area for rendering.
func (s *Surface) Input() render.Input {
	in := render.Input{
		Text:         s.composer.Text(),
		Recording:    s.composer.Recording(),
		QuickPrompts: QuickPrompts,
	}
	if img := s.composer.Image(); img != nil {
		in.ImageName = img.File.Name
	}
	return in
}

// View renders the surface at width.
func (s *Surface) View(r *render.Renderer, width int) string {
	state := s.engine.Store.Snapshot()
	if s.kind == SurfaceFullPage {
		return r.FullPage(state, s.Input(), width)
	}
	return r.Widget(state, s.Input(), width)
}
