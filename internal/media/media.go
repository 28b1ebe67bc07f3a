// Package media manages transient handles for locally held binary data:
// attached images, their previews and recorded audio.
//
// A handle is created by the interaction that produced the data and is owned
// by it until ownership is transferred to a message with AttachToMessage.
// Release is idempotent, so every owner may release on every exit path.
package media

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gennadis/chatengine/internal/chat"
)

type Kind string

const (
	KindImage   Kind = "image"
	KindPreview Kind = "preview"
	KindAudio   Kind = "audio"
)

// Handle references binary data held by a Registry.
type Handle struct {
	ID   string
	Kind Kind
	Name string
	MIME string

	data  []byte
	owner string
}

// URL returns the reference stored on messages that carry the handle.
func (h *Handle) URL() string {
	if h == nil {
		return ""
	}
	return chat.HandlePrefix + h.ID
}

// Registry tracks live handles. The zero value is not usable, use NewRegistry.
type Registry struct {
	mu   sync.Mutex
	live map[string]*Handle
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Handle)}
}

// Create registers data under a new handle.
func (r *Registry) Create(kind Kind, name, mime string, data []byte) *Handle {
	h := &Handle{
		ID:   uuid.NewString(),
		Kind: kind,
		Name: name,
		MIME: mime,
		data: data,
	}

	r.mu.Lock()
	r.live[h.ID] = h
	r.mu.Unlock()

	slog.Debug("media handle created",
		slog.String("id", h.ID),
		slog.String("kind", string(kind)),
		slog.Int("size", len(data)),
	)
	return h
}

// Data returns the bytes behind h, or false once h has been released.
func (r *Registry) Data(h *Handle) ([]byte, bool) {
	if h == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[h.ID]; !ok {
		return nil, false
	}
	return h.data, true
}

// Lookup resolves a message image reference to its live handle.
func (r *Registry) Lookup(url string) (*Handle, bool) {
	id, ok := strings.CutPrefix(url, chat.HandlePrefix)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.live[id]
	return h, ok
}

// AttachToMessage transfers ownership of h to the message with the given id.
// It reports false when h was already released.
func (r *Registry) AttachToMessage(h *Handle, messageID string) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[h.ID]; !ok {
		return false
	}
	h.owner = messageID
	return true
}

// Owner returns the message id owning h, empty while the composer owns it.
func (r *Registry) Owner(h *Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return h.owner
}

// Release frees h. Releasing twice, or releasing nil, is a no-op; the result
// reports whether this call did the release.
func (r *Registry) Release(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	_, ok := r.live[h.ID]
	if ok {
		delete(r.live, h.ID)
		h.data = nil
	}
	r.mu.Unlock()

	if ok {
		slog.Debug("media handle released",
			slog.String("id", h.ID),
			slog.String("kind", string(h.Kind)),
		)
	}
	return ok
}

// ReleaseURL releases the handle referenced by a message image, if any.
func (r *Registry) ReleaseURL(url string) bool {
	h, ok := r.Lookup(url)
	if !ok {
		return false
	}
	return r.Release(h)
}

// ReleaseMessages releases every handle owned by the given messages.
func (r *Registry) ReleaseMessages(messages []chat.Message) int {
	released := 0
	for _, m := range messages {
		if m.HasLocalImage() && r.ReleaseURL(m.Image) {
			released++
		}
	}
	return released
}

// ReleaseAll frees every live handle.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.live))
	for _, h := range r.live {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	released := 0
	for _, h := range handles {
		if r.Release(h) {
			released++
		}
	}
	return released
}

// Live returns the number of unreleased handles.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
