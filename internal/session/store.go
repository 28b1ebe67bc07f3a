// Package session owns the chat state shared by every surface: the current
// session, the history list, which surface is visible and whether a reply
// is pending. State changes only through Store methods.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/media"
)

var (
	ErrNoSession = errors.New("no current session")
	ErrPending   = errors.New("a reply is still pending")
)

// HistoryStore lists and deletes sessions persisted outside the process.
type HistoryStore interface {
	ListSessions(ctx context.Context) ([]*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// State is a copy of the store contents; mutating it has no effect on the store.
type State struct {
	Current         *chat.Session
	History         []*chat.Session
	WidgetVisible   bool
	FullPageVisible bool
	Pending         bool
}

// Store is safe for concurrent use.
type Store struct {
	remote HistoryStore
	media  *media.Registry
	group  singleflight.Group
	// persistMu orders saves against deletes; it is taken before mu.
	persistMu sync.Mutex

	mu              sync.RWMutex
	current         *chat.Session
	history         []*chat.Session
	widgetVisible   bool
	fullPageVisible bool
	// inflight holds sessions awaiting a reply, keyed by id. A session
	// deleted mid-flight is removed here, which drops its late reply.
	inflight map[string]*chat.Session
	subs     map[int]chan struct{}
	nextSub  int
}

// NewStore creates an empty Store. remote may be nil when no history
// backend is available.
func NewStore(remote HistoryStore, registry *media.Registry) *Store {
	if registry == nil {
		registry = media.NewRegistry()
	}
	return &Store{
		remote:   remote,
		media:    registry,
		inflight: make(map[string]*chat.Session),
		subs:     make(map[int]chan struct{}),
	}
}

// OpenWidget shows the widget and hides the full page.
func (s *Store) OpenWidget() {
	s.mu.Lock()
	s.widgetVisible = true
	s.fullPageVisible = false
	s.ensureSession()
	s.mu.Unlock()
	s.notify()
}

// OpenFullPage shows the full page and hides the widget.
func (s *Store) OpenFullPage() {
	s.mu.Lock()
	s.fullPageVisible = true
	s.widgetVisible = false
	s.ensureSession()
	s.mu.Unlock()
	s.notify()
}

// CloseWidget hides the widget, keeping the current session.
func (s *Store) CloseWidget() {
	s.mu.Lock()
	s.widgetVisible = false
	s.mu.Unlock()
	s.notify()
}

// CloseFullPage hides the full page, keeping the current session.
func (s *Store) CloseFullPage() {
	s.mu.Lock()
	s.fullPageVisible = false
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ensureSession() {
	if s.current == nil {
		s.current = chat.NewSession()
		slog.Debug("session created", slog.String("id", s.current.ID))
	}
}

// CreateNewSession replaces the current session with an empty one and
// returns its id. History is left alone.
func (s *Store) CreateNewSession() string {
	s.mu.Lock()
	s.current = chat.NewSession()
	id := s.current.ID
	s.mu.Unlock()

	slog.Debug("session created", slog.String("id", id))
	s.notify()
	return id
}

// LoadSession makes the history entry with id current. Unknown ids are
// ignored; the result reports whether the session was found.
func (s *Store) LoadSession(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		s.current = s.history[i]
	}
	s.mu.Unlock()

	if i < 0 {
		slog.Debug("session not in history", slog.String("id", id))
		return false
	}
	s.notify()
	return true
}

// DeleteSession removes id from local state, then from the history store.
// Local removal always happens: a failing remote delete is only logged.
func (s *Store) DeleteSession(ctx context.Context, id string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	var removed []*chat.Session
	if i := s.indexOf(id); i >= 0 {
		removed = append(removed, s.history[i])
		s.history = append(s.history[:i], s.history[i+1:]...)
	}
	if s.current != nil && s.current.ID == id {
		removed = append(removed, s.current)
		s.current = nil
	}
	if pending, ok := s.inflight[id]; ok {
		removed = append(removed, pending)
		delete(s.inflight, id)
	}
	s.mu.Unlock()

	for _, session := range removed {
		s.media.ReleaseMessages(session.Messages)
	}
	slog.Debug("session deleted", slog.String("id", id))
	s.notify()

	if s.remote == nil {
		return
	}
	if err := s.remote.DeleteSession(ctx, id); err != nil {
		slog.Error("Failed to delete session from history", "error", err, slog.String("id", id))
	}
}

// LoadHistory replaces the history list with the history store contents.
// Media of replaced sessions is released unless the session is current or
// awaiting a reply. On failure history is unchanged and the error is returned.
func (s *Store) LoadHistory(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	_, err, _ := s.group.Do("history", func() (interface{}, error) {
		sessions, err := s.remote.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		var replaced []*chat.Session
		for _, old := range s.history {
			if _, pending := s.inflight[old.ID]; pending || old == s.current {
				continue
			}
			replaced = append(replaced, old)
		}
		s.history = sessions
		s.mu.Unlock()

		for _, old := range replaced {
			s.media.ReleaseMessages(old.Messages)
		}
		return nil, nil
	})
	if err != nil {
		slog.Error("Failed to load chat history", "error", err)
		return err
	}

	slog.Debug("history loaded", slog.Int("count", len(s.History())))
	s.notify()
	return nil
}

// Begin appends msg to the current session as the start of a dispatch and
// returns the session id. Only one dispatch may be pending at a time. While a
// surface is visible a missing current session is recreated first.
func (s *Store) Begin(msg chat.Message) (string, error) {
	s.mu.Lock()
	if s.widgetVisible || s.fullPageVisible {
		s.ensureSession()
	}
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNoSession
	}
	if len(s.inflight) > 0 {
		s.mu.Unlock()
		return "", ErrPending
	}
	s.current.Append(msg)
	id := s.current.ID
	s.inflight[id] = s.current
	s.mu.Unlock()

	slog.Debug("message appended",
		slog.String("session_id", id),
		slog.String("id", msg.ID),
		slog.Bool("user", msg.IsUser),
	)
	s.notify()
	return id, nil
}

// Settle finishes the dispatch for sessionID by appending the reply and
// upserting the session into history. It reports false, and changes
// nothing, when the session was deleted while the reply was outstanding.
func (s *Store) Settle(sessionID string, reply chat.Message) (*chat.Session, bool) {
	s.mu.Lock()
	target, ok := s.inflight[sessionID]
	if !ok {
		s.mu.Unlock()
		slog.Debug("reply dropped for deleted session", slog.String("session_id", sessionID))
		return nil, false
	}
	delete(s.inflight, sessionID)
	target.Append(reply)
	s.upsert(target)
	settled := target.Clone()
	s.mu.Unlock()

	slog.Debug("message appended",
		slog.String("session_id", sessionID),
		slog.String("id", reply.ID),
		slog.Bool("user", reply.IsUser),
	)
	s.notify()
	return settled, true
}

func (s *Store) upsert(session *chat.Session) {
	if i := s.indexOf(session.ID); i >= 0 {
		s.history[i] = session
		return
	}
	s.history = append([]*chat.Session{session}, s.history...)
}

func (s *Store) indexOf(id string) int {
	for i, session := range s.history {
		if session.ID == id {
			return i
		}
	}
	return -1
}

// Persist runs save only while sessionID still exists, and holds off any
// delete of it until save returns. It reports whether save ran.
func (s *Store) Persist(sessionID string, save func() error) (bool, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	_, pending := s.inflight[sessionID]
	exists := pending || s.indexOf(sessionID) >= 0 || (s.current != nil && s.current.ID == sessionID)
	s.mu.RUnlock()
	if !exists {
		slog.Debug("skipped saving deleted session", slog.String("session_id", sessionID))
		return false, nil
	}
	return true, save()
}

// Pending reports whether a reply is outstanding.
func (s *Store) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inflight) > 0
}

// Current returns a copy of the current session, or nil.
func (s *Store) Current() *chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// History returns copies of the history sessions, most recent first.
func (s *Store) History() []*chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.history)
}

// Snapshot returns a consistent copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Current:         s.current.Clone(),
		History:         cloneAll(s.history),
		WidgetVisible:   s.widgetVisible,
		FullPageVisible: s.fullPageVisible,
		Pending:         len(s.inflight) > 0,
	}
}

func cloneAll(sessions []*chat.Session) []*chat.Session {
	out := make([]*chat.Session, len(sessions))
	for i, session := range sessions {
		out[i] = session.Clone()
	}
	return out
}

// Subscribe returns a channel signalled after every state change and a
// function that ends the subscription. Signals coalesce: a slow reader sees
// one pending signal, then reads the latest state.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close drops all state, releases every transient media handle and ends all
// subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	s.current = nil
	s.history = nil
	s.inflight = make(map[string]*chat.Session)
	s.widgetVisible = false
	s.fullPageVisible = false
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	released := s.media.ReleaseAll()
	slog.Debug("store closed", slog.Int("released handles", released))
}
