package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gennadis/chatengine/internal/chat"
)

var errReleasedUpload = errors.New("image upload was released before sending")

type Outcome int

const (
	Sending Outcome = iota
	Settled
	Errored
	// Dropped means the session was deleted before the reply arrived.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Settled:
		return "settled"
	case Errored:
		return "errored"
	case Dropped:
		return "dropped"
	default:
		return "sending"
	}
}

// Flight tracks one dispatch.
type Flight struct {
	SessionID string
	MessageID string

	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	outcome Outcome
	reply   chat.Message
}

func (f *Flight) finish(outcome Outcome, reply chat.Message) {
	f.mu.Lock()
	f.outcome = outcome
	f.reply = reply
	f.mu.Unlock()
}

// Done is closed once the dispatch has reached its final state.
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the current state of the dispatch.
func (f *Flight) Outcome() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

// Reply returns the bot message produced, valid once Done is closed.
func (f *Flight) Reply() chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply
}

// Wait blocks until the dispatch finishes or ctx is done.
func (f *Flight) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.Outcome(), nil
	case <-ctx.Done():
		return f.Outcome(), ctx.Err()
	}
}
