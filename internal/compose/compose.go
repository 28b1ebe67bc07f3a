// Package compose holds the input state of one chat surface: the text being
// typed, an attached image and an optional audio recording.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gennadis/chatengine/internal/media"
)

var (
	ErrEmptyMessage        = errors.New("message has no text and no image")
	ErrNotImage            = errors.New("please select an image file")
	ErrRecording           = errors.New("recording in progress")
	ErrNotRecording        = errors.New("not recording")
	ErrDeviceUnavailable   = errors.New("please allow microphone access to use voice recording")
	ErrTranscriptionFailed = errors.New("failed to transcribe audio, please try again")
)

const (
	defaultTranscribeTimeout = 30 * time.Second
	recordingName            = "recording.wav"
	recordingMIME            = "audio/wav"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Upload) (string, error)
}

// Attachment is an image selected for the next send. File holds the original
// bytes for transmission, Preview the thumbnail shown while composing.
type Attachment struct {
	File    *media.Handle
	Preview *media.Handle
}

// Draft is validated input ready to be dispatched.
type Draft struct {
	Text  string
	Image *Attachment
}

// Option configures a Composer
type Option func(*Composer)

// WithMicrophone sets the audio capture device.
func WithMicrophone(mic Microphone) Option {
	return func(c *Composer) { c.mic = mic }
}

// WithTranscriber sets the transcription collaborator.
func WithTranscriber(t Transcriber) Option {
	return func(c *Composer) { c.transcriber = t }
}

// WithTranscribeTimeout bounds a single transcription call.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.transcribeTimeout = d
		}
	}
}

// Composer is safe for concurrent use.
type Composer struct {
	media             *media.Registry
	mic               Microphone
	transcriber       Transcriber
	transcribeTimeout time.Duration

	mu    sync.Mutex
	text  string
	image *Attachment
	rec   *recording
}

// NewComposer creates an empty Composer using registry for transient media.
func NewComposer(registry *media.Registry, opts ...Option) *Composer {
	c := &Composer{
		media:             registry,
		transcribeTimeout: defaultTranscribeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetText replaces the compose text
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Text returns the compose text
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Image returns the attached image, or nil.
func (c *Composer) Image() *Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image
}

// CanSend reports whether Draft would succeed.
func (c *Composer) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validate() == nil
}

func (c *Composer) validate() error {
	if c.rec != nil {
		return ErrRecording
	}
	if strings.TrimSpace(c.text) == "" && c.image == nil {
		return ErrEmptyMessage
	}
	return nil
}

// AttachImage registers data as the image for the next send and generates its
// preview. Non-image content types are rejected without changing state.
func (c *Composer) AttachImage(ctx context.Context, name, mime string, data []byte) error {
	if !media.IsImage(mime) {
		slog.Debug("rejected attachment", slog.String("name", name), slog.String("mime", mime))
		return fmt.Errorf("%w: %s is %q", ErrNotImage, name, mime)
	}

	file := c.media.Create(media.KindImage, name, mime, data)
	preview, err := c.media.Preview(ctx, file)
	if err != nil {
		c.media.Release(file)
		return fmt.Errorf("failed to prepare image preview: %w", err)
	}

	c.mu.Lock()
	previous := c.image
	c.image = &Attachment{File: file, Preview: preview}
	c.mu.Unlock()

	c.release(previous)
	return nil
}

// RemoveImage drops the attached image and releases its handles.
func (c *Composer) RemoveImage() {
	c.mu.Lock()
	previous := c.image
	c.image = nil
	c.mu.Unlock()

	c.release(previous)
}

func (c *Composer) release(a *Attachment) {
	if a == nil {
		return
	}
	c.media.Release(a.Preview)
	c.media.Release(a.File)
}

// Draft validates the current input. The composer keeps ownership of the
// draft until Commit.
func (c *Composer) Draft() (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validate(); err != nil {
		return Draft{}, err
	}
	return Draft{Text: c.text, Image: c.image}, nil
}

// Commit clears the input after d was handed off. The attachment now belongs
// to the dispatch, so its handles are not released here.
func (c *Composer) Commit(d Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = ""
	if c.image == d.Image {
		c.image = nil
	}
}

// Close stops any recording and releases the attached image.
func (c *Composer) Close() {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		rec.finish()
	}
	c.RemoveImage()
}
