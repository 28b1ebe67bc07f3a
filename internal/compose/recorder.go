package compose

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gennadis/chatengine/internal/media"
)

const fileChunkSize = 4096

// Microphone acquires an audio capture track.
type Microphone interface {
	Open(ctx context.Context) (Track, error)
}

// Track delivers recorded audio in order. Stop releases the device and must
// close the Chunks channel; calling it more than once is allowed.
type Track interface {
	Chunks() <-chan []byte
	Stop()
}

type recording struct {
	track  Track
	buf    bytes.Buffer
	done   chan struct{}
	finish func()
}

func startRecording(track Track) *recording {
	r := &recording{track: track, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for chunk := range track.Chunks() {
			r.buf.Write(chunk)
		}
	}()
	r.finish = sync.OnceFunc(func() {
		r.track.Stop()
		<-r.done
	})
	return r
}

// Recording reports whether audio capture is active.
func (c *Composer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// StartRecording acquires the microphone and begins collecting audio. When the
// device is unavailable the state is left unchanged.
func (c *Composer) StartRecording(ctx context.Context) error {
	if c.Recording() {
		return ErrRecording
	}
	if c.mic == nil {
		slog.Warn("No microphone configured")
		return ErrDeviceUnavailable
	}

	track, err := c.mic.Open(ctx)
	if err != nil {
		slog.Warn("Failed to access microphone", "error", err)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	if c.rec != nil {
		c.mu.Unlock()
		track.Stop()
		return ErrRecording
	}
	c.rec = startRecording(track)
	c.mu.Unlock()

	slog.Debug("recording started")
	return nil
}

// StopRecording releases the microphone, transcribes what was captured and
// replaces the compose text with the transcription. On failure the text is
// left as it was.
func (c *Composer) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()
	if rec == nil {
		return ErrNotRecording
	}

	rec.finish()
	audio := c.media.Create(media.KindAudio, recordingName, recordingMIME, rec.buf.Bytes())
	defer c.media.Release(audio)

	if c.transcriber == nil {
		slog.Warn("No transcriber configured")
		return ErrTranscriptionFailed
	}

	upload, _ := c.media.Upload(audio)
	ctx, cancel := context.WithTimeout(ctx, c.transcribeTimeout)
	defer cancel()

	text, err := c.transcriber.Transcribe(ctx, upload)
	if err != nil {
		slog.Warn("Failed to transcribe audio", "error", err)
		return fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	c.SetText(text)
	slog.Debug("recording transcribed", slog.Int("audio bytes", len(upload.Data)))
	return nil
}

// FileMicrophone replays a recorded audio file as if it were captured live.
type FileMicrophone struct {
	Path string
}

func (m FileMicrophone) Open(ctx context.Context) (Track, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source %s: %w", m.Path, err)
	}
	t := &fileTrack{
		chunks: make(chan []byte),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run(data)
	return t, nil
}

type fileTrack struct {
	chunks chan []byte
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (t *fileTrack) run(data []byte) {
	defer close(t.done)
	defer close(t.chunks)
	for start := 0; start < len(data); start += fileChunkSize {
		end := min(start+fileChunkSize, len(data))
		select {
		case t.chunks <- data[start:end]:
		case <-t.stop:
			return
		}
	}
}

func (t *fileTrack) Chunks() <-chan []byte { return t.chunks }

func (t *fileTrack) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
