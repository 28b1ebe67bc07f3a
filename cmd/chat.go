package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gennadis/chatengine/internal/compose"
	"github.com/gennadis/chatengine/internal/config"
	"github.com/gennadis/chatengine/internal/engine"
	"github.com/gennadis/chatengine/internal/render"
)

const chatHelp = `commands:
  /image <path>   attach an image        /remove        drop the image
  /record <wav>   record from a wav file /stop          stop and transcribe
  /prompt <n>     use a quick prompt     /new           start a new chat
  /history        list previous chats    /load <id>     open a previous chat
  /delete <id>    delete a chat          /page /widget  switch surface
  /quit           leave`

func newChatCmd() *cobra.Command {
	var surface string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if surface != "widget" && surface != "page" {
				return fmt.Errorf("unknown surface %q", surface)
			}
			return runChat(cmd.Context(), loaded, surface, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&surface, "surface", "widget", "surface to start on: widget or page")
	return cmd
}

// wavSource is a microphone whose audio file is chosen per recording.
type wavSource struct {
	path string
}

func (w *wavSource) Open(ctx context.Context) (compose.Track, error) {
	if w.path == "" {
		return nil, errors.New("no audio file selected")
	}
	return compose.FileMicrophone{Path: w.path}.Open(ctx)
}

type chatLoop struct {
	engine   *engine.Engine
	renderer *render.Renderer
	cfg      *config.Config
	mic      *wavSource
	active   *engine.Surface
	out      io.Writer
}

func runChat(ctx context.Context, cfg *config.Config, surface string, in io.Reader, out io.Writer) error {
	b, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	mic := &wavSource{}
	e, err := engine.New(b.authn, engine.Deps{
		Inference:   b.client,
		Transcriber: b.client,
		History:     b.history,
		Microphone:  mic,
	}, engine.Options{
		RequestTimeout:    cfg.RequestTimeout,
		TranscribeTimeout: cfg.TranscribeTimeout,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	loop := &chatLoop{engine: e, renderer: render.NewRenderer(), cfg: cfg, mic: mic, out: out}
	loop.active = e.Widget
	if surface == "page" {
		loop.active = e.FullPage
	}
	loop.active.Open()

	if err := e.LoadHistory(ctx); err != nil {
		fmt.Fprintln(out, "could not load chat history")
	}
	loop.show()
	fmt.Fprintln(out, chatHelp)

	changes, unsubscribe := loop.active.Changes()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var scanErr error
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			loop.show()
		case line, ok := <-lines:
			if !ok {
				return scanErr
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			loop.handle(ctx, line)
		}
	}
}

func (l *chatLoop) width() int {
	if l.active.Kind() == engine.SurfaceFullPage {
		return l.cfg.PageWidth
	}
	return l.cfg.WidgetWidth
}

func (l *chatLoop) show() {
	fmt.Fprintln(l.out, l.active.View(l.renderer, l.width()))
}

func (l *chatLoop) report(err error) {
	fmt.Fprintf(l.out, "! %v\n", err)
}

func (l *chatLoop) handle(ctx context.Context, line string) {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/image":
		if err := l.attach(ctx, arg); err != nil {
			l.report(err)
			return
		}
	case "/remove":
		l.active.Composer().RemoveImage()
	case "/record":
		l.mic.path = arg
		if err := l.active.StartRecording(ctx); err != nil {
			l.report(err)
			return
		}
		fmt.Fprintln(l.out, "recording, /stop to finish")
		return
	case "/stop":
		if err := l.active.StopRecording(ctx); err != nil {
			l.report(err)
		}
	case "/prompt":
		n, err := strconv.Atoi(arg)
		if err != nil {
			n = 0
		}
		if err := l.active.UseQuickPrompt(n - 1); err != nil {
			l.report(err)
			return
		}
	case "/new":
		l.engine.Store.CreateNewSession()
		return
	case "/load":
		if !l.engine.Store.LoadSession(arg) {
			l.report(fmt.Errorf("no chat %q in history", arg))
		}
		return
	case "/delete":
		l.engine.DeleteSession(ctx, arg)
		return
	case "/history":
		if err := l.engine.LoadHistory(ctx); err != nil {
			l.report(err)
		}
		for _, s := range l.engine.Store.History() {
			fmt.Fprintf(l.out, "%s  %s\n", s.ID, s.Title)
		}
		return
	case "/page":
		l.switchTo(l.engine.FullPage)
		return
	case "/widget":
		l.switchTo(l.engine.Widget)
		return
	default:
		if strings.HasPrefix(command, "/") {
			fmt.Fprintln(l.out, chatHelp)
			return
		}
		l.active.Composer().SetText(line)
		if _, err := l.active.Send(); err != nil {
			l.report(err)
		}
		return
	}
	// compose-only changes do not touch the store, so nothing else redraws them
	l.show()
}

func (l *chatLoop) switchTo(s *engine.Surface) {
	// the new surface picks up whatever was typed on the old one
	if text := l.active.Composer().Text(); text != "" && s != l.active {
		s.Composer().SetText(text)
		l.active.Composer().SetText("")
	}
	l.active = s
	s.Open()
}

func (l *chatLoop) attach(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return l.active.AttachImage(ctx, filepath.Base(path), contentType, data)
}
