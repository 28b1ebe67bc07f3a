package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gennadis/chatengine/internal/auth"
	"github.com/gennadis/chatengine/internal/client"
	"github.com/gennadis/chatengine/internal/config"
	"github.com/gennadis/chatengine/internal/session"
	"github.com/gennadis/chatengine/storage"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "chatengine",
	Short:         "Chat with the Eyeconic assistant from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			if _, err := config.ParseLevel(logLevel); err != nil {
				return err
			}
			cfg.LogLevel = logLevel
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))
		loaded = cfg
		return nil
	},
}

var loaded *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.AddCommand(newChatCmd(), newHistoryCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// backend holds the long-lived collaborators built from the config.
type backend struct {
	authn   auth.Authenticator
	client  *client.Client
	history session.HistoryStore
	closers []func()
}

func newBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	switch {
	case cfg.AccessToken != "":
		b.authn = auth.Static(cfg.AccessToken)
	case cfg.Username != "":
		handler, err := auth.NewAuthenticationHandler(ctx, cfg.BaseURL, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to log in: %w", err)
		}
		runCtx, cancel := context.WithCancel(ctx)
		wg := handler.Run(runCtx)
		b.closers = append(b.closers, func() {
			cancel()
			waitAndClose(wg, handler.ErrorChan)
		})
		b.authn = handler
	default:
		b.authn = auth.Static("")
	}

	b.client = client.NewClient(cfg.BaseURL, cfg.RequestTimeout, b.authn)

	switch cfg.HistoryBackend {
	case config.BackendSqlite:
		db, err := storage.NewSqliteDB(cfg.DBPath)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		history, err := storage.NewHistory(db)
		if err != nil {
			db.Close()
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := history.Close(); err != nil {
				slog.Error("Failed to close history database", "error", err)
			}
		})
		b.history = history
	default:
		b.history = b.client
	}
	return b, nil
}

func waitAndClose(wg *sync.WaitGroup, errs chan error) {
	wg.Wait()
	close(errs)
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
