package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendRemote = "remote"
	BackendSqlite = "sqlite"

	defaultBaseURL           = "http://localhost:8000/api"
	defaultDBPath            = "chatengine.db"
	defaultRequestTimeout    = 60 * time.Second
	defaultTranscribeTimeout = 30 * time.Second
	defaultWidgetWidth       = 48
	defaultPageWidth         = 96
	defaultEnvFile           = ".env"
)

type Config struct {
	BaseURL           string        `yaml:"base_url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	AccessToken       string        `yaml:"access_token"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
	HistoryBackend    string        `yaml:"history_backend"`
	DBPath            string        `yaml:"db_path"`
	LogLevel          string        `yaml:"log_level"`
	WidgetWidth       int           `yaml:"widget_width"`
	PageWidth         int           `yaml:"page_width"`
}

// NewConfig returns the defaults
func NewConfig() *Config {
	return &Config{
		BaseURL:           defaultBaseURL,
		RequestTimeout:    defaultRequestTimeout,
		TranscribeTimeout: defaultTranscribeTimeout,
		HistoryBackend:    BackendRemote,
		DBPath:            defaultDBPath,
		LogLevel:          "info",
		WidgetWidth:       defaultWidgetWidth,
		PageWidth:         defaultPageWidth,
	}
}

// Load layers the YAML file at path (optional when empty), the env files
// (".env" when none are given, missing ones skipped) and the process
// environment over the defaults. Process environment wins over env files.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{defaultEnvFile}
	}
	dotenv := map[string]string{}
	for _, file := range envFiles {
		values, err := godotenv.Read(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range values {
			dotenv[k] = v
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CHAT_BASE_URL":        &c.BaseURL,
		"CHAT_USERNAME":        &c.Username,
		"CHAT_PASSWORD":        &c.Password,
		"CHAT_ACCESS_TOKEN":    &c.AccessToken,
		"CHAT_HISTORY_BACKEND": &c.HistoryBackend,
		"CHAT_DB_PATH":         &c.DBPath,
		"CHAT_LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"CHAT_REQUEST_TIMEOUT":    &c.RequestTimeout,
		"CHAT_TRANSCRIBE_TIMEOUT": &c.TranscribeTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"CHAT_WIDGET_WIDTH": &c.WidgetWidth,
		"CHAT_PAGE_WIDTH":   &c.PageWidth,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports the first inconsistent setting
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case BackendRemote:
		if c.BaseURL == "" {
			return errors.New("base_url is required with the remote history backend")
		}
	case BackendSqlite:
		if c.DBPath == "" {
			return errors.New("db_path is required with the sqlite history backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.HistoryBackend)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.TranscribeTimeout <= 0 {
		return errors.New("transcribe_timeout must be positive")
	}
	if c.WidgetWidth <= 0 || c.PageWidth <= 0 {
		return errors.New("surface widths must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
