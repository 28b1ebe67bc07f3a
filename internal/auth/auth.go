package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JSONContentType = "application/json"
)

const (
	loginPath                 = "/users/login/"
	errorChanBufferSize       = 100
	rotateTokenTickerInterval = time.Minute * 20
	httpTimeout               = time.Second * 10
)

// Authenticator is the identity capability the engine depends on.
type Authenticator interface {
	IsAuthenticated() bool
	Token() string
}

// Static is an Authenticator backed by a token obtained elsewhere.
type Static string

func (s Static) IsAuthenticated() bool { return strings.TrimSpace(string(s)) != "" }

func (s Static) Token() string { return string(s) }

type AuthErrorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

type Token struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthenticationHandler logs in with user credentials and keeps the access
// token fresh by logging in again on a ticker.
type AuthenticationHandler struct {
	baseURL    string
	username   string
	password   string
	interval   time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	token     Token
	ErrorChan chan error
}

// NewAuthenticationHandler logs in and returns a handler holding the token.
func NewAuthenticationHandler(ctx context.Context, baseURL, username, password string) (*AuthenticationHandler, error) {
	authHandler := &AuthenticationHandler{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		interval:   rotateTokenTickerInterval,
		httpClient: &http.Client{Timeout: httpTimeout},
		ErrorChan:  make(chan error, errorChanBufferSize),
	}
	initialToken, err := authHandler.getAccessToken(ctx)
	if err != nil {
		slog.Error("Failed to get Access Token", "error", err)
		return nil, err
	}
	authHandler.token = *initialToken
	return authHandler, nil
}

// IsAuthenticated reports whether an access token is held.
func (ah *AuthenticationHandler) IsAuthenticated() bool {
	return ah.Token() != ""
}

// Token returns the current access token.
func (ah *AuthenticationHandler) Token() string {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	return ah.token.AccessToken
}

func (ah *AuthenticationHandler) getAccessToken(ctx context.Context) (*Token, error) {
	payload, err := json.Marshal(loginRequest{Username: ah.username, Password: ah.password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ah.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to build auth request", "error", err)
		return nil, err
	}

	req.Header.Add("Content-Type", JSONContentType)
	req.Header.Add("Accept", JSONContentType)
	req.Header.Add("X-Request-ID", uuid.NewString())

	res, err := ah.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send auth request", "error", err)
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		slog.Error("Failed to read auth response body", "error", err)
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		authErr := AuthErrorResponse{}
		_ = json.Unmarshal(body, &authErr)
		message := authErr.Detail
		if message == "" {
			message = authErr.Error
		}
		return nil, fmt.Errorf("Api request failed: status code %d, message %s", res.StatusCode, message)
	}

	accessToken := Token{}
	if err := json.Unmarshal(body, &accessToken); err != nil {
		slog.Error("Failed to unmarshal auth response body", "error", err)
		return nil, err
	}
	if accessToken.AccessToken == "" {
		return nil, fmt.Errorf("login response carries no access token")
	}
	return &accessToken, nil
}

// Run rotates the token until ctx is done. Rotation failures keep the old
// token and are logged once, as they are read back from ErrorChan.
func (ah *AuthenticationHandler) Run(ctx context.Context) *sync.WaitGroup {
	ticker := time.NewTicker(ah.interval)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ah.rotateToken(ctx)

			case <-ctx.Done():
				return

			case err := <-ah.ErrorChan:
				slog.Error("Access token rotation error", "error", err)
			}
		}
	}()

	return wg
}

func (ah *AuthenticationHandler) rotateToken(ctx context.Context) {
	newToken, err := ah.getAccessToken(ctx)
	if err != nil {
		select {
		case ah.ErrorChan <- err:
		default:
		}
		return
	}

	ah.mu.Lock()
	ah.token = *newToken
	ah.mu.Unlock()
	slog.Info("Access token rotated successfully")
}
