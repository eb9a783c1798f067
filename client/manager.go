package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Envelope is the decoded response body shared by every endpoint.
type Envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Request is a resumable outgoing call. The body is held as bytes so a
// replay after a token refresh can resend it verbatim.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

const (
	codeOK           = 200
	codeUnauthorized = 401
	codeForbidden    = 403
	codeTokenExpired = 40001

	headerTokenRefresh = "X-Token-Refresh"
)

// ErrSessionExpired reports that the refresh flow failed and the session
// is gone; the user must log in again.
var ErrSessionExpired = errors.New("session expired, login required")

const defaultRefreshTimeout = 15 * time.Second

// TokenManager drives one session's token lifecycle. It is safe for
// concurrent use; requests that hit 40001 while a refresh is already in
// flight queue up and replay in arrival order once the new token lands.
type TokenManager struct {
	httpClient *http.Client
	refreshURL string

	// onSessionExpired fires once per session teardown so the caller can
	// route the user back to login.
	onSessionExpired func()

	mu         sync.Mutex
	token      string
	refreshing bool
	pending    []chan error
}

// Config configures a [TokenManager].
type Config struct {
	// RefreshURL is the absolute token-refresh endpoint.
	RefreshURL string
	// AccessToken seeds the session, typically from a login response.
	AccessToken string
	// HTTPClient defaults to a 30-second-timeout client.
	HTTPClient *http.Client
	// OnSessionExpired is invoked when a refresh fails for good.
	OnSessionExpired func()
}

// NewTokenManager creates a manager for one authenticated session.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if cfg.RefreshURL == "" {
		return nil, errors.New("refresh url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		httpClient:       httpClient,
		refreshURL:       cfg.RefreshURL,
		onSessionExpired: cfg.OnSessionExpired,
		token:            cfg.AccessToken,
	}, nil
}

// SetToken replaces the session token, e.g. after a fresh login.
func (m *TokenManager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Token returns the current access token; empty means logged out.
func (m *TokenManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Do sends the request with the session token attached and interprets
// the envelope. A 40001 verdict suspends the call: the manager refreshes
// the token (once, no matter how many calls are waiting) and replays the
// request with the new token. Requests carrying the X-Token-Refresh
// marker are exempt from interception, which is what keeps the refresh
// call itself out of the queue.
func (m *TokenManager) Do(ctx context.Context, req *Request) (*Envelope, error) {
	usedToken := m.Token()
	env, err := m.send(ctx, req, usedToken)
	if err != nil {
		return nil, err
	}

	if req.Header.Get(headerTokenRefresh) == "true" {
		return env, nil
	}

	switch env.Code {
	case codeTokenExpired:
		if err := m.awaitRefresh(ctx, usedToken); err != nil {
			return nil, err
		}
		replayed, err := m.send(ctx, req, m.Token())
		if err != nil {
			return nil, err
		}
		if replayed.Code == codeUnauthorized || replayed.Code == codeForbidden {
			m.expireSession()
			return nil, ErrSessionExpired
		}
		return replayed, nil
	case codeUnauthorized, codeForbidden:
		m.expireSession()
		return nil, ErrSessionExpired
	default:
		return env, nil
	}
}

func (m *TokenManager) send(ctx context.Context, req *Request, token string) (*Envelope, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("undecodable response envelope: %w", err)
	}
	return &env, nil
}

// awaitRefresh joins the refresh queue. The first caller becomes the
// leader and performs the single refresh call; everyone else waits for
// the leader's outcome. Waiters resolve in arrival order. usedToken is
// the token whose expiry triggered the call: when the session token has
// already rotated past it, the refresh is done and the caller can
// replay immediately.
func (m *TokenManager) awaitRefresh(ctx context.Context, usedToken string) error {
	if usedToken == "" {
		// No token to exchange; the session is already gone.
		return ErrSessionExpired
	}

	m.mu.Lock()
	if m.token != usedToken {
		if m.token == "" {
			m.mu.Unlock()
			return ErrSessionExpired
		}
		m.mu.Unlock()
		return nil
	}
	if !m.refreshing {
		m.refreshing = true
		m.mu.Unlock()
		err := m.refresh(ctx)
		m.settle(err)
		return err
	}
	done := make(chan error, 1)
	m.pending = append(m.pending, done)
	m.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *TokenManager) settle(err error) {
	m.mu.Lock()
	waiters := m.pending
	m.pending = nil
	m.refreshing = false
	m.mu.Unlock()

	for _, done := range waiters {
		done <- err
	}
}

// refresh exchanges the expired token for a fresh one. The request is
// marked with X-Token-Refresh so the server's auth guard lets the
// expired token through and the manager's own interception stays out of
// the way.
func (m *TokenManager) refresh(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultRefreshTimeout)
	defer cancel()

	req := &Request{
		Method: http.MethodPost,
		URL:    m.refreshURL,
		Header: http.Header{headerTokenRefresh: []string{"true"}},
	}
	env, err := m.send(refreshCtx, req, m.Token())
	if err != nil {
		m.expireSession()
		return ErrSessionExpired
	}
	if env.Code != codeOK {
		m.expireSession()
		return ErrSessionExpired
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.AccessToken == "" {
		m.expireSession()
		return ErrSessionExpired
	}

	m.SetToken(payload.AccessToken)
	return nil
}

func (m *TokenManager) expireSession() {
	m.mu.Lock()
	hadToken := m.token != ""
	m.token = ""
	m.mu.Unlock()

	if hadToken && m.onSessionExpired != nil {
		m.onSessionExpired()
	}
}
