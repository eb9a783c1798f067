package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// apiStub models the server protocol: /data answers 40001 for any token
// other than the current one, /refresh rotates the token.
type apiStub struct {
	mu           sync.Mutex
	currentToken string
	refreshCalls atomic.Int64
	refreshFails bool
}

func (s *apiStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if r.Header.Get("X-Token-Refresh") != "true" {
			writeEnvelope(w, 401, nil, "refresh marker missing")
			return
		}
		if s.refreshFails {
			writeEnvelope(w, 401, nil, "session gone")
			return
		}
		s.mu.Lock()
		s.currentToken = "fresh-token"
		s.mu.Unlock()
		writeEnvelope(w, 200, map[string]string{"accessToken": "fresh-token"}, "success")
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.currentToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeEnvelope(w, 40001, nil, "access token expired")
			return
		}
		writeEnvelope(w, 200, map[string]string{"value": "ok"}, "success")
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, code int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"data":    data,
		"message": message,
	})
}

func newStubManager(t *testing.T, stub *apiStub, onExpired func()) (*TokenManager, string) {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	manager, err := NewTokenManager(Config{
		RefreshURL:       server.URL + "/refresh",
		AccessToken:      "stale-token",
		OnSessionExpired: onExpired,
	})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}
	return manager, server.URL
}

func TestDoTransparentRefresh(t *testing.T) {
	stub := &apiStub{currentToken: "fresh-token"}
	manager, base := newStubManager(t, stub, nil)

	env, err := manager.Do(context.Background(), &Request{Method: http.MethodGet, URL: base + "/data"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if env.Code != 200 {
		t.Fatalf("expected success after transparent refresh, got %+v", env)
	}
	if got := stub.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
	if manager.Token() != "fresh-token" {
		t.Fatalf("expected rotated token, got %q", manager.Token())
	}
}

func TestConcurrentExpiryTriggersSingleRefresh(t *testing.T) {
	stub := &apiStub{currentToken: "fresh-token"}
	manager, base := newStubManager(t, stub, nil)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			env, err := manager.Do(context.Background(), &Request{Method: http.MethodGet, URL: base + "/data"})
			if err != nil {
				results <- err
				return
			}
			if env.Code != 200 {
				results <- errors.New("non-success envelope")
				return
			}
			results <- nil
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("concurrent request failed: %v", err)
		}
	}
	// Every caller saw the expired token, but the refresh ran once;
	// callers arriving after the rotation just replay.
	if got := stub.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	var expired atomic.Int64
	stub := &apiStub{currentToken: "fresh-token", refreshFails: true}
	manager, base := newStubManager(t, stub, func() { expired.Add(1) })

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := manager.Do(context.Background(), &Request{Method: http.MethodGet, URL: base + "/data"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired for every waiter, got %v", err)
		}
	}
	if got := stub.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh attempt, got %d", got)
	}
	if manager.Token() != "" {
		t.Fatalf("expected cleared token, got %q", manager.Token())
	}
	if expired.Load() != 1 {
		t.Fatalf("expected one session-expired callback, got %d", expired.Load())
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	var expired atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 401, nil, "who are you")
	}))
	defer server.Close()

	manager, err := NewTokenManager(Config{
		RefreshURL:       server.URL + "/refresh",
		AccessToken:      "some-token",
		OnSessionExpired: func() { expired.Add(1) },
	})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}

	_, err = manager.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL + "/data"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on 401, got %v", err)
	}
	if expired.Load() != 1 {
		t.Fatalf("expected one session-expired callback, got %d", expired.Load())
	}
}

func TestRateLimitEnvelopePassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 429, nil, "sending too frequently, retry in 42 seconds")
	}))
	defer server.Close()

	manager, err := NewTokenManager(Config{RefreshURL: server.URL + "/refresh", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}

	env, err := manager.Do(context.Background(), &Request{Method: http.MethodPost, URL: server.URL + "/sms"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if env.Code != 429 {
		t.Fatalf("expected 429 envelope to surface, got %+v", env)
	}
	if env.Message == "" {
		t.Fatal("expected the retry message to surface")
	}
	if manager.Token() != "tok" {
		t.Fatal("a throttle verdict must not touch the session")
	}
}

func TestRefreshRequestNotIntercepted(t *testing.T) {
	// An explicit refresh-marked call returning 40001 must come back
	// as-is instead of recursing into another refresh.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 40001, nil, "access token expired")
	}))
	defer server.Close()

	manager, err := NewTokenManager(Config{RefreshURL: server.URL + "/refresh", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}

	env, err := manager.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    server.URL + "/refresh",
		Header: http.Header{"X-Token-Refresh": []string{"true"}},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if env.Code != 40001 {
		t.Fatalf("expected the raw 40001 envelope, got %+v", env)
	}
}
