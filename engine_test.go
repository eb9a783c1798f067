package kadmin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kadmin/kadmin/internal/rate"
	"github.com/kadmin/kadmin/jwt"
	"github.com/kadmin/kadmin/password"
	"github.com/redis/go-redis/v9"
)

// memUsers is a minimal in-test UserProvider.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]UserRecord
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, users: map[int64]UserRecord{}}
}

func (m *memUsers) GetUserByPhone(_ context.Context, phone string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == phone {
			user := u
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) GetUserByID(_ context.Context, id int64) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := u
	return &user, nil
}

func (m *memUsers) CreateUser(_ context.Context, input CreateUserInput) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == input.Phone {
			return 0, ErrPhoneRegistered
		}
	}
	id := m.nextID
	m.nextID++
	now := time.Now()
	m.users[id] = UserRecord{
		ID:                 id,
		Phone:              input.Phone,
		PasswordHash:       input.PasswordHash,
		PermissionGrouping: input.PermissionGrouping,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return id, nil
}

func (m *memUsers) ListUsers(_ context.Context, input ListUsersInput) (*UserPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]UserRecord, 0, len(m.users))
	for _, u := range m.users {
		if input.Phone != "" && !strings.Contains(u.Phone, input.Phone) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	start := (input.Page - 1) * input.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + input.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return &UserPage{
		List:       matched[start:end],
		Pagination: Pagination{Current: input.Page, PageSize: input.PageSize, Total: total},
	}, nil
}

func (m *memUsers) CountUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("test-secret-test-secret-test-secret")
	cfg.SMS.EchoCode = true
	// Tests drive many sends back to back; throttling behavior gets its
	// own dedicated tests with explicit limits.
	cfg.RateLimit.MinSendInterval = 0
	cfg.RateLimit.IPDailyCap = 1000
	cfg.RateLimit.PhoneDailyCap = 1000
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memUsers, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	users := newMemUsers()
	engine, err := New(cfg, users, rdb,
		WithMetrics(NewMetrics()),
		WithPasswordConfig(password.Config{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   16,
		}),
	)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return engine, users, mr
}

func registerTestUser(t *testing.T, engine *Engine, phone, pass string) int64 {
	t.Helper()
	ctx := context.Background()

	code, err := engine.SendSMSCode(ctx, phone, "203.0.113.1")
	if err != nil {
		t.Fatalf("SendSMSCode failed: %v", err)
	}
	id, err := engine.Register(ctx, RegisterRequest{
		Phone:           phone,
		Password:        pass,
		ConfirmPassword: pass,
		SMSCode:         code,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return id
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	engine, users, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	id := registerTestUser(t, engine, "13800000000", "abc123")

	stored, err := users.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("stored user lookup failed: %v", err)
	}
	if stored.PasswordHash == "abc123" || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", stored.PasswordHash)
	}
	if stored.PermissionGrouping != DefaultPermissionGrouping {
		t.Fatalf("expected default permission grouping, got %q", stored.PermissionGrouping)
	}

	result, err := engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "abc123"}, "198.51.100.7")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := engine.ParseAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UserID != id {
		t.Fatalf("expected userId %d in claims, got %d", id, claims.UserID)
	}
	if claims.ClientIP != "198.51.100.7" {
		t.Fatalf("expected bound client ip, got %q", claims.ClientIP)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	registerTestUser(t, engine, "13800000000", "abc123")

	// Unknown phone and wrong password must be indistinguishable.
	_, err := engine.Login(ctx, LoginRequest{Phone: "13999999999", Password: "abc123"}, "198.51.100.7")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown phone, got %v", err)
	}
	_, err = engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "abc124"}, "198.51.100.7")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestRefreshWithLiveRecord(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	id := registerTestUser(t, engine, "13800000000", "abc123")
	result, err := engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "abc123"}, "198.51.100.7")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	newToken, err := engine.Refresh(ctx, result.AccessToken, "198.51.100.8")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	claims, err := engine.ParseAccess(newToken)
	if err != nil {
		t.Fatalf("ParseAccess on refreshed token failed: %v", err)
	}
	if claims.UserID != id {
		t.Fatalf("expected userId %d, got %d", id, claims.UserID)
	}
	if claims.ClientIP != "198.51.100.8" {
		t.Fatalf("expected refreshed token bound to current ip, got %q", claims.ClientIP)
	}
}

func TestRefreshAfterInvalidation(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	id := registerTestUser(t, engine, "13800000000", "abc123")
	result, err := engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "abc123"}, "198.51.100.7")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.InvalidateSession(ctx, id); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, result.AccessToken, "198.51.100.7"); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired after invalidation, got %v", err)
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	registerTestUser(t, engine, "13800000000", "abc123")

	foreign, err := jwt.NewManager(jwt.Config{
		Secret:     []byte("a-different-secret-entirely-here"),
		Issuer:     "kadmin",
		Audience:   "kadmin-web",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("foreign manager construction failed: %v", err)
	}
	forged, err := foreign.CreateAccess(1, "198.51.100.7")
	if err != nil {
		t.Fatalf("forged token mint failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, forged, "198.51.100.7"); !errors.Is(err, jwt.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for forged token, got %v", err)
	}
}

func TestSendSMSCodeThrottling(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RateLimit.PhoneDailyCap = 2
	cfg.RateLimit.MinSendInterval = 0
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1"); err != nil {
			t.Fatalf("send %d failed: %v", i+1, err)
		}
	}
	_, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1")
	if !errors.Is(err, rate.ErrPhoneLimitExceeded) {
		t.Fatalf("expected phone cap rejection, got %v", err)
	}

	// A rejected send must not count; a different phone from the same
	// ip still fits the ip budget.
	if _, err := engine.SendSMSCode(ctx, "13811111111", "203.0.113.1"); err != nil {
		t.Fatalf("expected other phone to still be allowed: %v", err)
	}
}

func TestSendSMSCodeMinInterval(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RateLimit.MinSendInterval = time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	_, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1")
	var tooFrequent *rate.TooFrequentError
	if !errors.As(err, &tooFrequent) {
		t.Fatalf("expected TooFrequentError, got %v", err)
	}
	if tooFrequent.RemainingSeconds < 1 || tooFrequent.RemainingSeconds > 60 {
		t.Fatalf("implausible retry countdown: %d", tooFrequent.RemainingSeconds)
	}
}

func TestRegisterCodeMismatchKeepsCode(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	code, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1")
	if err != nil {
		t.Fatalf("SendSMSCode failed: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err = engine.Register(ctx, RegisterRequest{
		Phone: "13800000000", Password: "abc123", ConfirmPassword: "abc123", SMSCode: wrong,
	})
	if !errors.Is(err, ErrSMSCodeMismatch) {
		t.Fatalf("expected ErrSMSCodeMismatch, got %v", err)
	}

	// The stored code survives a mismatch and still registers.
	if _, err := engine.Register(ctx, RegisterRequest{
		Phone: "13800000000", Password: "abc123", ConfirmPassword: "abc123", SMSCode: code,
	}); err != nil {
		t.Fatalf("expected retry with correct code to succeed: %v", err)
	}

	// Registration consumed the code; it cannot be replayed.
	if err := engine.VerifySMSCode(ctx, "13800000000", code); !errors.Is(err, ErrSMSCodeMismatch) {
		t.Fatalf("expected consumed code to be gone, got %v", err)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	registerTestUser(t, engine, "13800000000", "abc123")

	code, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.2")
	if err != nil {
		t.Fatalf("SendSMSCode failed: %v", err)
	}
	_, err = engine.Register(ctx, RegisterRequest{
		Phone: "13800000000", Password: "abc123", ConfirmPassword: "abc123", SMSCode: code,
	})
	if !errors.Is(err, ErrPhoneRegistered) {
		t.Fatalf("expected ErrPhoneRegistered, got %v", err)
	}

	exists, err := engine.PhoneExists(ctx, "13800000000")
	if err != nil {
		t.Fatalf("PhoneExists failed: %v", err)
	}
	if !exists {
		t.Fatal("expected phone to be reported as registered")
	}
}

func TestSMSCodeExpires(t *testing.T) {
	cfg := testEngineConfig()
	cfg.SMS.CodeTTL = 5 * time.Minute
	engine, _, mr := newTestEngine(t, cfg)
	ctx := context.Background()

	code, err := engine.SendSMSCode(ctx, "13800000000", "203.0.113.1")
	if err != nil {
		t.Fatalf("SendSMSCode failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	if err := engine.VerifySMSCode(ctx, "13800000000", code); !errors.Is(err, ErrSMSCodeMismatch) {
		t.Fatalf("expected expired code to be rejected, got %v", err)
	}
}

func TestUserListDefaultsAndStats(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		registerTestUser(t, engine, fmt.Sprintf("138000000%02d", i), "abc123")
	}

	page, err := engine.UserList(ctx, ListUsersInput{})
	if err != nil {
		t.Fatalf("UserList failed: %v", err)
	}
	if page.Pagination.Current != 1 || page.Pagination.PageSize != 10 {
		t.Fatalf("expected clamped defaults page=1 size=10, got %+v", page.Pagination)
	}
	if len(page.List) != 10 || page.Pagination.Total != 12 {
		t.Fatalf("expected 10 of 12 users, got %d of %d", len(page.List), page.Pagination.Total)
	}

	// Two logins produce two live refresh records.
	for _, phone := range []string{"13800000000", "13800000001"} {
		if _, err := engine.Login(ctx, LoginRequest{Phone: phone, Password: "abc123"}, "198.51.100.7"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	}
	stats, err := engine.StatsOverview(ctx)
	if err != nil {
		t.Fatalf("StatsOverview failed: %v", err)
	}
	if stats.TotalUsers != 12 {
		t.Fatalf("expected 12 total users, got %d", stats.TotalUsers)
	}
	if stats.ActiveUsers != 2 {
		t.Fatalf("expected 2 active users, got %d", stats.ActiveUsers)
	}
}

func TestMetricsCounters(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	registerTestUser(t, engine, "13800000000", "abc123")
	if _, err := engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "abc123"}, "198.51.100.7"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, _ = engine.Login(ctx, LoginRequest{Phone: "13800000000", Password: "nope12"}, "198.51.100.7")

	snap := engine.MetricsSnapshot()
	if snap[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap[MetricLoginSuccess])
	}
	if snap[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap[MetricLoginFailure])
	}
	if snap[MetricRegisterSuccess] != 1 {
		t.Fatalf("expected 1 registration, got %d", snap[MetricRegisterSuccess])
	}
	if snap[MetricSMSSent] != 1 {
		t.Fatalf("expected 1 sms sent, got %d", snap[MetricSMSSent])
	}
}
