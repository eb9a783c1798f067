package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	kadmin "github.com/kadmin/kadmin"
	"github.com/kadmin/kadmin/internal/rate"
	"github.com/kadmin/kadmin/jwt"
	"github.com/kadmin/kadmin/middleware"
)

type api struct {
	engine *kadmin.Engine
	logger *slog.Logger
}

// routes assembles the route table. Each route declares its guard chain
// explicitly; order inside a chain is load-bearing.
func (a *api) routes() http.Handler {
	cfg := a.engine.Config()

	envGuard := middleware.EnvGuard(cfg.Validate)
	turnstileGuard := middleware.TurnstileGuard(&middleware.TurnstileVerifier{
		SecretKey:      cfg.Turnstile.SecretKey,
		VerifyURL:      cfg.Turnstile.VerifyURL,
		AllowDevBypass: cfg.Turnstile.AllowDevBypass,
	})
	authGuard := middleware.AuthGuard(a.engine)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/admin/login", middleware.Chain(a.logger, a.handleLogin,
		envGuard,
		turnstileGuard,
		middleware.LoginValidateGuard(),
	))
	mux.Handle("POST /api/v1/admin/register", middleware.Chain(a.logger, a.handleRegister,
		envGuard,
		turnstileGuard,
		middleware.RegisterValidateGuard(),
		middleware.SMSCodeGuard(a.engine),
		middleware.PhoneUniquenessGuard(a.engine),
	))
	mux.Handle("POST /api/v1/admin/sms/send", middleware.Chain(a.logger, a.handleSendSMS,
		envGuard,
		turnstileGuard,
		middleware.SMSValidateGuard(),
		middleware.PhoneUniquenessGuard(a.engine),
		middleware.RateLimitGuard(a.engine),
	))
	mux.Handle("POST /api/v1/admin/auth/refresh", middleware.Chain(a.logger, a.handleRefresh,
		envGuard,
	))
	mux.Handle("POST /api/v1/admin/logout", middleware.Chain(a.logger, a.handleLogout,
		envGuard,
		authGuard,
	))
	mux.Handle("GET /api/v1/admin/user/info", middleware.Chain(a.logger, a.handleUserInfo,
		envGuard,
		authGuard,
	))
	mux.Handle("GET /api/v1/admin/user/list", middleware.Chain(a.logger, a.handleUserList,
		envGuard,
		authGuard,
	))
	mux.Handle("GET /api/v1/admin/stats/overview", middleware.Chain(a.logger, a.handleStatsOverview,
		envGuard,
		authGuard,
	))
	return mux
}

func (a *api) handleLogin(r *http.Request) middleware.Response {
	var req kadmin.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return middleware.Fail(middleware.CodeBadRequest, "malformed request body")
	}

	result, err := a.engine.Login(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		if errors.Is(err, kadmin.ErrInvalidCredentials) {
			return middleware.Fail(middleware.CodeUnauthorized, "invalid phone or password")
		}
		a.logger.Error("login failed", "error", err)
		return middleware.Fail(middleware.CodeInternal, "login failed")
	}
	return middleware.OK(result)
}

func (a *api) handleRegister(r *http.Request) middleware.Response {
	var req kadmin.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return middleware.Fail(middleware.CodeBadRequest, "malformed request body")
	}

	id, err := a.engine.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, kadmin.ErrSMSCodeMismatch):
			return middleware.Fail(middleware.CodeBadRequest, "verification code mismatch or expired")
		case errors.Is(err, kadmin.ErrPhoneRegistered):
			return middleware.Fail(middleware.CodeBadRequest, "phone number already registered")
		default:
			a.logger.Error("registration failed", "error", err)
			return middleware.Fail(middleware.CodeInternal, "registration failed")
		}
	}
	return middleware.OK(map[string]int64{"userId": id})
}

func (a *api) handleSendSMS(r *http.Request) middleware.Response {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return middleware.Fail(middleware.CodeBadRequest, "malformed request body")
	}

	code, err := a.engine.SendSMSCode(r.Context(), req.Phone, middleware.ClientIP(r))
	if err != nil {
		var tooFrequent *rate.TooFrequentError
		switch {
		case errors.As(err, &tooFrequent),
			errors.Is(err, rate.ErrIPLimitExceeded),
			errors.Is(err, rate.ErrPhoneLimitExceeded):
			// The guard normally catches these first.
			return middleware.Fail(middleware.CodeTooMany, "sending too frequently")
		default:
			a.logger.Error("sms send failed", "error", err)
			return middleware.Fail(middleware.CodeInternal, "verification code send failed")
		}
	}

	if a.engine.Config().SMS.EchoCode {
		return middleware.OK(map[string]string{"smsCode": code})
	}
	return middleware.OK(nil)
}

func (a *api) handleRefresh(r *http.Request) middleware.Response {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return middleware.Fail(middleware.CodeUnauthorized, "missing credentials")
	}

	newToken, err := a.engine.Refresh(r.Context(), token, middleware.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenInvalid):
			return middleware.Fail(middleware.CodeUnauthorized, "invalid credentials")
		case errors.Is(err, kadmin.ErrRefreshExpired):
			return middleware.Fail(middleware.CodeUnauthorized, "session expired, login required")
		default:
			a.logger.Error("token refresh failed", "error", err)
			return middleware.Fail(middleware.CodeInternal, "token refresh failed")
		}
	}
	return middleware.OK(map[string]string{"accessToken": newToken})
}

func (a *api) handleLogout(r *http.Request) middleware.Response {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return middleware.Fail(middleware.CodeUnauthorized, "missing credentials")
	}
	if err := a.engine.InvalidateSession(r.Context(), claims.UserID); err != nil {
		a.logger.Error("logout failed", "userId", claims.UserID, "error", err)
		return middleware.Fail(middleware.CodeInternal, "logout failed")
	}
	return middleware.OK(nil)
}

func (a *api) handleUserInfo(r *http.Request) middleware.Response {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return middleware.Fail(middleware.CodeUnauthorized, "missing credentials")
	}

	info, err := a.engine.UserInfo(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, kadmin.ErrUserNotFound) {
			return middleware.Fail(middleware.CodeUnauthorized, "account no longer exists")
		}
		a.logger.Error("user info lookup failed", "userId", claims.UserID, "error", err)
		return middleware.Fail(middleware.CodeInternal, "user info lookup failed")
	}
	return middleware.OK(info)
}

func (a *api) handleUserList(r *http.Request) middleware.Response {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("current"))
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))

	result, err := a.engine.UserList(r.Context(), kadmin.ListUsersInput{
		Page:     page,
		PageSize: pageSize,
		Phone:    query.Get("phone"),
	})
	if err != nil {
		a.logger.Error("user list failed", "error", err)
		return middleware.Fail(middleware.CodeInternal, "user list failed")
	}

	// The list view must never leak password hashes.
	view := make([]kadmin.UserInfo, 0, len(result.List))
	for _, user := range result.List {
		view = append(view, kadmin.UserInfo{
			ID:        user.ID,
			Phone:     user.Phone,
			CreatedAt: user.CreatedAt,
			UpdatedAt: user.UpdatedAt,
		})
	}
	return middleware.OK(map[string]any{
		"list":       view,
		"pagination": result.Pagination,
	})
}

func (a *api) handleStatsOverview(r *http.Request) middleware.Response {
	stats, err := a.engine.StatsOverview(r.Context())
	if err != nil {
		a.logger.Error("stats overview failed", "error", err)
		return middleware.Fail(middleware.CodeInternal, "stats overview failed")
	}
	return middleware.OK(stats)
}
