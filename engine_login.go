package kadmin

import (
	"context"
	"errors"
	"fmt"
)

// Login authenticates the phone+password pair and, on success, mints an
// access token bound to clientIP plus a refresh artifact, and writes the
// server-side refresh record. The record overwrites any previous one, so
// a fresh login supersedes older sessions for the same user.
//
// Unknown phone and wrong password both come back as
// [ErrInvalidCredentials]; callers must not learn which one it was.
func (e *Engine) Login(ctx context.Context, req LoginRequest, clientIP string) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByPhone(ctx, req.Phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		e.logger.Error("password verification failed", "userId", user.ID, "error", err)
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	accessToken, err := e.tokens.CreateAccess(user.ID, clientIP)
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.tokens.CreateRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	if err := e.refreshes.Save(ctx, user.ID, e.config.JWT.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.logger.Info("login succeeded", "userId", user.ID, "clientIp", clientIP)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
