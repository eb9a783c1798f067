package kadmin

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadmin/kadmin/internal/stores"
	"github.com/kadmin/kadmin/jwt"
)

// Refresh exchanges an expired access token for a fresh one. The token's
// signature, issuer, and audience must still verify; only the expiry
// check is waived so the userId claim stays readable. The exchange then
// hinges on the server-side refresh record: present means mint a new
// 60-second token, absent means [ErrRefreshExpired] and a forced
// re-login. The record itself is left untouched, so its 7-day clock
// never extends.
func (e *Engine) Refresh(ctx context.Context, accessToken, clientIP string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccessAllowExpired(accessToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	if _, err := e.refreshes.Get(ctx, claims.UserID); err != nil {
		if errors.Is(err, stores.ErrRefreshRecordNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.logger.Info("refresh rejected, no live record", "userId", claims.UserID)
			return "", ErrRefreshExpired
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	newToken, err := e.tokens.CreateAccess(claims.UserID, clientIP)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricRefreshSuccess)
	return newToken, nil
}

// InvalidateSession deletes the user's refresh record. Every subsequent
// refresh attempt fails with [ErrRefreshExpired] within one access-token
// lifetime, which is how both logout and forced invalidation work.
func (e *Engine) InvalidateSession(ctx context.Context, userID int64) error {
	if e == nil || e.refreshes == nil {
		return ErrEngineNotReady
	}
	if err := e.refreshes.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)
	e.logger.Info("session invalidated", "userId", userID)
	return nil
}

// ParseAccess fully validates an access token, mapping the verdict onto
// the engine's two-tier scheme: [jwt.ErrTokenExpired] is recoverable via
// Refresh, [jwt.ErrTokenInvalid] is not.
func (e *Engine) ParseAccess(token string) (*jwt.AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	return e.tokens.ParseAccess(token)
}
