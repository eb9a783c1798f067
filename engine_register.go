package kadmin

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadmin/kadmin/internal/stores"
)

// Register creates a user record for a verified phone. The submitted SMS
// code is consumed atomically with the check: a successful registration
// burns the code, a mismatch leaves it usable for a retry. Uniqueness is
// re-checked here even though the guard chain already did, because the
// create must not race a concurrent registration for the same phone.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	if e == nil || e.users == nil {
		return 0, ErrEngineNotReady
	}

	if err := e.smsCodes.Consume(ctx, req.Phone, req.SMSCode); err != nil {
		e.metricInc(MetricRegisterFailure)
		if errors.Is(err, stores.ErrSMSCodeNotFound) || errors.Is(err, stores.ErrSMSCodeMismatch) {
			return 0, ErrSMSCodeMismatch
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err := e.users.GetUserByPhone(ctx, req.Phone)
	if err == nil {
		e.metricInc(MetricRegisterFailure)
		return 0, ErrPhoneRegistered
	}
	if !errors.Is(err, ErrUserNotFound) {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return 0, err
	}

	id, err := e.users.CreateUser(ctx, CreateUserInput{
		Phone:              req.Phone,
		PasswordHash:       hash,
		PermissionGrouping: DefaultPermissionGrouping,
	})
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		if errors.Is(err, ErrPhoneRegistered) {
			return 0, ErrPhoneRegistered
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.logger.Info("user registered", "userId", id)
	return id, nil
}

// PhoneExists reports whether a user record exists for the phone. The
// uniqueness guard calls this before SMS sends and registrations.
func (e *Engine) PhoneExists(ctx context.Context, phone string) (bool, error) {
	if e == nil || e.users == nil {
		return false, ErrEngineNotReady
	}
	_, err := e.users.GetUserByPhone(ctx, phone)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
