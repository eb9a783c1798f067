package kadmin

import "errors"

var (
	// ErrUserNotFound is returned when no user record matches the phone or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPhoneRegistered is returned when registration targets a phone that
	// already has a user record.
	ErrPhoneRegistered = errors.New("phone already registered")
	// ErrSMSCodeMismatch is returned when the submitted code does not match
	// the stored one, or the stored one is missing or expired.
	ErrSMSCodeMismatch = errors.New("sms code mismatch or expired")
	// ErrRefreshExpired is returned by Refresh when the server-side refresh
	// record is absent. The caller must re-authenticate from scratch.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrEngineNotReady is returned when an Engine method is called before
	// initialization completed.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps credential-store and KV-store faults.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
