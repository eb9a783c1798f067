package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kadmin/kadmin/internal/rate"
)

// HeaderDevMode carries the development-mode marker. When the turnstile
// guard is configured to allow it, `k-mode: dev` skips the human check.
const HeaderDevMode = "k-mode"

// HeaderTurnstileToken carries the Cloudflare challenge response.
const HeaderTurnstileToken = "cf-turnstile-response"

// EnvGuard fails closed with a 500 envelope while the deployment is
// missing required configuration. check runs per request so a fixed
// config needs no restart bookkeeping.
func EnvGuard(check func() error) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		if err := check(); err != nil {
			verdict := Fail(CodeInternal, "service configuration unavailable")
			return r, &verdict
		}
		return r, nil
	}
}

// TurnstileVerifier checks a Cloudflare Turnstile challenge response.
type TurnstileVerifier struct {
	SecretKey      string
	VerifyURL      string
	AllowDevBypass bool
	Client         *http.Client
}

type turnstileOutcome struct {
	Success bool `json:"success"`
}

// Verify posts the token and caller ip to the siteverify endpoint.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	form := url.Values{}
	form.Set("secret", v.SecretKey)
	form.Set("response", token)
	form.Set("remoteip", remoteIP)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var outcome turnstileOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return err
	}
	if !outcome.Success {
		return errors.New("turnstile verification rejected")
	}
	return nil
}

// TurnstileGuard enforces the human check on credential endpoints. The
// token travels in the cf-turnstile-response header; a missing token is
// 403, a failed or unreachable verification is 500. The dev bypass works
// only when the verifier was built with AllowDevBypass.
func TurnstileGuard(verifier *TurnstileVerifier) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		if verifier.AllowDevBypass && r.Header.Get(HeaderDevMode) == "dev" {
			return r, nil
		}

		token := r.Header.Get(HeaderTurnstileToken)
		if token == "" {
			verdict := Fail(CodeForbidden, "turnstile token is required")
			return r, &verdict
		}

		if err := verifier.Verify(r.Context(), token, ClientIP(r)); err != nil {
			verdict := Fail(CodeInternal, "turnstile verification failed")
			return r, &verdict
		}
		return r, nil
	}
}

// SMSCodeChecker validates a submitted verification code without
// consuming it.
type SMSCodeChecker interface {
	VerifySMSCode(ctx context.Context, phone, code string) error
}

// SMSCodeGuard rejects registrations whose code does not match the one
// on file. The code survives the check; only the registration handler
// consumes it.
func SMSCodeGuard(checker SMSCodeChecker) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone   string `json:"phone"`
			SMSCode string `json:"smsCode"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}
		if err := checker.VerifySMSCode(r.Context(), payload.Phone, payload.SMSCode); err != nil {
			verdict := Fail(CodeBadRequest, "verification code mismatch or expired")
			return r, &verdict
		}
		return r, nil
	}
}

// PhoneChecker reports whether a phone already has an account.
type PhoneChecker interface {
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

// PhoneUniquenessGuard stops SMS sends and registrations for phones that
// already hold an account, so codes are never burned on a phone that
// cannot register.
func PhoneUniquenessGuard(checker PhoneChecker) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone string `json:"phone"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}
		exists, err := checker.PhoneExists(r.Context(), payload.Phone)
		if err != nil {
			verdict := Fail(CodeInternal, "account lookup failed")
			return r, &verdict
		}
		if exists {
			verdict := Fail(CodeBadRequest, "phone number already registered")
			return r, &verdict
		}
		return r, nil
	}
}

// RateChecker runs the SMS throttling checks without recording a send.
type RateChecker interface {
	CheckSMSRate(ctx context.Context, ip, phone string) error
}

// RateLimitGuard rejects throttled SMS sends with a 429 envelope. The
// minimum-interval rejection carries the retry countdown in its message;
// store faults surface as 500, never as silent passes.
func RateLimitGuard(checker RateChecker) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone string `json:"phone"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}

		err := checker.CheckSMSRate(r.Context(), ClientIP(r), payload.Phone)
		if err == nil {
			return r, nil
		}

		var tooFrequent *rate.TooFrequentError
		switch {
		case errors.As(err, &tooFrequent):
			verdict := Fail(CodeTooMany, fmt.Sprintf("sending too frequently, retry in %d seconds", tooFrequent.RemainingSeconds))
			return r, &verdict
		case errors.Is(err, rate.ErrIPLimitExceeded):
			verdict := Fail(CodeTooMany, "daily send limit reached for this network")
			return r, &verdict
		case errors.Is(err, rate.ErrPhoneLimitExceeded):
			verdict := Fail(CodeTooMany, "daily send limit reached for this phone")
			return r, &verdict
		default:
			verdict := Fail(CodeInternal, "rate limiter unavailable")
			return r, &verdict
		}
	}
}
