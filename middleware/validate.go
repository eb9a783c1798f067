package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
)

const maxBodyBytes = 1 << 20

var (
	phonePattern   = regexp.MustCompile(`^1[3-9]\d{9}$`)
	smsCodePattern = regexp.MustCompile(`^\d{6}$`)
)

// readBody consumes and restores the request body so the handler can
// decode it again after the validation guards.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func validPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func validPassword(pass string) bool {
	return len(pass) >= 6 && len(pass) <= 50
}

func decodeGuardBody(r *http.Request, dst any) *Response {
	body, err := readBody(r)
	if err != nil {
		verdict := Fail(CodeBadRequest, "unreadable request body")
		return &verdict
	}
	if err := json.Unmarshal(body, dst); err != nil {
		verdict := Fail(CodeBadRequest, "malformed request body")
		return &verdict
	}
	return nil
}

// LoginValidateGuard checks the login payload's field formats.
func LoginValidateGuard() Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone    string `json:"phone"`
			Password string `json:"password"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}
		if !validPhone(payload.Phone) {
			verdict := Fail(CodeBadRequest, "invalid phone number")
			return r, &verdict
		}
		if !validPassword(payload.Password) {
			verdict := Fail(CodeBadRequest, "password must be 6 to 50 characters")
			return r, &verdict
		}
		return r, nil
	}
}

// RegisterValidateGuard checks the registration payload's field formats,
// including the password confirmation match.
func RegisterValidateGuard() Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone           string `json:"phone"`
			Password        string `json:"password"`
			ConfirmPassword string `json:"confirmPassword"`
			SMSCode         string `json:"smsCode"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}
		if !validPhone(payload.Phone) {
			verdict := Fail(CodeBadRequest, "invalid phone number")
			return r, &verdict
		}
		if !validPassword(payload.Password) {
			verdict := Fail(CodeBadRequest, "password must be 6 to 50 characters")
			return r, &verdict
		}
		if payload.ConfirmPassword != payload.Password {
			verdict := Fail(CodeBadRequest, "passwords do not match")
			return r, &verdict
		}
		if !smsCodePattern.MatchString(payload.SMSCode) {
			verdict := Fail(CodeBadRequest, "invalid verification code")
			return r, &verdict
		}
		return r, nil
	}
}

// SMSValidateGuard checks the send-code payload's phone format.
func SMSValidateGuard() Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		var payload struct {
			Phone string `json:"phone"`
		}
		if verdict := decodeGuardBody(r, &payload); verdict != nil {
			return r, verdict
		}
		if !validPhone(payload.Phone) {
			verdict := Fail(CodeBadRequest, "invalid phone number")
			return r, &verdict
		}
		return r, nil
	}
}
