package middleware

import (
	"encoding/json"
	"net/http"
)

// Response is the uniform envelope every endpoint returns, success or
// failure. Code carries the application verdict; clients branch on it
// rather than on the HTTP status line.
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// Application response codes. They mirror HTTP statuses except for
// CodeTokenExpired, which is the out-of-band signal that the access
// token aged out but the session may still be refreshable.
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeTooMany      = 429
	CodeInternal     = 500
	CodeTokenExpired = 40001
)

// OK wraps data in a success envelope.
func OK(data any) Response {
	return Response{Code: CodeOK, Data: data, Message: "success"}
}

// Fail builds a failure envelope with a nil data field.
func Fail(code int, message string) Response {
	return Response{Code: code, Data: nil, Message: message}
}

// Write serializes the envelope. The HTTP status mirrors the envelope
// code when the code is itself a valid status; application-only codes
// such as 40001 go out as 200 and the client reads the body.
func (resp Response) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpStatusFor(resp.Code))
	_ = json.NewEncoder(w).Encode(resp)
}

func httpStatusFor(code int) int {
	if code >= 100 && code <= 599 {
		return code
	}
	return http.StatusOK
}
