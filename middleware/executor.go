package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Guard inspects a request before the handler runs. It returns the
// request to pass downstream (usually r, possibly with an enriched
// context) and a terminal verdict. A non-nil verdict short-circuits the
// chain: it is written out and nothing after this guard executes.
type Guard func(r *http.Request) (*http.Request, *Response)

// Handler is a terminal endpoint that produces the response envelope.
type Handler func(r *http.Request) Response

type requestIDContextKey struct{}

// RequestIDFromContext returns the per-request id assigned by [Chain].
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// Chain runs guards in declaration order and then the handler. The first
// guard verdict terminates the request; guards after it never observe
// the request at all. Panics from guards or the handler are logged with
// the request id and converted to a 500 envelope.
func Chain(logger *slog.Logger, handler Handler, guards ...Guard) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, requestID))

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("request handler panicked",
					"requestId", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				Fail(CodeInternal, "internal server error").Write(w)
			}
		}()

		for _, guard := range guards {
			next, verdict := guard(r)
			if verdict != nil {
				verdict.Write(w)
				return
			}
			if next != nil {
				r = next
			}
		}

		handler(r).Write(w)
	})
}
