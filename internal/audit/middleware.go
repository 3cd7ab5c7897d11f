package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/pkg/kit"
)

// HeaderRequestID carries the request id on requests and responses.
const HeaderRequestID = "X-Request-ID"

// UserFunc resolves the caller's user id for an HTTP request, or "".
type UserFunc func(r *http.Request) string

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HTTP assigns every request an id, echoes it in X-Request-ID and records
// one audit entry per request once the handler returns.
func HTTP(logger Logger, user UserFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(WithRequestID(r.Context(), id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := &Entry{
			Action:     r.Method + " " + r.URL.Path,
			Transport:  "http",
			RequestID:  id,
			Result:     strconv.Itoa(rec.status),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if user != nil {
			entry.UserID = user(r)
		}
		if rec.status >= http.StatusInternalServerError {
			entry.Status = "error"
			entry.Error = http.StatusText(rec.status)
		}
		logger.LogAsync(entry)
	})
}

// Middleware wraps an MCP tool endpoint: measures duration, captures
// params/result/error and logs asynchronously.
func Middleware(logger Logger, actionName string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)

			entry := &Entry{
				Action:     actionName,
				Transport:  "mcp",
				RequestID:  uuid.NewString(),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			if err != nil {
				entry.Error = err.Error()
				entry.Status = "error"
			} else {
				entry.Status = "success"
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = string(result)
				}
			}

			logger.LogAsync(entry)
			return resp, err
		}
	}
}
