package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/kioku/internal/model"
)

// KeyFunc extracts the subject of a rate-limit key from a request. An empty
// result exempts the request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID for the error envelope. Injected so
// this package does not depend on the server.
type RequestIDFunc func(r *http.Request) string

// maxRetryAfter caps the advertised wait; a zero-rate quota would otherwise
// report an absurd number of seconds.
const maxRetryAfter = time.Hour

// Middleware limits requests under group. Requests whose key is empty pass
// through. Limiter errors fail open.
func Middleware(limiter Limiter, group string, keyFunc KeyFunc, reqIDFunc RequestIDFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := ""
			if limiter != nil {
				subject = keyFunc(r)
			}
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Reserve(r.Context(), group+":"+subject)
			if err != nil {
				if logger != nil {
					logger.Warn("ratelimit: limiter error, allowing request", "group", group, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			var requestID string
			if reqIDFunc != nil {
				requestID = reqIDFunc(r)
			}
			writeRateLimitError(w, requestID, d.RetryAfter)
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds, at least 1.
func retryAfterSeconds(wait time.Duration) int {
	wait = min(wait, maxRetryAfter)
	return max(1, int(math.Ceil(wait.Seconds())))
}

func writeRateLimitError(w http.ResponseWriter, requestID string, wait time.Duration) {
	secs := retryAfterSeconds(wait)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many requests",
			Details: map[string]int{"retry_after_seconds": secs},
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}

// IPKeyFunc keys on RemoteAddr. X-Forwarded-For is ignored because clients
// can forge it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
