package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coursehub/internal/models"
)

// Rejection messages for the two quota classes.
const (
	MessageIPExceeded   = "Too many requests per minute from this IP"
	MessageUserExceeded = "Too many requests per minute for this user"
)

// CredentialVerifier reports whether a presented credential is genuine.
type CredentialVerifier func(credential string) bool

// Recorder observes every decision the middleware makes.
type Recorder interface {
	RecordDecision(ctx context.Context, d Decision)
}

type middlewareOptions struct {
	verify   CredentialVerifier
	recorder Recorder
	trusted  TrustedProxies
	now      func() time.Time
}

// Option configures the middleware.
type Option func(*middlewareOptions)

// WithCredentialVerifier requires credentials to pass verify before they
// select the authenticated class. A credential that fails is limited by IP.
func WithCredentialVerifier(verify CredentialVerifier) Option {
	return func(o *middlewareOptions) {
		o.verify = verify
	}
}

// WithRecorder reports decisions to r.
func WithRecorder(r Recorder) Option {
	return func(o *middlewareOptions) {
		o.recorder = r
	}
}

// WithTrustedProxies lets peers in trusted supply the client address through
// X-Forwarded-For or X-Real-IP.
func WithTrustedProxies(trusted TrustedProxies) Option {
	return func(o *middlewareOptions) {
		o.trusted = trusted
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *middlewareOptions) {
		o.now = now
	}
}

// Middleware returns HTTP middleware that admits or rejects each request
// against limiter. Requests carrying an Authorization header are keyed by the
// credential and use the authenticated quota; all others are keyed by client IP.
func Middleware(limiter *Limiter, opts ...Option) func(http.Handler) http.Handler {
	o := middlewareOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, authenticated := Identify(r, o.verify, o.trusted)

			d := limiter.Admit(r.Context(), key, authenticated, o.now())
			if o.recorder != nil {
				o.recorder.RecordDecision(r.Context(), d)
			}

			if d.Outcome != OutcomeStoreError {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Capacity))
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining()))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
			}

			if !d.Allowed() {
				retryAfterSecs := int(d.RetryAfter.Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				message := MessageIPExceeded
				if d.Class == ClassAuthenticated {
					message = MessageUserExceeded
				}
				errorResp := models.NewErrorResponse(message, models.ErrorCodeRateLimited)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Rate limit exceeded",
					"key", redactKey(key),
					"class", string(d.Class),
					"limit", d.Capacity,
					"retry_after", retryAfterSecs,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Identify derives the bucket key and quota class for a request.
func Identify(r *http.Request, verify CredentialVerifier, trusted TrustedProxies) (string, bool) {
	if credential := Credential(r); credential != "" {
		if verify == nil || verify(credential) {
			return "user:" + credential, true
		}
	}
	return "ip:" + trusted.ClientIP(r), false
}

// Credential returns the Authorization header value with an optional Bearer
// scheme removed.
func Credential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// redactKey keeps credentials out of the logs.
func redactKey(key string) string {
	if !strings.HasPrefix(key, "user:") {
		return key
	}
	cred := strings.TrimPrefix(key, "user:")
	if len(cred) <= 8 {
		return "user:***"
	}
	return "user:" + cred[:4] + "***"
}
