package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const activatedMemoriesKey = contextKey("activated_memories")

// Activator is the slice of the activation service the hook needs.
type Activator interface {
	NewContext(message, sessionID string) *domain.ActivationContext
	Activate(ctx context.Context, actx *domain.ActivationContext) *domain.ActivationResult
}

// ActivationConfig maps request paths to the JSON field carrying the text
// worth activating on, and bounds the time the hook may spend.
type ActivationConfig struct {
	// Fields maps method+path (e.g. "POST /v1/memories") to a top-level
	// JSON field name in the request body.
	Fields  map[string]string
	Timeout time.Duration
}

// ActivatedFromContext returns the activation result attached by the hook,
// or nil when the hook did not run.
func ActivatedFromContext(ctx context.Context) *domain.ActivationResult {
	result, _ := ctx.Value(activatedMemoriesKey).(*domain.ActivationResult)
	return result
}

// Activation runs memory activation against the request's message text
// before the handler sees it. The request body is restored byte-for-byte;
// the hook observes, it never rewrites. Activation failures and timeouts
// leave the request untouched.
func Activation(svc Activator, cfg ActivationConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			field, ok := cfg.Fields[r.Method+" "+r.URL.Path]
			if !ok || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var payload map[string]json.RawMessage
			if err := json.Unmarshal(body, &payload); err != nil {
				next.ServeHTTP(w, r)
				return
			}
			var message string
			if err := json.Unmarshal(payload[field], &message); err != nil || message == "" {
				next.ServeHTTP(w, r)
				return
			}

			actx := svc.NewContext(message, RequestIDFromContext(r.Context()))
			tctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
			result := svc.Activate(tctx, actx)
			cancel()

			ctx := context.WithValue(r.Context(), activatedMemoriesKey, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
