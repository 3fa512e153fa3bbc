package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gje4/vercel-bigcommerce/pkg/logger"
)

// IdempotencyKeyHeader lets clients make pipeline submissions safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestLogger returns middleware that builds a request-scoped logger
// enriched with correlation_id, trace_id and span_id (plus idempotency_key
// when the client sent one) and stores it in context via logger.NewContext.
// Handlers retrieve it with logger.FromContext(ctx).
//
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			enriched := logger.WithContext(ctx, base)
			if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
				enriched = enriched.With(slog.String("idempotency_key", key))
			}

			ctx = logger.NewContext(ctx, enriched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
