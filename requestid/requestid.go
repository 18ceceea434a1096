// Package requestid tags each HTTP request with a random UUID, which
// is echoed in the X-Request-Id response header and attached to log
// entries.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const HeaderKey = "X-Request-Id"

type contextKey string

const ContextKey = contextKey("request-id")

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.Must(uuid.NewRandom()).String()
		r = r.WithContext(context.WithValue(r.Context(), ContextKey, id))
		w.Header().Set(HeaderKey, id)

		next.ServeHTTP(w, r)
	})
}

// Get extracts the request ID from ctx.
func Get(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKey).(string)
	return id, ok && id != ""
}

// Field returns a log field carrying the request ID, or zap.Skip()
// if ctx has none.
func Field(ctx context.Context) zap.Field {
	if id, ok := Get(ctx); ok {
		return zap.String("request-id", id)
	}
	return zap.Skip()
}
