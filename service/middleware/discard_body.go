package middleware

import (
	"io"
	"net/http"

	"github.com/digineo/purged/requestid"
	"go.uber.org/zap"
)

// MaxDiscard limits how much of a request body DiscardBody reads.
// Larger bodies are left unread, and the connection won't be reused.
const MaxDiscard = 1 << 20

// DiscardBody drains and closes the request body before calling next.
// Purge requests carry no payload, anything sent is ignored.
func DiscardBody(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				n, err := io.Copy(io.Discard, io.LimitReader(r.Body, MaxDiscard))
				if err != nil {
					log.Warn("failed to discard request body",
						requestid.Field(r.Context()),
						zap.Int64("read", n),
						zap.Error(err))
				}
				_ = r.Body.Close()
				r.Body = http.NoBody
			}
			next.ServeHTTP(w, r)
		})
	}
}
