package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	respond "github.com/openmem/openmem-server/internal/api/respond"
)

// New returns a middleware that intercepts panics from downstream handlers,
// logs request details and the stack, and answers with a JSON 500.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("url", r.URL.String()).
						Str("remote", r.RemoteAddr).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					respond.WriteInternalError(w, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
