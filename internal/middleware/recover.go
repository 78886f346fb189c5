package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"partidas-service/internal/utils"
)

// Recover turns a handler panic into a JSON 500. http.ErrAbortHandler is
// re-raised so the server can drop the connection.
func Recover(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log := Logger(logger, r)
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				utils.WriteError(w, http.StatusInternalServerError, "internal")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
