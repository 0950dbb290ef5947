package errors

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/copyleftdev/seqtune/internal/logging"
)

// RecoveryMiddleware returns a middleware that recovers from panics.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Recovered from panic", map[string]interface{}{
						"panic":  rec,
						"stack":  string(debug.Stack()),
						"method": r.Method,
						"path":   r.URL.Path,
					})
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON writes err as a JSON body with the status from HTTPStatus.
func WriteJSON(w http.ResponseWriter, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if kind := KindOf(err); kind != "" {
		body["kind"] = kind
	}
	var e *Error
	if As(err, &e) {
		if e.Dimension != "" {
			body["dimension"] = e.Dimension
		}
		if e.Algorithm != "" {
			body["algorithm"] = e.Algorithm
		}
		if e.Trial >= 0 {
			body["trial"] = e.Trial
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(body)
}
