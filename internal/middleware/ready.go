package middleware

import (
	"net/http"

	"github.com/hitoshi/teerotation/internal/model"
)

// NewReadinessMiddleware はready()がtrueになるまでリクエストを503で拒否するミドルウェアを返す。
// readyがnilの場合は何もしない。
func NewReadinessMiddleware(ready func() bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ready == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ready() {
				w.Header().Set("Retry-After", "1")
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewNotReadyError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
