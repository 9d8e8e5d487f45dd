// Package requestid propagates a request identifier through the context and
// echoes it on the response.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"agora/pkg/requestcontext"
)

// Header carries the request identifier in both directions.
const Header = "X-Request-ID"

const maxLen = 128

// Middleware reuses a caller-supplied id when it is short and non-empty,
// otherwise generates one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(Header))
		if reqID == "" || len(reqID) > maxLen {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
