package middleware

import (
	"net"
	"net/http"

	"github.com/bluewing/auth-core/services/audit"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestContext copies the chi request id into the context and attaches
// the request metadata audit entries are stamped with. It must run after
// chi's RequestID and RealIP middleware.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimiddleware.GetReqID(ctx)
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		ctx = WithRequestID(ctx, requestID)
		ctx = audit.WithMeta(ctx, audit.RequestMeta{
			RequestID: requestID,
			IPAddress: ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from X-Forwarded-For / X-Real-IP
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
