package middleware

import (
	"net/http"
	"strings"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/rs/zerolog"
)

var (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization, Accept, " + auth.TokenHeader + ", " + requestIDHeader
	corsExposeHeaders = requestIDHeader + ", Retry-After"
)

// CORS answers browser clients. Development without a configured list
// reflects any origin; otherwise the Origin must match AllowedOrigins
// exactly (case-insensitive). Preflight OPTIONS requests always get an empty
// 200 so the session header can be negotiated.
func CORS(cfg config.CORSConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				if cfg.AllowAllOrigins || isOriginAllowed(origin, cfg.AllowedOrigins) {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
					h.Set("Access-Control-Max-Age", "86400")
				} else {
					logger.Warn().
						Str("origin", origin).
						Str("path", r.URL.Path).
						Str("method", r.Method).
						Msg("CORS request rejected: origin not in whitelist")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	for _, allowed := range allowedOrigins {
		if strings.ToLower(strings.TrimSpace(allowed)) == origin {
			return true
		}
	}
	return false
}
