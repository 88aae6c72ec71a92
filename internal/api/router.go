package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/Togather-Foundation/agenda/internal/api/handlers"
	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/Togather-Foundation/agenda/internal/domain/events"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the services the router mounts. Health may be nil in tests.
type Deps struct {
	Config  config.Config
	Logger  zerolog.Logger
	Users   *users.Service
	Events  *events.Service
	Health  *handlers.HealthChecker
	Limiter *middleware.RateLimiter
	Build   BuildInfo
}

// NewRouter builds the HTTP surface: the auth endpoint, the session-protected
// events and users collections, and the operational endpoints.
func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment
	requireSession := middleware.RequireSession(deps.Users, env)

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Limiter, env)
	eventsHandler := handlers.NewEventsHandler(deps.Events, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/auth", http.HandlerFunc(authHandler.Dispatch))
	mux.Handle("/api/v1/events", requireSession(eventsHandler))
	mux.Handle("/api/v1/users", requireSession(usersHandler))

	if deps.Health != nil {
		mux.Handle("/healthz", readOnly(deps.Health.Healthz(), env))
		mux.Handle("/readyz", readOnly(deps.Health.Readyz(), env))
	}
	mux.Handle("/metrics", readOnly(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}), env))
	mux.Handle("/version", readOnly(VersionHandler(deps.Build), env))

	var handler http.Handler = mux
	handler = middleware.RequestSize(deps.Config.Server.MaxBodyBytes)(handler)
	handler = middleware.RateLimit(deps.Limiter, env)(handler)
	handler = middleware.CORS(deps.Config.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	return handler
}

func readOnly(h http.Handler, env string) http.Handler {
	return methodMux(map[string]http.Handler{
		http.MethodGet:  h,
		http.MethodHead: h,
	}, env)
}

func methodMux(handlers map[string]http.Handler, env string) http.Handler {
	allow := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeMethod, "Method not allowed", nil, env)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
