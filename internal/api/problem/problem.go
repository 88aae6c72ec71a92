package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://agenda.togather.foundation/problems/"

// Problem type URIs used across the API.
const (
	TypeValidation      = typeBase + "validation-error"
	TypeUnauthenticated = typeBase + "unauthenticated"
	TypeForbidden       = typeBase + "forbidden"
	TypeNotFound        = typeBase + "not-found"
	TypeConflict        = typeBase + "conflict"
	TypeMethod          = typeBase + "method-not-allowed"
	TypeTooLarge        = typeBase + "payload-too-large"
	TypeRateLimited     = typeBase + "rate-limited"
	TypeServer          = typeBase + "server-error"
)

// ProblemDetails is an RFC 7807 body. Error repeats Title for clients that
// only read an "error" key.
type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Error    string         `json:"error"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write logs err and sends a problem response. The raw error text reaches the
// client only in development and test, and never for 5xx.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if status >= http.StatusInternalServerError {
		problem.Detail = ""
		problem.Errors = nil
	}
	if problem.Detail == "" && err != nil {
		if status < http.StatusInternalServerError && (env == "development" || env == "test") {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, problem)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	problem.Error = problem.Title
	payload, err := json.Marshal(problem)
	if err != nil {
		text := http.StatusText(http.StatusInternalServerError)
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":%q,\"error\":%q,\"status\":500}", text, text)
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
