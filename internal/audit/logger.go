package audit

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one audit record. It is written as a nested "audit" object so log
// pipelines can route on the key.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Logger records security-relevant account and event changes.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger() *Logger {
	return NewLoggerWithZerolog(zerolog.New(os.Stderr).With().Timestamp().Logger())
}

func NewLoggerWithZerolog(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIPFromContext(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = "anonymous"
	}
	l.logger.Info().Interface("audit", entry).Msg(entry.Action)
}

func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
		Details:      details,
	})
}

func (l *Logger) LogFailure(ctx context.Context, action, actor string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:  action,
		Actor:   actor,
		Status:  StatusFailure,
		Details: details,
	})
}

type contextKey string

const clientIPKey contextKey = "auditClientIP"

// WithClientIP stores the request's client address for entries written further
// down the call chain.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// ClientIP picks the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
