package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthCheck is the /healthz body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthDB is the slice of a pgx pool the checks use. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type HealthDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type HealthChecker struct {
	db        HealthDB
	version   string
	gitCommit string
}

func NewHealthChecker(db HealthDB, version, gitCommit string) *HealthChecker {
	return &HealthChecker{db: db, version: version, gitCommit: gitCommit}
}

const checkTimeout = 2 * time.Second

// Healthz reports database and migration state. Any failed check makes the
// response a 503.
func (h *HealthChecker) Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
		}

		overall := "healthy"
		statusCode := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				overall = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// Readyz answers 200 once the database accepts queries.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check := h.checkDatabase(r.Context()); check.Status != "pass" {
			respondHealth(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h == nil || h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var one int
	err := h.db.QueryRow(dbCtx, "SELECT 1").Scan(&one)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database query failed"
		switch {
		case errors.Is(err, context.DeadlineExceeded) || dbCtx.Err() == context.DeadlineExceeded:
			message = "Database query timed out"
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency}
	}

	result := CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
	if pool, ok := h.db.(*pgxpool.Pool); ok {
		stats := pool.Stat()
		result.Details = map[string]any{
			"max_connections":      stats.MaxConns(),
			"total_connections":    stats.TotalConns(),
			"idle_connections":     stats.IdleConns(),
			"acquired_connections": stats.AcquiredConns(),
		}
	}
	return result
}

func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h == nil || h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}

	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		version int64
		dirty   bool
	)
	err := h.db.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Failed to query migration version"
		if strings.Contains(err.Error(), "does not exist") || errors.Is(err, pgx.ErrNoRows) {
			message = "Migrations not applied"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency}
	}

	if dirty {
		return CheckResult{
			Status:    "fail",
			Message:   "Database in dirty migration state",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	}
	return CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
