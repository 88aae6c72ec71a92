package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name      string
		maxBytes  int64
		bodySize  int
		wantLimit bool
	}{
		{name: "small request accepted", maxBytes: 1024, bodySize: 512},
		{name: "exact limit accepted", maxBytes: 1024, bodySize: 1024},
		{name: "oversized request rejected", maxBytes: 1024, bodySize: 2048, wantLimit: true},
		{name: "zero falls back to default", maxBytes: 0, bodySize: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := RequestSize(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
				if readErr != nil {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			body := strings.NewReader(strings.Repeat("x", tt.bodySize))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", body)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.wantLimit {
				var maxErr *http.MaxBytesError
				assert.True(t, errors.As(readErr, &maxErr))
				assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
				return
			}
			assert.NoError(t, readErr)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
