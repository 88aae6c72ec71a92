package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "events", input: "/api/v1/events", expected: "/api/v1/events"},
		{name: "trailing slash", input: "/api/v1/users/", expected: "/api/v1/users"},
		{name: "health", input: "/healthz", expected: "/healthz"},
		{name: "unknown", input: "/wp-login.php", expected: "other"},
		{name: "nested unknown", input: "/api/v1/events/42", expected: "other"},
		{name: "root", input: "/", expected: "other"},
		{name: "empty", input: "", expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.input)
			if got != tt.expected {
				t.Fatalf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
