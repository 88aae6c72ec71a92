package sanitize

import (
	"strings"
	"testing"
)

func TestText_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "script tag", input: `Hello <script>alert('xss')</script> World`, expected: `Hello  World`},
		{name: "inline event handler", input: `<div onclick="alert('xss')">Click me</div>`, expected: `Click me`},
		{name: "iframe injection", input: `Safe text <iframe src="evil.com"></iframe> more text`, expected: `Safe text  more text`},
		{name: "mixed tags", input: `<b>Bold</b> <i>Italic</i>`, expected: `Bold Italic`},
		{name: "plain text unchanged", input: `Board meeting`, expected: `Board meeting`},
		{name: "ampersand kept as typed", input: `R&D committee`, expected: `R&D committee`},
		{name: "surrounding whitespace trimmed", input: "  Visit \n", expected: `Visit`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Text(tt.input)
			if result != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTextSlice_SanitizesAndDropsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "markup in reminders",
			input:    []string{"<b>Call</b> the host", "<script>alert(1)</script>", "Book a car"},
			expected: []string{"Call the host", "Book a car"},
		},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "nil slice", input: nil, expected: nil},
		{name: "blank entries", input: []string{" ", ""}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TextSlice(tt.input)
			if (result == nil) != (tt.expected == nil) {
				t.Fatalf("TextSlice(%v) nil mismatch: got %v", tt.input, result)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("TextSlice(%v) returned %d elements, want %d", tt.input, len(result), len(tt.expected))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("TextSlice(%v)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestText_CommonXSSVectors(t *testing.T) {
	vectors := []string{
		`<script>alert('XSS')</script>`,
		`<img src=x onerror=alert('XSS')>`,
		`<svg onload=alert('XSS')>`,
		`<a href="javascript:alert('XSS')">Click</a>`,
		`<object data="javascript:alert('XSS')">`,
	}
	for _, v := range vectors {
		result := Text(v)
		for _, d := range []string{"alert", "javascript:", "<script", "<"} {
			if strings.Contains(result, d) {
				t.Errorf("Text(%q) still contains %q: %q", v, d, result)
			}
		}
	}
}
