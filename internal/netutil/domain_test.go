package netutil

import "testing"

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// Standard host:port
		{"www.google.co.uk:443", "google.co.uk"},
		{"example.com:8080", "example.com"},
		{"sub.example.com", "example.com"},
		{"api.openai.com", "openai.com"},

		// IP addresses
		{"192.168.1.1:8080", "192.168.1.1"},
		{"10.0.0.1", "10.0.0.1"},

		// IPv6
		{"[::1]:80", "::1"},
		{"[::1]", "::1"},

		// Localhost and internal names
		{"localhost", "localhost"},
		{"localhost:3000", "localhost"},

		// URLs
		{"https://api.openai.com/v1", "openai.com"},
		{"http://api.example.com:8080/path?q=1", "example.com"},
		{"//example.com/path", "example.com"},

		// Bare domain
		{"example.com", "example.com"},

		// Russian domains
		{"mail.yandex.ru", "yandex.ru"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExtractDomain(tt.input)
			if got != tt.want {
				t.Errorf("ExtractDomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"www.example.com:443", "www.example.com"},
		{"https://www.example.com/path", "www.example.com"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"example.com", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExtractHost(tt.input)
			if got != tt.want {
				t.Errorf("ExtractHost(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTLD(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"mail.yandex.ru", "ru"},
		{"example.com:443", "com"},
		{"EXAMPLE.COM", "com"},
		{"trailing.dot.net.", "net"},
		{"localhost", ""},
		{"192.168.1.1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := TLD(tt.input)
			if got != tt.want {
				t.Errorf("TLD(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
