package classify

import "testing"

func TestParseAction(t *testing.T) {
	for _, s := range []string{"direct", "proxy", "tunnel", "block"} {
		if _, err := ParseAction(s); err != nil {
			t.Errorf("ParseAction(%q) should succeed: %v", s, err)
		}
	}
	if _, err := ParseAction("reject"); err == nil {
		t.Fatal("unknown action should fail")
	}
}

func TestParseCondition(t *testing.T) {
	for _, s := range []string{"ai_service", "russian_tld", "high_latency", "geo_blocked"} {
		if _, err := ParseCondition(s); err != nil {
			t.Errorf("ParseCondition(%q) should succeed: %v", s, err)
		}
	}
	if _, err := ParseCondition("moon_phase"); err == nil {
		t.Fatal("unknown condition should fail")
	}
}

func TestCompile_Dialects(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		// Suffix
		{"*.example.com", "example.com", true},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "API.EXAMPLE.COM", true},
		{"*.example.com", "notexample.com", false},

		// Exact
		{"example.com", "example.com", true},
		{"example.com", "Example.Com", true},
		{"example.com", "api.example.com", false},

		// Regex
		{`^cdn[0-9]+\.`, "cdn1.example.com", true},
		{`^cdn[0-9]+\.`, "cdn.example.com", false},

		// Malformed regex never matches
		{"[invalid", "anything.com", false},
	}

	for _, tt := range tests {
		m := Compile(tt.pattern)
		if got := m.Match(tt.host); got != tt.want {
			t.Errorf("Compile(%q).Match(%q) = %v, want %v", tt.pattern, tt.host, got, tt.want)
		}
		if m.Source() != tt.pattern {
			t.Errorf("Compile(%q).Source() = %q", tt.pattern, m.Source())
		}
	}
}
