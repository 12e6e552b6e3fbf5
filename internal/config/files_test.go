package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/classify"
	"github.com/wayfinder-proxy/wayfinder/internal/route"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
rules:
  - pattern: "*.yandex.ru"
    action: tunnel
    priority: 100
    reason: "russian service"
    conditions: [russian_tld]
  - pattern: "*.openai.com"
    action: proxy
    priority: 50
    reason: "ai service"
`)

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	r := rules[0]
	if r.Pattern != "*.yandex.ru" || r.Action != classify.ActionTunnel || r.Priority != 100 {
		t.Fatalf("unexpected rule: %+v", r)
	}
	if len(r.Conditions) != 1 || r.Conditions[0] != classify.CondRussianTLD {
		t.Fatalf("unexpected conditions: %v", r.Conditions)
	}
}

func TestLoadRules_MissingFileIsEmpty(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if rules != nil {
		t.Fatalf("expected empty rule set, got %v", rules)
	}
}

func TestLoadRules_RejectsBadAction(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
rules:
  - pattern: "example.com"
    action: teleport
`)
	if _, err := LoadRules(path); err == nil {
		t.Fatal("unknown action should fail")
	}
}

func TestLoadRules_RejectsBadCondition(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
rules:
  - pattern: "example.com"
    action: proxy
    conditions: [moon_phase]
`)
	if _, err := LoadRules(path); err == nil {
		t.Fatal("unknown condition should fail")
	}
}

func TestLoadRules_RejectsMalformedYAML(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", "rules: [pattern: {{")
	if _, err := LoadRules(path); err == nil {
		t.Fatal("malformed YAML should fail")
	}
}

func TestLoadRoutes(t *testing.T) {
	path := writeTempFile(t, "routes.yaml", `
routes:
  - id: exit-1
    name: Primary exit
    kind: proxy
    endpoints: ["proxy1.example.net:1080"]
    weight: 80
    probe_target: "http://proxy1.example.net/health"
    probe_interval: 45s
    probe_timeout: 3s
  - id: direct-1
    kind: direct
    weight: 50
    probe_target: "https://www.gstatic.com/generate_204"
`)

	defs, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(defs))
	}
	d := defs[0]
	if d.ID != "exit-1" || d.Kind != route.KindProxy || d.Weight != 80 {
		t.Fatalf("unexpected definition: %+v", d)
	}
	if d.ProbeInterval != 45*time.Second || d.ProbeTimeout != 3*time.Second {
		t.Fatalf("probe durations not parsed: %+v", d)
	}
	if len(d.Endpoints) != 1 || d.Endpoints[0] != "proxy1.example.net:1080" {
		t.Fatalf("unexpected endpoints: %v", d.Endpoints)
	}
	// Omitted durations stay zero; the registry applies its defaults.
	if defs[1].ProbeInterval != 0 {
		t.Fatalf("omitted interval should be zero, got %v", defs[1].ProbeInterval)
	}
}

func TestLoadRoutes_MissingFileIsEmpty(t *testing.T) {
	defs, err := LoadRoutes(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected no definitions, got %v", defs)
	}
}
