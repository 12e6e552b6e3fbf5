package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `json:"d"`
	}

	out, err := json.Marshal(wrapper{D: Duration(90 * time.Second)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"d":"1m30s"}` {
		t.Fatalf("unexpected JSON %s", out)
	}

	var in wrapper
	if err := json.Unmarshal([]byte(`{"d":"5m"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.D.Std() != 5*time.Minute {
		t.Fatalf("expected 5m, got %v", in.D.Std())
	}
}

func TestDuration_JSONRejectsNumbers(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`300`), &d); err == nil {
		t.Fatal("bare numbers should be rejected")
	}
	if err := json.Unmarshal([]byte(`"not-a-duration"`), &d); err == nil {
		t.Fatal("unparseable strings should be rejected")
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `yaml:"d"`
	}

	out, err := yaml.Marshal(wrapper{D: Duration(30 * time.Second)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var in wrapper
	if err := yaml.Unmarshal(out, &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.D.Std() != 30*time.Second {
		t.Fatalf("expected 30s, got %v", in.D.Std())
	}
}
