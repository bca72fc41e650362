package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Default port = %d, want 8080", cfg.Port)
	}
	if cfg.EdgeLimit != 25 || cfg.MinEdgeCount != 3 {
		t.Errorf("Default filters = %d/%d, want 25/3", cfg.EdgeLimit, cfg.MinEdgeCount)
	}
	if cfg.FlowBudget != 200 {
		t.Errorf("Default flow budget = %d, want 200", cfg.FlowBudget)
	}
	if cfg.View != "flow" {
		t.Errorf("Default view = %q, want flow", cfg.View)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("Default fetch timeout = %v, want 15s", cfg.FetchTimeout)
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Int("port", 8080, "")
	f.String("view", "flow", "")
	if err := f.Parse([]string{"--port=9000", "--view=spatial"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Flag port not applied: %d", cfg.Port)
	}
	if cfg.View != "spatial" {
		t.Errorf("Flag view not applied: %q", cfg.View)
	}
}

func TestLoad_RejectsUnknownView(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("view", "flow", "")
	if err := f.Parse([]string{"--view=orbit"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := Load(f); err == nil {
		t.Error("Expected invalid view to be rejected")
	}
}
