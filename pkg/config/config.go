package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the panel and the render-once mode.
type Config struct {
	UpstreamURL  string        `koanf:"upstream"`       // base URL of the graph-data service
	DemoUpstream bool          `koanf:"demo_upstream"`  // serve canned segment data in-process
	Port         int           `koanf:"port"`           // panel server port
	Segment      string        `koanf:"segment"`        // initial segment ("" = upstream default)
	EdgeLimit    int           `koanf:"limit"`          // upstream edge budget hint
	MinEdgeCount int           `koanf:"min_edge_count"` // upstream noise filter
	FlowBudget   int           `koanf:"flow_budget"`    // sanitizer edge budget K
	View         string        `koanf:"view"`           // "flow" or "spatial"
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	Input        string        `koanf:"input"`  // graph JSON for render mode
	Output       string        `koanf:"output"` // rendered file for render mode
	Watch        bool          `koanf:"watch"`  // re-render on input change
	Verbosity    string        `koanf:"verbosity"`
}

// Load loads configuration in ascending priority:
// defaults < flowscope.toml < FLOWSCOPE_* env vars < flags.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"upstream":       "http://localhost:8600",
		"demo_upstream":  false,
		"port":           8080,
		"segment":        "",
		"limit":          25,
		"min_edge_count": 3,
		"flow_budget":    200,
		"view":           "flow",
		"fetch_timeout":  "15s",
		"input":          "",
		"output":         "",
		"watch":          false,
		"verbosity":      "",
	}
	if err := k.Load(mapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Optional config file; its absence is not an error.
	_ = k.Load(file.Provider("flowscope.toml"), toml.Parser())

	if err := k.Load(env.Provider("FLOWSCOPE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "FLOWSCOPE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.View != "flow" && cfg.View != "spatial" {
		return nil, fmt.Errorf("invalid view %q (want flow or spatial)", cfg.View)
	}
	return &cfg, nil
}

type rawMap map[string]interface{}

func mapProvider(m map[string]interface{}) rawMap { return rawMap(m) }

func (m rawMap) Read() (map[string]interface{}, error) { return m, nil }

func (m rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
