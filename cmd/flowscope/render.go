package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhkang/flowscope/pkg/config"
	"github.com/mhkang/flowscope/pkg/layout/flow"
	"github.com/mhkang/flowscope/pkg/layout/spatial"
	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/model"
	"github.com/mhkang/flowscope/pkg/render"
	"github.com/mhkang/flowscope/pkg/sanitize"
	"github.com/mhkang/flowscope/pkg/schedule"
	"github.com/mhkang/flowscope/pkg/watcher"
)

// Render-once canvas size; the offline path has no container to measure.
const (
	renderWidth  = 1024
	renderHeight = 640
)

// runRender renders a local TransitionGraph JSON file without the panel
// server. With --watch it re-renders on every debounced file change.
func runRender(ctx context.Context, cfg *config.Config) error {
	if cfg.Input == "" || cfg.Output == "" {
		return fmt.Errorf("render mode requires --input and --output")
	}

	renderOnce := func(size schedule.Size) {
		if err := renderFile(cfg, size.Width, size.Height); err != nil {
			logging.Error("render failed", "input", cfg.Input, "error", err)
			return
		}
		logging.Info("rendered", "input", cfg.Input, "output", cfg.Output)
	}

	if !cfg.Watch {
		if err := renderFile(cfg, renderWidth, renderHeight); err != nil {
			return err
		}
		logging.Info("rendered", "input", cfg.Input, "output", cfg.Output)
		return nil
	}

	sched := schedule.New(schedule.DefaultTick, renderOnce)
	defer sched.Close()
	sched.Request(renderWidth, renderHeight)

	fw, err := watcher.NewFileWatcher(cfg.Input)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 500*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-debouncer.Output():
			if !ok {
				return nil
			}
			sched.Request(renderWidth, renderHeight)
		}
	}
}

func renderFile(cfg *config.Config, width, height int) error {
	data, err := os.ReadFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	var graph model.TransitionGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return fmt.Errorf("failed to parse graph JSON: %w", err)
	}

	out, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	asPNG := strings.EqualFold(filepath.Ext(cfg.Output), ".png")

	if cfg.View == "spatial" {
		sim := spatial.New(spatial.Config{})
		defer sim.Close()
		sim.SetGraph(graph)
		sim.Settle()
		projection := sim.Project(width, height)
		if asPNG {
			return render.SpatialPNG(out, projection, width, height)
		}
		return render.SpatialSVG(out, projection, width, height)
	}

	sanitized := sanitize.Sanitize(graph.Nodes, graph.Links, cfg.FlowBudget)
	layout, err := flow.Compute(sanitized, width, height)
	if err != nil {
		return fmt.Errorf("failed to compute layout: %w", err)
	}
	if asPNG {
		return render.FlowPNG(out, layout)
	}
	return render.FlowSVG(out, layout)
}
