package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mhkang/flowscope/pkg/config"
	"github.com/mhkang/flowscope/pkg/flowclient"
	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/panel"
	"github.com/mhkang/flowscope/pkg/pubsub"
	"github.com/mhkang/flowscope/pkg/upstream"
	"github.com/mhkang/flowscope/pkg/web"
)

const usage = `flowscope - customer behavior flow visualizer

Usage:
  flowscope serve  [flags]   start the visualization panel server
  flowscope render [flags]   render a local graph JSON to SVG/PNG

Flags:
`

func main() {
	flags := pflag.NewFlagSet("flowscope", pflag.ExitOnError)
	flags.String("upstream", "http://localhost:8600", "Base URL of the flow data service")
	flags.Bool("demo_upstream", false, "Serve canned segment data in-process")
	flags.Int("port", 8080, "Panel server port")
	flags.String("segment", "", "Initial segment (empty = upstream default)")
	flags.Int("limit", 25, "Upstream edge limit")
	flags.Int("min_edge_count", 3, "Drop edges below this transition count")
	flags.Int("flow_budget", 200, "Edge budget for the acyclic flow view")
	flags.String("view", "flow", "Initial view: flow or spatial")
	flags.Duration("fetch_timeout", 0, "Upstream fetch timeout (0 = config default)")
	flags.String("input", "", "Graph JSON file (render mode)")
	flags.String("output", "", "Output file, .svg or .png (render mode)")
	flags.Bool("watch", false, "Re-render when the input file changes")
	flags.StringP("verbosity", "v", "", "Log level: debug, info, warn, error")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyVerbosity(cfg.Verbosity)

	mode := "serve"
	if args := flags.Args(); len(args) > 0 {
		mode = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "serve":
		err = runServe(ctx, cfg)
	case "render":
		err = runRender(ctx, cfg)
	default:
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func applyVerbosity(verbosity string) {
	switch verbosity {
	case "debug":
		logging.SetLevel(slog.LevelDebug)
	case "warn":
		logging.SetLevel(slog.LevelWarn)
	case "error":
		logging.SetLevel(slog.LevelError)
	case "", "info":
	default:
		logging.Warn("unknown verbosity, using info", "verbosity", verbosity)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	upstreamURL := cfg.UpstreamURL
	if cfg.DemoUpstream {
		url, err := startDemoUpstream(ctx)
		if err != nil {
			return err
		}
		upstreamURL = url
	}

	publisher := pubsub.NewPanelPublisher()
	defer publisher.Close()

	client := flowclient.New(upstreamURL, cfg.FetchTimeout)

	var server *web.Server
	orch := panel.New(client, panel.Options{
		FlowBudget:   cfg.FlowBudget,
		FetchTimeout: cfg.FetchTimeout,
		EdgeLimit:    cfg.EdgeLimit,
		MinEdgeCount: cfg.MinEdgeCount,
		Segment:      cfg.Segment,
		ActiveView:   panel.View(cfg.View),
		Publisher:    publisher,
		OnUpdate: func() {
			if server != nil {
				server.Invalidate()
			}
		},
	})
	server = web.NewServer(orch, publisher)
	defer server.Close()

	if err := orch.Start(ctx); err != nil {
		// Serve anyway; the panel surfaces the error and Refresh can recover.
		logging.Warn("initial data load failed", "error", err)
	}

	return server.Start(ctx, cfg.Port)
}

// startDemoUpstream serves the canned segment data on an ephemeral local port
// and returns its base URL.
func startDemoUpstream(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to start demo upstream: %w", err)
	}

	srv := &http.Server{Handler: upstream.Handler()}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("demo upstream failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	url := "http://" + listener.Addr().String()
	logging.Info("demo upstream listening", "url", url)
	return url, nil
}
