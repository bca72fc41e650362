// Package web serves the visualization panel: JSON state and control routes,
// rendered SVG views and an SSE stream of state/render events.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/panel"
	"github.com/mhkang/flowscope/pkg/pubsub"
)

//go:embed static/*
var staticFiles embed.FS

// Default container size used until a client reports its own.
const (
	defaultWidth  = 1024
	defaultHeight = 640
)

// Server wires the orchestrator, the renderer and the SSE publisher behind
// gorilla/mux routes.
type Server struct {
	router    *mux.Router
	orch      *panel.Orchestrator
	publisher pubsub.Publisher
	renderer  *renderer
}

// NewServer assembles the panel server. The orchestrator's OnUpdate hook
// should be wired to s.Invalidate so data changes trigger re-renders.
func NewServer(orch *panel.Orchestrator, publisher pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		orch:      orch,
		publisher: publisher,
		renderer:  newRenderer(orch, publisher, defaultWidth, defaultHeight),
	}
	s.setupRoutes()
	return s
}

// Invalidate schedules a re-render at the current container size. Bursts
// coalesce into a single layout pass.
func (s *Server) Invalidate() {
	s.renderer.Invalidate()
}

// Close tears down the renderer and its scheduler.
func (s *Server) Close() {
	s.renderer.Close()
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	s.router.HandleFunc("/api/subscribe/state", s.handleSubscribe).Methods("GET")
	s.router.HandleFunc("/api/state", s.handleState).Methods("GET")
	s.router.HandleFunc("/api/segments", s.handleSegments).Methods("GET")
	s.router.HandleFunc("/api/controls", s.handleControls).Methods("POST")
	s.router.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/api/view/flow.svg", s.handleFlowView).Methods("GET")
	s.router.HandleFunc("/api/view/spatial.svg", s.handleSpatialView).Methods("GET")

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.CurrentSnapshot())
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Segments())
}

// controlsRequest is a partial update; nil fields are left untouched.
type controlsRequest struct {
	Segment      *string `json:"segment"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	Limit        *int    `json:"limit"`
	MinEdgeCount *int    `json:"min_edge_count"`
	View         *string `json:"view"`
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.View != nil {
		view := panel.View(*req.View)
		if view != panel.ViewFlow && view != panel.ViewSpatial {
			http.Error(w, fmt.Sprintf("invalid view %q", *req.View), http.StatusBadRequest)
			return
		}
		s.orch.SetActiveView(view)
	}
	if req.Segment != nil {
		s.orch.SelectSegment(*req.Segment)
	}
	if req.StartDate != nil || req.EndDate != nil {
		state := s.orch.State()
		start, end := state.StartDate, state.EndDate
		if req.StartDate != nil {
			start = *req.StartDate
		}
		if req.EndDate != nil {
			end = *req.EndDate
		}
		s.orch.SetDateRange(start, end)
	}
	if req.Limit != nil {
		s.orch.SetEdgeLimit(*req.Limit)
	}
	if req.MinEdgeCount != nil {
		s.orch.SetMinEdgeCount(*req.MinEdgeCount)
	}

	writeJSON(w, http.StatusOK, s.orch.CurrentSnapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.orch.Refresh()
	writeJSON(w, http.StatusOK, s.orch.CurrentSnapshot())
}

func (s *Server) handleFlowView(w http.ResponseWriter, r *http.Request) {
	s.serveView(w, r, panel.ViewFlow)
}

func (s *Server) handleSpatialView(w http.ResponseWriter, r *http.Request) {
	s.serveView(w, r, panel.ViewSpatial)
}

func (s *Server) serveView(w http.ResponseWriter, r *http.Request, view panel.View) {
	width, height := sizeParams(r)
	svg, err := s.renderer.Render(r.Context(), view, width, height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(svg)
}

// sizeParams reads the ?w=&h= override; zero means "keep the current size".
func sizeParams(r *http.Request) (int, int) {
	parse := func(key string) int {
		v, err := strconv.Atoi(r.URL.Query().Get(key))
		if err != nil || v <= 0 {
			return 0
		}
		return v
	}
	return parse("w"), parse("h")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Initial comment establishes the stream (Safari compatibility).
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	stateSub, err := s.publisher.Subscribe(r.Context(), pubsub.TopicPanelState)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer stateSub.Close()

	renderSub, err := s.publisher.Subscribe(r.Context(), pubsub.TopicRender)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer renderSub.Close()

	for {
		var (
			event pubsub.Event
			ok    bool
		)
		select {
		case event, ok = <-stateSub.Events():
		case event, ok = <-renderSub.Events():
		case <-r.Context().Done():
			return
		}
		if !ok {
			return
		}
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client gone", "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("panel server listening", "addr", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}
