package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mhkang/flowscope/pkg/model"
)

func TestHandler_Segments(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/network/customer-flow/segments")
	if err != nil {
		t.Fatalf("GET segments failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	var options []model.SegmentOption
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		t.Fatalf("Failed to decode segments: %v", err)
	}
	if len(options) != 6 {
		t.Errorf("Expected 6 segments, got %d", len(options))
	}
}

func TestHandler_Flow(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	body := `{"segment":"repeat_buyers","limit":25,"min_edge_count":3}`
	resp, err := http.Post(srv.URL+"/network/customer-flow", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST flow failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	var flow model.FlowResponse
	if err := json.NewDecoder(resp.Body).Decode(&flow); err != nil {
		t.Fatalf("Failed to decode flow: %v", err)
	}
	if flow.Segment.ID != "repeat_buyers" {
		t.Errorf("Segment = %q, want repeat_buyers", flow.Segment.ID)
	}
	if flow.Summary.EdgeCount == 0 || len(flow.Links) != flow.Summary.EdgeCount {
		t.Errorf("Inconsistent edge count: summary %d, links %d",
			flow.Summary.EdgeCount, len(flow.Links))
	}
}

func TestHandler_UnknownSegment(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/network/customer-flow", "application/json",
		strings.NewReader(`{"segment":"bogus"}`))
	if err != nil {
		t.Fatalf("POST flow failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
	var errBody map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if !strings.Contains(errBody["detail"], "bogus") {
		t.Errorf("Error detail should name the segment: %q", errBody["detail"])
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/network/customer-flow", "application/json",
		strings.NewReader(`{"segment":`))
	if err != nil {
		t.Fatalf("POST flow failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}
