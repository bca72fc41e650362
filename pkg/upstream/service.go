// Package upstream is a small built-in flow data service. It serves canned
// per-segment transition edges so the panel can run without a warehouse
// connection, and it mirrors the wire contract of the production service.
package upstream

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mhkang/flowscope/pkg/model"
)

// DefaultLookbackDays is the window applied when the request carries no dates.
const DefaultLookbackDays = 14

// Request clamp bounds.
const (
	minLimit        = 5
	maxLimit        = 200
	minEdgeFloor    = 1
	minEdgeCeiling  = 100
	defaultLimit    = 25
	defaultMinEdges = 3
)

type segmentConfig struct {
	label       string
	description string
	isDefault   bool
	edges       []rawEdge
}

type rawEdge struct {
	source string
	target string
	weight float64
}

// segmentOrder fixes the listing order; map iteration would shuffle it.
var segmentOrder = []string{
	"all", "new_customers", "repeat_buyers", "vip", "churn_risk", "browse_only",
}

var segments = map[string]segmentConfig{
	"all": {
		label:       "All Customers",
		description: "Aggregates the full customer journey with no filter.",
		isDefault:   true,
		edges: []rawEdge{
			{"landing", "category", 1800},
			{"category", "product_detail", 1520},
			{"product_detail", "add_to_cart", 870},
			{"add_to_cart", "checkout", 640},
			{"checkout", "purchase", 520},
			{"category", "search", 430},
			{"search", "product_detail", 410},
		},
	},
	"new_customers": {
		label:       "New Customers",
		description: "Flows of customers still on their first visit or purchase.",
		edges: []rawEdge{
			{"landing", "signup", 620},
			{"signup", "category", 580},
			{"category", "product_detail", 540},
			{"product_detail", "add_to_cart", 360},
			{"add_to_cart", "checkout", 220},
		},
	},
	"repeat_buyers": {
		label:       "Repeat Buyers",
		description: "Behavior network of customers with two or more completed orders.",
		edges: []rawEdge{
			{"push_notification", "product_detail", 320},
			{"product_detail", "add_to_cart", 310},
			{"add_to_cart", "purchase", 260},
			{"purchase", "referral", 120},
		},
	},
	"vip": {
		label:       "High-Value Customers",
		description: "VIP customers with high cumulative spend.",
		edges: []rawEdge{
			{"email", "product_detail", 210},
			{"product_detail", "wishlist", 190},
			{"wishlist", "add_to_cart", 170},
			{"add_to_cart", "purchase", 160},
			{"purchase", "premium_support", 60},
		},
	},
	"churn_risk": {
		label:       "Churn Risk",
		description: "Customers with no purchase in over sixty days.",
		edges: []rawEdge{
			{"landing", "category", 280},
			{"category", "product_detail", 240},
			{"product_detail", "promo_banner", 120},
			{"promo_banner", "exit", 110},
		},
	},
	"browse_only": {
		label:       "Browse Only",
		description: "Customers exploring the catalog without a purchase yet.",
		edges: []rawEdge{
			{"landing", "search", 520},
			{"search", "product_detail", 470},
			{"product_detail", "size_guide", 200},
			{"size_guide", "exit", 180},
		},
	},
}

// ErrSegmentNotFound reports a request for an undefined segment.
type ErrSegmentNotFound struct {
	Segment string
}

func (e *ErrSegmentNotFound) Error() string {
	return fmt.Sprintf("segment %q is not defined", e.Segment)
}

// SegmentOptions returns UI-ready segment metadata in a stable order.
func SegmentOptions() []model.SegmentOption {
	options := make([]model.SegmentOption, 0, len(segmentOrder))
	for _, id := range segmentOrder {
		conf := segments[id]
		options = append(options, model.SegmentOption{
			ID:          id,
			Label:       conf.label,
			Description: conf.description,
			Default:     conf.isDefault,
		})
	}
	return options
}

// BuildFlow resolves the request against the canned edge templates and
// assembles the full flow response.
func BuildFlow(request model.FlowRequest) (*model.FlowResponse, error) {
	conf, ok := segments[request.Segment]
	if !ok {
		return nil, &ErrSegmentNotFound{Segment: request.Segment}
	}

	limit := clamp(orDefault(request.Limit, defaultLimit), minLimit, maxLimit)
	minEdges := clamp(orDefault(request.MinEdgeCount, defaultMinEdges), minEdgeFloor, minEdgeCeiling)
	start, end := resolveDates(request.StartDate, request.EndDate)

	links := selectEdges(conf.edges, limit, float64(minEdges))
	nodes, total := aggregateNodes(links)

	return &model.FlowResponse{
		Segment: model.SegmentInfo{
			ID:          request.Segment,
			Label:       conf.label,
			Description: conf.description,
		},
		Filters: model.Filters{
			StartDate:    start,
			EndDate:      end,
			Limit:        limit,
			MinEdgeCount: minEdges,
		},
		Nodes: nodes,
		Links: links,
		Summary: model.Summary{
			TotalTransitions: total,
			EdgeCount:        len(links),
			NodeCount:        len(nodes),
		},
		DataSource: map[string]string{"mode": "demo"},
	}, nil
}

// resolveDates fills missing bounds with a trailing window ending today and
// swaps an inverted range instead of rejecting it.
func resolveDates(startDate, endDate string) (string, string) {
	today := time.Now().Format("2006-01-02")
	end := endDate
	if end == "" {
		end = today
	}
	start := startDate
	if start == "" {
		if t, err := time.Parse("2006-01-02", end); err == nil {
			start = t.AddDate(0, 0, -(DefaultLookbackDays - 1)).Format("2006-01-02")
		} else {
			start = end
		}
	}
	if start > end {
		start, end = end, start
	}
	return start, end
}

func selectEdges(template []rawEdge, limit int, minWeight float64) []model.Edge {
	links := make([]model.Edge, 0, limit)
	for _, edge := range template {
		if edge.weight < minWeight {
			continue
		}
		links = append(links, model.Edge{Source: edge.source, Target: edge.target, Value: edge.weight})
		if len(links) >= limit {
			break
		}
	}
	return links
}

// aggregateNodes sums each endpoint's incident edge weight and returns nodes
// sorted by weight descending (id ascending on ties).
func aggregateNodes(links []model.Edge) ([]model.Node, float64) {
	weights := make(map[string]float64)
	var total float64
	for _, link := range links {
		total += link.Value
		weights[link.Source] += link.Value
		weights[link.Target] += link.Value
	}

	nodes := make([]model.Node, 0, len(weights))
	for id, weight := range weights {
		nodes = append(nodes, model.Node{ID: id, Label: Labelize(id), Value: weight})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Value != nodes[j].Value {
			return nodes[i].Value > nodes[j].Value
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes, total
}

// Labelize turns an event identifier into a display label: underscores become
// spaces and the first letter is capitalized.
func Labelize(value string) string {
	clean := strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if clean == "" {
		return "Unknown"
	}
	return strings.ToUpper(clean[:1]) + clean[1:]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
