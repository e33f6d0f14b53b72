// Package relay routes captured artifacts to webhook endpoints and uploads
// them with bounded retry.
package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRoutingNotConfigured indicates the selected target has no endpoint.
	ErrRoutingNotConfigured = errors.New("relay target not configured")
	// ErrRelayFailed indicates the upload retry budget was exhausted.
	ErrRelayFailed = errors.New("relay failed")
)

// Target is a destination endpoint plus its classification label.
type Target struct {
	URL   string
	Label string
}

type route struct {
	match  func(fileName string) bool
	target Target
}

// Router picks a Target from the artifact's file name. Routing is purely
// content-based: it overrides any destination the inbound caller suggested.
type Router struct {
	routes []route
}

// RouterConfig names the two configured endpoints and the report marker.
type RouterConfig struct {
	ReportURL    string
	InvoiceURL   string
	ReportMarker string
}

// NewRouter builds the ordered routing table: first match wins, and the
// final route matches everything.
func NewRouter(cfg RouterConfig) *Router {
	marker := strings.ToLower(cfg.ReportMarker)
	if marker == "" {
		marker = "grandtotal"
	}
	return &Router{
		routes: []route{
			{
				match: func(name string) bool {
					return strings.Contains(strings.ToLower(name), marker)
				},
				target: Target{URL: cfg.ReportURL, Label: "grand_total_report"},
			},
			{
				match:  func(string) bool { return true },
				target: Target{URL: cfg.InvoiceURL, Label: "invoice"},
			},
		},
	}
}

// Determine evaluates the routes in priority order.
func (r *Router) Determine(fileName string) (Target, error) {
	for _, rt := range r.routes {
		if !rt.match(fileName) {
			continue
		}
		if rt.target.URL == "" {
			return Target{}, fmt.Errorf("%w: no endpoint for label %q", ErrRoutingNotConfigured, rt.target.Label)
		}
		return rt.target, nil
	}
	return Target{}, fmt.Errorf("%w: no route matched %q", ErrRoutingNotConfigured, fileName)
}
