package router

import (
	"errors"
	"fmt"

	"github.com/jajabor-ai/tutor/pkg/config"
)

// ErrNoEndpoint is returned when no upstream endpoint is configured.
var ErrNoEndpoint = errors.New("no endpoints configured")

// Router resolves a subject to the upstream endpoint that answers it.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the endpoint for subjectID. If a route names the subject,
// its endpoint is used. Otherwise the first endpoint answers.
func (r *Router) Resolve(subjectID string) (config.EndpointConfig, error) {
	if len(r.cfg.Endpoints) == 0 {
		return config.EndpointConfig{}, ErrNoEndpoint
	}

	// Build endpoint index by name
	index := make(map[string]config.EndpointConfig, len(r.cfg.Endpoints))
	for _, ep := range r.cfg.Endpoints {
		index[ep.Name] = ep
	}

	for _, route := range r.cfg.Router.Routes {
		if route.Subject != subjectID {
			continue
		}
		ep, ok := index[route.Endpoint]
		if !ok {
			return config.EndpointConfig{}, fmt.Errorf("route %q: unknown endpoint %q", subjectID, route.Endpoint)
		}
		return ep, nil
	}

	// No matching route, default to first endpoint
	return r.cfg.Endpoints[0], nil
}
