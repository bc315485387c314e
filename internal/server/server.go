// Package server assembles the HTTP surface of the bridge.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabwire/tabwire/internal/api"
	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/config"
	"github.com/tabwire/tabwire/internal/hub"
	"github.com/tabwire/tabwire/internal/metrics"
	"github.com/tabwire/tabwire/internal/state"
)

// New constructs the HTTP handler for the bridge: command and snapshot
// endpoints, the WebSocket subscription upgrade, health, and metrics.
func New(cfg config.Config, b *bus.Bus, store *state.Store) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	preg := prometheus.NewRegistry()
	metrics.Register(preg)

	impl := &api.API{Bus: b, Store: store}
	subscribers := &hub.Hub{Bus: b, Store: store}

	r.Get("/healthz", impl.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))

	r.Post("/inject", impl.Inject)
	r.Post("/navigate", impl.Navigate)
	r.Post("/scroll", impl.Scroll)
	r.Post("/resize", impl.Resize)
	r.Post("/click", impl.Click)
	r.Post("/type", impl.TypeText)
	r.Post("/capture", impl.Capture)
	r.Post("/html", impl.HTML)
	r.Post("/rules", impl.SetRules)
	r.Post("/sync", impl.Sync)

	r.Get("/tabs", impl.Tabs)
	r.Get("/scripts", impl.Scripts)
	r.Get("/rules", impl.Rules)
	r.Get("/results", impl.Results)

	r.Get("/ws", subscribers.Handle)

	return r
}
