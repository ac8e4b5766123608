package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transcript-relay/internal/infra/broadcast"
	"transcript-relay/internal/infra/handlers"
)

type Routes struct {
	Mux           *mux.Router
	RelayHandlers *handlers.RelayHandlers
	Hub           *broadcast.Hub
	Registry      *prometheus.Registry
}

func NewRoutes(mux *mux.Router, relayHandlers *handlers.RelayHandlers, hub *broadcast.Hub, registry *prometheus.Registry) *Routes {
	return &Routes{mux, relayHandlers, hub, registry}
}

func (r *Routes) Init() {
	r.Mux.HandleFunc("/webhook", r.RelayHandlers.Webhook)

	r.Mux.HandleFunc("/ws", r.Hub.ServeWS)

	r.Mux.Handle("/metrics", promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Mux.HandleFunc("/healthCheck", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods(http.MethodGet)
}
