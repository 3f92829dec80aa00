package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/metrics_collectors"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

const statsTimeout = 2 * time.Second

// Handler exposes the hub over HTTP: websocket upgrades on any path and relay
// statistics on /stats.
type Handler struct {
	hub      *Hub
	upgrader *transport.Upgrader
	metrics  *metrics_collectors.MetricsRegistry
	logger   zerolog.Logger
}

// NewHandler wires a hub to an upgrader. metrics may be nil, in which case
// /stats reports only connection and channel counts.
func NewHandler(hub *Hub, upgrader *transport.Upgrader, metrics *metrics_collectors.MetricsRegistry, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, upgrader: upgrader, metrics: metrics, logger: logger}
}

// ServeHTTP upgrades the request and hands the connection to the hub.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/stats" {
		h.serveStats(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r)
	if err != nil {
		h.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade connection")
		return
	}
	go h.hub.Serve(conn)
}

// Stats snapshots the hub and, when configured, the process metrics.
func (h *Handler) Stats(ctx context.Context) models.RelayStats {
	stats := models.RelayStats{
		Timestamp:   time.Now().UTC(),
		Version:     constants.ProtocolVersion,
		Connections: h.hub.ConnectionCount(),
		Channels:    h.hub.ChannelCounts(),
	}
	if h.metrics != nil {
		stats.Process = h.metrics.Snapshot(ctx)
	}
	return stats
}

func (h *Handler) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats(ctx)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write relay stats")
	}
}
