// Package api exposes the operational HTTP surface: liveness, readiness and
// prometheus metrics. The product-facing HTTP/CRUD layer lives elsewhere.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Broker is the connectivity view the probes need.
type Broker interface {
	Connected() bool
	QueueDepth() int
}

// Pinger is implemented by stores with a reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HistoryHealth is implemented by the diagnostics writer.
type HistoryHealth interface {
	LastErrorAge() time.Duration
}

type healthHandler struct {
	broker  Broker
	store   Pinger
	history HistoryHealth
}

// NewMux wires /healthz, /readyz and /metrics. store and history may be nil
// when the deployment runs without them.
func NewMux(broker Broker, store Pinger, history HistoryHealth) *http.ServeMux {
	h := &healthHandler{broker: broker, store: store, history: history}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/readyz", h.ready)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status        string  `json:"status"`
		MQTTConnected bool    `json:"mqtt_connected"`
		QueueDepth    int     `json:"queue_depth"`
		StoreOK       bool    `json:"store_ok"`
		HistoryErrAge float64 `json:"history_error_age_sec,omitempty"`
	}
	st := status{
		MQTTConnected: h.broker.Connected(),
		QueueDepth:    h.broker.QueueDepth(),
		StoreOK:       h.storeOK(),
	}
	if h.history != nil {
		st.HistoryErrAge = h.history.LastErrorAge().Seconds()
	}
	switch {
	case st.MQTTConnected && st.StoreOK:
		st.Status = "ok"
	case st.MQTTConnected || st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (h *healthHandler) ready(w http.ResponseWriter, _ *http.Request) {
	ready := h.broker.Connected() && h.storeOK()
	if h.history != nil && h.history.LastErrorAge() < 30*time.Second {
		ready = false
	}
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}

func (h *healthHandler) storeOK() bool {
	if h.store == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.store.Ping(ctx) == nil
}
