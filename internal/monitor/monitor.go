// Package monitor exposes the modem's running state to the outside
// world: Prometheus metrics on /metrics, and a push-based JSON status
// stream on /ws for a dashboard to follow without polling.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this modem publishes.
type Metrics struct {
	BytesIn       prometheus.Counter
	BytesOut      prometheus.Counter
	TxQueueDepth  prometheus.Gauge
	LinkLocked    prometheus.Gauge // 1 once V21Rx's correlator window has filled, 0 before that
	BitErrorProxy prometheus.Gauge // fraction of recent hard decisions that flipped relative to the previous one, a cheap link-quality proxy
}

// NewMetrics registers and returns the modem's collectors against reg.
// Pass prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "v21modem_bytes_in_total",
			Help: "Bytes received from the serial endpoint and submitted to the modulator.",
		}),
		BytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "v21modem_bytes_out_total",
			Help: "Bytes recovered by the demodulator and written to the serial endpoint.",
		}),
		TxQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "v21modem_tx_queue_depth_samples",
			Help: "Pending bit-samples queued in UartTx, growing during a transmit burst and draining at idle.",
		}),
		LinkLocked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "v21modem_link_locked",
			Help: "1 once the receive correlator window has been fully populated, 0 before that.",
		}),
		BitErrorProxy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "v21modem_bit_error_proxy",
			Help: "Fraction of recent hard-decision samples that flipped relative to the previous sample, a rough noise-floor estimate.",
		}),
	}
}

// Snapshot is the JSON payload pushed to every /ws subscriber.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	Timestamp     time.Time `json:"timestamp"`
	BytesIn       uint64    `json:"bytes_in"`
	BytesOut      uint64    `json:"bytes_out"`
	TxQueueDepth  int       `json:"tx_queue_depth"`
	LinkLocked    bool      `json:"link_locked"`
	BitErrorProxy float64   `json:"bit_error_proxy"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans a Snapshot out to every currently-connected /ws client and
// serves /metrics. SessionID is a fresh uuid generated once per process
// so dashboards can distinguish between restarts of the same modem.
type Hub struct {
	SessionID string

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a status hub with a freshly generated session id.
func NewHub() *Hub {
	return &Hub{
		SessionID: uuid.NewString(),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns an http.Handler serving /metrics (via promhttp) and
// /ws (this hub's websocket upgrade endpoint). Wire it under whatever
// address config.File.MonitorAddr names.
func (h *Hub) Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Clients are not expected to send anything; read until they
	// disconnect so we notice a closed connection promptly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes snap as JSON to every connected /ws client,
// dropping any client whose write fails (it will be cleaned up on its
// next failed read in serveWS).
func (h *Hub) Broadcast(snap Snapshot) {
	snap.SessionID = h.SessionID
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			go conn.Close()
		}
	}
}
