package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

const transportWebSocket = "websocket"

// newUpgrader builds a WebSocket upgrader that accepts same-origin requests
// and the configured CORS origins.
func newUpgrader(origins []string, logger *slog.Logger) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin] {
				return true
			}
			logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// StreamRun handles /ws/crew/stream/{run_id}. It replays the run's log from
// the first event, follows live events until the run completes, then keeps
// the socket open until the client closes it.
func (h *Handlers) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		writeFrame(conn, types.Event{
			Type:    types.EventTypeError,
			RunID:   runID,
			Message: "Run " + runID + " not found",
		})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run not found"),
			time.Now().Add(writeWait))
		return
	}

	start := time.Now()
	metrics.StreamActiveConnections.WithLabelValues(transportWebSocket).Inc()
	defer func() {
		metrics.StreamActiveConnections.WithLabelValues(transportWebSocket).Dec()
		metrics.StreamConnectionDuration.WithLabelValues(transportWebSocket).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only drains control frames; it ends when the client goes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	logger := h.logger.With(slog.String("run_id", runID))
	logger.Info("stream connection opened", slog.String("remote_addr", r.RemoteAddr))

	sent := 0
	events := run.Bridge().StreamFrom(ctx, 0)
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				// Cancellation also closes the channel; only a clean close means
				// the run finished.
				if ctx.Err() != nil {
					logger.Info("stream connection closed",
						slog.Int("events_sent", sent),
						slog.String("reason", "client_disconnect"),
					)
					return
				}
				events = nil
				continue
			}
			if err := writeFrame(conn, ev); err != nil {
				logger.Debug("stream write failed", slog.String("error", err.Error()))
				return
			}
			sent++
			metrics.StreamMessagesTotal.WithLabelValues(transportWebSocket).Inc()
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-closed:
			logger.Info("stream connection closed",
				slog.Int("events_sent", sent),
				slog.String("reason", "client_disconnect"),
			)
			return
		}
	}

	// Run complete; the client decides when to hang up.
	for {
		select {
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-closed:
			logger.Info("stream connection closed",
				slog.Int("events_sent", sent),
				slog.String("reason", "run_completed"),
			)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, ev types.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
