package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

const transportSSE = "sse"

// sseHeartbeat is how often an idle SSE stream gets a keep-alive comment.
var sseHeartbeat = 15 * time.Second

// StreamEvents handles GET /api/crew/events/{run_id}/sse.
// It implements Server-Sent Events (SSE) for streaming run events. Event ids
// are log indexes, so a reconnecting client resumes after Last-Event-ID.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	runID := run.ID()
	requestID := GetRequestID(ctx, r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	metrics.StreamActiveConnections.WithLabelValues(transportSSE).Inc()
	defer metrics.StreamActiveConnections.WithLabelValues(transportSSE).Dec()

	h.logger.Info("SSE connection opened",
		slog.String("run_id", runID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	h.writeComment(w, flusher, "connected")

	idx := resumeIndex(r)
	events := run.Bridge().StreamFrom(ctx, idx)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			duration := time.Since(startTime)
			metrics.StreamConnectionDuration.WithLabelValues(transportSSE).Observe(duration.Seconds())
			h.logger.Info("SSE connection closed (client disconnect)",
				slog.String("run_id", runID),
				slog.String("request_id", requestID),
				slog.Duration("duration", duration),
				slog.String("reason", "client_disconnect"),
			)
			return

		case evt, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					continue
				}
				h.sendStreamEnd(w, flusher, run)
				duration := time.Since(startTime)
				metrics.StreamConnectionDuration.WithLabelValues(transportSSE).Observe(duration.Seconds())
				h.logger.Info("SSE connection closed (run completed)",
					slog.String("run_id", runID),
					slog.String("request_id", requestID),
					slog.Duration("duration", duration),
					slog.String("reason", "run_completed"),
				)
				return
			}
			h.writeSSE(w, flusher, evt.ToSSE(idx))
			idx++
			metrics.StreamMessagesTotal.WithLabelValues(transportSSE).Inc()

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// resumeIndex returns the first log index to send: one past Last-Event-ID
// (header or last_event_id query), or 0.
func resumeIndex(r *http.Request) int {
	last := r.Header.Get("Last-Event-ID")
	if last == "" {
		last = r.URL.Query().Get("last_event_id")
	}
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 {
		return 0
	}
	return n + 1
}

// writeSSE writes a formatted SSE frame and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, frame []byte) {
	if _, err := w.Write(frame); err != nil {
		h.logger.Debug("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	h.writeSSE(w, flusher, []byte(": "+comment+"\n\n"))
}

// sendStreamEnd sends a final frame carrying the run's terminal status.
func (h *Handlers) sendStreamEnd(w http.ResponseWriter, flusher http.Flusher, run *runstore.Run) {
	data := map[string]interface{}{
		"type":   types.EventTypeStreamEnd,
		"run_id": run.ID(),
		"status": run.Status(),
	}
	if msg := run.Error(); msg != "" {
		data["error"] = msg
	}
	payload, _ := json.Marshal(data)
	h.writeSSE(w, flusher, []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", types.EventTypeStreamEnd, payload)))
}
