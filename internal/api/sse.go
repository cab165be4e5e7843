package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// snapshotEvent is the SSE event name for the initial device list.
const snapshotEvent = "devices"

// sseEvents handles the SSE (Server-Sent Events) endpoint.
// Clients receive the current device list immediately, then one event per
// device change, named by the event kind.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	// Verify the client supports streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.Events.Subscribe(id)
	h.Metrics.SSEClients(int(h.sseClients.Add(1)))
	defer func() {
		h.Events.Unsubscribe(id)
		h.Metrics.SSEClients(int(h.sseClients.Add(-1)))
	}()

	sendSSE(w, flusher, snapshotEvent, h.views())

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, ev.Kind(), ev)
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
