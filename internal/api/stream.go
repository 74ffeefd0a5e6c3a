package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
)

const streamHeartbeat = 25 * time.Second

// StreamHandler handles GET /credits/events. Ledger changes are coalesced
// through a one-slot buffer: a client that falls behind receives a single
// creditsUpdated event for the whole burst and re-reads the balance.
func (h *HandlerProvider) StreamHandler(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// the server write timeout would cut long-lived streams
	err := rc.SetWriteDeadline(time.Time{})
	if err != nil {
		slog.DebugContext(r.Context(), "clear write deadline", "error", err)
	}

	changed := make(chan struct{}, 1)
	unsubscribe := h.notifier.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(frame string) bool {
		_, err := fmt.Fprint(w, frame)
		if err == nil {
			err = rc.Flush()
		}

		if err != nil {
			slog.DebugContext(r.Context(), "event stream closed", "error", err)
			return false
		}

		return true
	}

	if !send(": connected\n\n") {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			if !send("event: " + notifier.EventCreditsUpdated + "\ndata: {}\n\n") {
				return
			}
		case <-heartbeat.C:
			if !send(": ping\n\n") {
				return
			}
		}
	}
}
