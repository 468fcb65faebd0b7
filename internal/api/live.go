package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/splitpal/splitpal/internal/app/ledger"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// ─── Live Balances ──────────────────────────────────────────────────────────
// Server-Sent Events feed of the caller's ledger. Every event carries the
// complete recomputed summary, never a delta; clients replace what they
// show with each event.

// heartbeatInterval keeps idle proxies from closing the stream.
const heartbeatInterval = 25 * time.Second

// LiveEvent is one frame of the live balances feed.
type LiveEvent struct {
	Type      string `json:"type"` // "balances"
	Currency  string `json:"currency"`
	Timestamp int64  `json:"timestamp"`
	ledger.Summary
}

// handleLiveBalances serves GET /api/balances/live.
func (s *Server) handleLiveBalances(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	observability.LiveSubscribers.Inc()
	defer observability.LiveSubscribers.Dec()

	updates := ledger.Watch(r.Context(), s.store, callerID(r))
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case summary, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(LiveEvent{
				Type:      "balances",
				Currency:  s.currency,
				Timestamp: time.Now().Unix(),
				Summary:   summary,
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: balances\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
