package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// keepAliveInterval spaces SSE comment pings so idle proxies keep the
// stream open.
var keepAliveInterval = 25 * time.Second

// SSEHandler streams broker events as SSE. Clients may filter event kinds
// with ?kinds=tabIdle,status and tabIdle events of one tab with ?tab_id=.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var kinds map[string]bool
		if q := r.URL.Query().Get("kinds"); q != "" {
			kinds = make(map[string]bool)
			for _, k := range strings.Split(q, ",") {
				if k = strings.TrimSpace(k); k != "" {
					kinds[k] = true
				}
			}
		}
		tabID := r.URL.Query().Get("tab_id")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		slog.Debug("sse client subscribed", "id", id, "clients", broker.ClientCount(), "kinds", r.URL.Query().Get("kinds"), "tab_id", tabID)
		defer func() {
			broker.Unsubscribe(id)
			slog.Debug("sse client gone", "id", id, "clients", broker.ClientCount())
		}()

		ping := time.NewTicker(keepAliveInterval)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if kinds != nil && !kinds[evt.Kind] {
					continue
				}
				if tabID != "" && evt.TabID != "" && evt.TabID != tabID {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
