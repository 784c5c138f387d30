package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
)

// handleEvents serves GET /events: the CloudEvents bus over SSE. `types`
// filters event types; `heartbeat` overrides the comment interval within
// [5,60] seconds. Streams end at the configured max duration so proxies
// recycle connections.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apierror.Internal(fmt.Errorf("streaming unsupported")))
		return
	}

	heartbeat := time.Duration(s.Config.Stream.HeartbeatSeconds) * time.Second
	if hb, set, err := intParam(r.URL.Query(), "heartbeat"); err != nil {
		writeError(w, r, err)
		return
	} else if set {
		switch {
		case hb < 5:
			hb = 5
		case hb > 60:
			hb = 60
		}
		heartbeat = time.Duration(hb) * time.Second
	}

	ch := s.Bus.Subscribe(csvParam(r.URL.Query(), "types")...)
	defer s.Bus.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	deadline := time.NewTimer(time.Duration(s.Config.Stream.MaxDurationSeconds) * time.Second)
	defer deadline.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			frame, err := ev.SSEFormat()
			if err != nil {
				continue
			}
			w.Write(frame)
			flusher.Flush()
		}
	}
}

// handleSearchStream serves POST /search/stream: one search executed with
// progress surfaced as SSE events instead of a single JSON body.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apierror.Internal(fmt.Errorf("streaming unsupported")))
		return
	}

	q, err := parseSearchBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event string, data interface{}) {
		buf, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, buf)
		flusher.Flush()
	}

	send("search_started", map[string]interface{}{
		"query": q.Text,
		"limit": q.Limit,
	})

	start := time.Now()
	res, err := s.Engine.Search(r.Context(), q)
	if err != nil {
		ae := apierror.From(err)
		send("error", map[string]interface{}{
			"code":  string(ae.Code),
			"error": ae.Message,
		})
		return
	}

	send("vector_results", map[string]interface{}{
		"count":      len(res.Items),
		"searchMode": res.SearchMode,
	})

	for i, item := range res.Items {
		send("agent_enriched", item)
		send("enrichment_progress", map[string]interface{}{
			"enriched": i + 1,
			"total":    len(res.Items),
		})
		if r.Context().Err() != nil {
			return
		}
	}

	s.Metrics.RecordSearch(res.SearchMode, time.Since(start).Seconds(), len(res.Items))
	send("search_complete", map[string]interface{}{
		"count":      len(res.Items),
		"hasMore":    res.HasMore,
		"nextCursor": res.NextCursor,
		"tookMs":     time.Since(start).Milliseconds(),
	})
}
