// internal/daemon/server.go
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/engine"
	"github.com/colebrumley/logtrigger/internal/state"
	"github.com/dustin/go-humanize"
)

// startHTTPServer serves the inspection API until ctx is done.
func (d *Daemon) startHTTPServer(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d",
		d.config.Daemon.ListenAddress,
		d.config.Daemon.ListenPort,
	)

	d.httpServer = &http.Server{Addr: addr, Handler: d.routes()}

	d.logger.Info("starting HTTP server", "address", addr)

	go func() {
		if err := d.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			d.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)
}

func (d *Daemon) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rateLimitHandler(60, d.handleHealth))
	mux.HandleFunc("/api/triggers", rateLimitHandler(60, d.handleAPITriggers))
	mux.HandleFunc("/api/timers", rateLimitHandler(120, d.handleAPITimers))
	mux.HandleFunc("/api/overlays", rateLimitHandler(600, d.handleAPIOverlays))
	mux.HandleFunc("/api/history", rateLimitHandler(30, d.handleAPIHistory))
	mux.HandleFunc("/api/profile", rateLimitHandler(10, d.handleAPIProfile))
	mux.HandleFunc("/api/lines", rateLimitHandler(120, d.handleAPILines))
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth returns daemon health status.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mu.RLock()
	var tailing string
	var offset int64
	if d.tail != nil {
		tailing = d.tail.Path()
		offset = d.tail.Offset()
	}
	d.mu.RUnlock()

	triggers := d.engine.Triggers()
	enabled := 0
	for _, t := range triggers {
		if t.State == engine.Checked.String() {
			enabled++
		}
	}

	resp := map[string]any{
		"status":           "ok",
		"uptime":           time.Since(d.startTime).Truncate(time.Second).String(),
		"profile":          d.engine.Profile(),
		"tailing":          tailing,
		"offset":           humanize.Bytes(uint64(max(offset, 0))),
		"triggers_loaded":  len(triggers),
		"triggers_enabled": enabled,
		"live_timers":      len(d.engine.Timers()),
	}
	writeJSON(w, resp)
}

// handleAPITriggers lists every trigger with its tree state, counter and
// captured variables. With ?tree=1 it returns the group tree instead.
func (d *Daemon) handleAPITriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("tree") != "" {
		writeJSON(w, d.engine.Nodes())
		return
	}
	writeJSON(w, d.engine.Triggers())
}

// handleAPITimers lists live timers. DELETE /api/timers?id=X ends one early.
func (d *Daemon) handleAPITimers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, d.engine.Timers())
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		if !d.engine.EndTimer(id) {
			http.Error(w, "timer not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPIOverlays returns the current content of every overlay.
func (d *Daemon) handleAPIOverlays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, d.overlays.Snapshot())
}

// handleAPIHistory returns trigger log entries from the state DB.
func (d *Daemon) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if d.stateDB == nil {
		writeJSON(w, []any{})
		return
	}

	q := r.URL.Query()
	filter := state.HistoryFilter{
		Trigger: q.Get("trigger"),
		Profile: q.Get("profile"),
		Limit:   50,
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since, expected RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	records, err := d.stateDB.GetHistory(filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("querying history: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []state.MatchRecord{}
	}
	writeJSON(w, records)
}

// handleAPIProfile reports (GET) or switches (POST {"name": ...}) the
// active profile.
func (d *Daemon) handleAPIProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]string{"name": d.engine.Profile()})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "expected {\"name\": \"<profile>\"}", http.StatusBadRequest)
			return
		}
		if err := d.switchProfile(req.Name); err != nil {
			if errors.Is(err, ErrUnknownProfile) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"name": req.Name})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPILines feeds the request body to the engine one line at a time,
// as if the lines had been appended to the log.
func (d *Daemon) handleAPILines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64*1024))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	n := 0
	for line := range strings.Lines(string(data)) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		d.engine.OnLine(line)
		n++
	}
	writeJSON(w, map[string]int{"lines": n})
}

// rateLimitHandler wraps an HTTP handler with a simple token-bucket rate limiter.
func rateLimitHandler(requestsPerMinute int, handler http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerMinute
	lastRefill := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		now := time.Now()
		elapsed := now.Sub(lastRefill)
		refill := int(elapsed.Minutes() * float64(requestsPerMinute))
		if refill > 0 {
			tokens += refill
			if tokens > requestsPerMinute {
				tokens = requestsPerMinute
			}
			lastRefill = now
		}

		if tokens <= 0 {
			mu.Unlock()
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		tokens--
		mu.Unlock()

		handler(w, r)
	}
}
