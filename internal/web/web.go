// Package web serves the operator-facing observability dashboard: a
// static page, a live Server-Sent-Events activity feed, and a JSON stats
// snapshot. It is a read-only view over internal/activity and
// internal/server — it never touches the storage engine directly.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashgrove/respkv/internal/activity"
	"github.com/ashgrove/respkv/internal/server"
)

//go:embed static/index.html
var staticFS embed.FS

// Dashboard is the HTTP handler set described in SPEC_FULL.md §4.8.
type Dashboard struct {
	srv    *server.Server
	broker *activity.Broker
	mux    *http.ServeMux
}

// New returns a Dashboard backed by srv's stats and fed by broker.
func New(srv *server.Server, broker *activity.Broker) *Dashboard {
	d := &Dashboard{srv: srv, broker: broker}
	d.mux = http.NewServeMux()
	d.mux.HandleFunc("/", d.handleIndex)
	d.mux.HandleFunc("/api/events", d.handleEvents)
	d.mux.HandleFunc("/api/stats", d.handleStats)
	return d
}

// Serve runs the dashboard's HTTP server on addr until ctx is canceled.
func (d *Dashboard) Serve(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr, Handler: d.mux}

	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	b, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard asset missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(b)
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.srv.Stats())
}

func (d *Dashboard) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := d.broker.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}
