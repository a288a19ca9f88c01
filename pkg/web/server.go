// Package web serves a read-only live view of a running session: a JSON
// snapshot endpoint and an SSE stream of transcript lines and signal
// history updates.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/session"
	"github.com/samocode/samocode/pkg/signal"
)

// event types published on the SSE stream.
var (
	typeLine   = sse.Type("line")
	typeSignal = sse.Type("signal")
)

// ServerConfig holds web server configuration.
type ServerConfig struct {
	Port int
}

// Server exposes one session over HTTP.
type Server struct {
	cfg     ServerConfig
	session session.Session
	graph   *phase.Graph
	sse     *sse.Server
	srv     *http.Server
}

// NewServer creates a server for the given session.
func NewServer(cfg ServerConfig, s session.Session, graph *phase.Graph) *Server {
	return &Server{
		cfg:     cfg,
		session: s,
		graph:   graph,
		sse:     &sse.Server{},
	}
}

// PublishLine pushes one transcript line to all connected clients.
func (s *Server) PublishLine(line string) {
	m := &sse.Message{Type: typeLine}
	m.AppendData(line)
	_ = s.sse.Publish(m)
}

// PublishSignal pushes a recorded history entry to all connected clients.
func (s *Server) PublishSignal(e signal.HistoryEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	m := &sse.Message{Type: typeSignal}
	m.AppendData(string(data))
	_ = s.sse.Publish(m)
}

// Start listens until ctx is canceled. Blocks.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.Handle("/events", s.sse)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// snapshot is the /api/session response.
type snapshot struct {
	Session         string                `json:"session"`
	Path            string                `json:"path"`
	Phase           string                `json:"phase,omitempty"`
	Iteration       int                   `json:"iteration,omitempty"`
	TotalIterations int                   `json:"total_iterations,omitempty"`
	BudgetUsed      int                   `json:"budget_used,omitempty"`
	BudgetMax       int                   `json:"budget_max,omitempty"`
	History         []signal.HistoryEntry `json:"history,omitempty"`
}

// snapshotHistoryTail bounds how much ledger history the snapshot carries.
const snapshotHistoryTail = 50

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := snapshot{
		Session: s.session.DisplayName,
		Path:    s.session.Path,
	}

	if current, err := session.Phase(s.session); err == nil {
		snap.Phase = current
		snap.BudgetUsed = signal.CountForPhase(s.session.Path, current)
		if cfg := s.graph.ConfigFor(current); cfg != nil {
			snap.BudgetMax = cfg.MaxIterations
		}
	}
	if n, err := session.Iteration(s.session); err == nil {
		snap.Iteration = n
	}
	snap.TotalIterations = session.TotalIterations(s.session)

	entries := signal.History(s.session.Path)
	if len(entries) > snapshotHistoryTail {
		entries = entries[len(entries)-snapshotHistoryTail:]
	}
	snap.History = entries

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// indexPage is a minimal self-contained viewer, no build step or assets.
const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>samocode</title>
<style>
body { font-family: monospace; margin: 1rem; background: #111; color: #ddd; }
h1 { font-size: 1.1rem; }
#status { color: #8c8; margin-bottom: 1rem; }
#log { white-space: pre-wrap; border-top: 1px solid #333; padding-top: .5rem; }
.signal { color: #fc6; }
</style></head>
<body>
<h1>samocode session</h1>
<div id="status">loading...</div>
<div id="log"></div>
<script>
fetch("/api/session").then(r => r.json()).then(s => {
  document.getElementById("status").textContent =
    s.session + " | phase: " + (s.phase || "(new)") +
    " | budget: " + (s.budget_used || 0) + "/" + (s.budget_max || 0) +
    " | total iterations: " + (s.total_iterations || 0);
});
const log = document.getElementById("log");
const es = new EventSource("/events");
const append = (text, cls) => {
  const div = document.createElement("div");
  if (cls) div.className = cls;
  div.textContent = text;
  log.appendChild(div);
  window.scrollTo(0, document.body.scrollHeight);
};
es.addEventListener("line", e => append(e.data));
es.addEventListener("signal", e => append(e.data, "signal"));
</script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}
