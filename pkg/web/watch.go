package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/samocode/samocode/pkg/session"
	"github.com/samocode/samocode/pkg/signal"
)

// pollInterval is the fallback cadence for picking up changes fsnotify
// missed (network filesystems, atomic renames).
const pollInterval = time.Second

// Watcher follows a session directory and publishes ledger entries and
// transcript lines to the server's SSE stream. It watches the files the
// agent process writes, so the live view works even when the orchestrator
// runs in a different process.
type Watcher struct {
	session session.Session
	server  *Server

	historySeen int    // ledger entries already published
	tailFile    string // transcript currently being followed
	tailOffset  int64  // bytes of tailFile already published
	logsWatched bool
}

// NewWatcher creates a watcher publishing into srv.
func NewWatcher(s session.Session, srv *Server) *Watcher {
	return &Watcher{session: s, server: srv}
}

// Run watches until ctx is canceled. Blocks.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fsw.Close() //nolint:errcheck // nothing to do with a close error here

	if err := fsw.Add(w.session.Path); err != nil {
		return fmt.Errorf("watch session dir: %w", err)
	}
	w.watchLogsDir(fsw)

	// publish what already exists before streaming updates
	w.sync(fsw)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				w.sync(fsw)
			}
		case <-fsw.Errors:
			// watcher errors are non-fatal, the poll ticker covers the gap
		case <-ticker.C:
			w.sync(fsw)
		}
	}
}

// watchLogsDir adds the transcript directory once it exists.
func (w *Watcher) watchLogsDir(fsw *fsnotify.Watcher) {
	if w.logsWatched {
		return
	}
	logsDir := filepath.Join(w.session.Path, session.LogsDirName)
	if fi, err := os.Stat(logsDir); err != nil || !fi.IsDir() {
		return
	}
	if err := fsw.Add(logsDir); err == nil {
		w.logsWatched = true
	}
}

// sync publishes everything new since the last call.
func (w *Watcher) sync(fsw *fsnotify.Watcher) {
	w.watchLogsDir(fsw)
	w.syncHistory()
	w.syncTranscript()
}

func (w *Watcher) syncHistory() {
	entries := signal.History(w.session.Path)
	for ; w.historySeen < len(entries); w.historySeen++ {
		w.server.PublishSignal(entries[w.historySeen])
	}
}

func (w *Watcher) syncTranscript() {
	newest := newestTranscript(filepath.Join(w.session.Path, session.LogsDirName))
	if newest == "" {
		return
	}
	if newest != w.tailFile {
		w.tailFile = newest
		w.tailOffset = 0
	}

	f, err := os.Open(w.tailFile) //nolint:gosec // path comes from the session's own logs dir
	if err != nil {
		return
	}
	defer f.Close() //nolint:errcheck // read-only file

	if _, err := f.Seek(w.tailOffset, 0); err != nil {
		return
	}

	buf := make([]byte, 64*1024)
	var pending strings.Builder
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}

	// publish only complete lines, leave a partial trailing line for the
	// next sync
	data := pending.String()
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx]
		data = data[idx+1:]
		w.tailOffset += int64(idx + 1)
		if line != "" {
			w.server.PublishLine(line)
		}
	}
}

// newestTranscript returns the most recently modified transcript file.
func newestTranscript(logsDir string) string {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(logsDir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
