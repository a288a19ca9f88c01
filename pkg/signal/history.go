package signal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HistoryFileName is the signal ledger inside a session directory.
const HistoryFileName = "_signal_history.jsonl"

// HistoryEntry is one observed signal with its metadata. Entries are
// append-only: written once, never mutated. The full sequence is the audit
// trail for a session and the source of per-phase iteration counts.
type HistoryEntry struct {
	Timestamp  string `json:"timestamp"`
	Iteration  int    `json:"iteration"`
	Phase      string `json:"phase,omitempty"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Needs      string `json:"needs,omitempty"`
	WaitingFor string `json:"for,omitempty"`
}

// historyTimestampFormat matches the session ledger convention.
const historyTimestampFormat = "2006-01-02 15:04:05"

// Record appends a signal to the session ledger. The recorded phase is the
// signal's own phase when present, else fallbackPhase (the phase from the
// overview document before the iteration ran) so every entry carries a
// best-effort phase even when the agent neglects to state one.
func Record(sessionPath string, sig Signal, iteration int, fallbackPhase string) error {
	phaseName := sig.Phase
	if phaseName == "" {
		phaseName = fallbackPhase
	}

	entry := HistoryEntry{
		Timestamp:  time.Now().Format(historyTimestampFormat),
		Iteration:  iteration,
		Phase:      phaseName,
		Status:     string(sig.Status),
		Summary:    sig.Summary,
		Reason:     sig.Reason,
		Needs:      sig.Needs,
		WaitingFor: sig.WaitingFor,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	path := filepath.Join(sessionPath, HistoryFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path under session dir
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close() //nolint:errcheck // write error checked below

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// CountForPhase counts ledger entries recorded for a phase,
// case-insensitively. Blank or corrupt lines are skipped: the ledger must
// tolerate partial writes left by a prior crash.
func CountForPhase(sessionPath, phaseName string) int {
	count := 0
	for _, entry := range History(sessionPath) {
		if entry.Phase != "" && strings.EqualFold(entry.Phase, phaseName) {
			count++
		}
	}
	return count
}

// History reads all parseable ledger entries in order.
func History(sessionPath string) []HistoryEntry {
	path := filepath.Join(sessionPath, HistoryFileName)
	f, err := os.Open(path) //nolint:gosec // path under session dir
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck // read-only

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // partial write from a crash, skip
		}
		entries = append(entries, entry)
	}
	return entries
}
