// Package signal implements the file-based control protocol between the
// orchestrator and the agent process: the per-iteration signal message and
// the append-only history ledger.
//
// The agent is untrusted input. Decoding never fails: any malformed,
// missing or unrecognized payload degrades to a BLOCKED signal with a
// diagnostic reason so the loop stops gracefully instead of crashing.
package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the signal file inside a session directory.
const FileName = "_signal.json"

// Status is the closed set of signal statuses.
type Status string

// signal statuses the agent may report.
const (
	Continue Status = "continue"
	Done     Status = "done"
	Blocked  Status = "blocked"
	Waiting  Status = "waiting"
)

// ParseStatus matches a status string case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(s)) {
	case Continue:
		return Continue, true
	case Done:
		return Done, true
	case Blocked:
		return Blocked, true
	case Waiting:
		return Waiting, true
	}
	return "", false
}

// Signal is the per-iteration control message from the agent. "for" is the
// wire name of WaitingFor. Unknown extra fields are ignored on decode.
type Signal struct {
	Status     Status            `json:"status"`
	Summary    string            `json:"summary,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Needs      string            `json:"needs,omitempty"`
	WaitingFor string            `json:"for,omitempty"`
	Phase      string            `json:"phase,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// blocked builds the standard degraded signal for protocol violations.
func blocked(reason, needs string) Signal {
	return Signal{Status: Blocked, Reason: reason, Needs: needs}
}

// Clear resets the signal file to an empty object before an iteration,
// creating the session directory if needed. Returns whatever non-empty
// content was there before, for diagnostic logging only.
func Clear(sessionPath string) (previous string, err error) {
	if err := os.MkdirAll(sessionPath, 0o750); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	path := filepath.Join(sessionPath, FileName)
	if data, readErr := os.ReadFile(path); readErr == nil { //nolint:gosec // path under session dir
		content := strings.TrimSpace(string(data))
		if content != "" && content != "{}" {
			previous = content
		}
	}

	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		return previous, fmt.Errorf("reset signal file: %w", err)
	}
	return previous, nil
}

// Read parses the signal file written by the agent during the iteration.
//
// An empty object means CONTINUE: the file is reset to {} before every
// invocation, so "still empty after a successful run" is the agent saying
// "nothing new to report". Runaway loops are caught by per-phase iteration
// budgets, not here.
func Read(sessionPath string) Signal {
	path := filepath.Join(sessionPath, FileName)

	data, err := os.ReadFile(path) //nolint:gosec // path under session dir
	if err != nil {
		return blocked("signal file not created", "investigation")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return blocked(fmt.Sprintf("invalid signal JSON: %v", err), "investigation")
	}

	if len(raw) == 0 {
		return Signal{Status: Continue}
	}

	var statusStr string
	if v, ok := raw["status"]; ok {
		_ = json.Unmarshal(v, &statusStr) // non-string status falls through as invalid
	}
	status, ok := ParseStatus(statusStr)
	if !ok {
		return blocked(fmt.Sprintf("invalid signal status: %q", statusStr), "investigation")
	}

	sig := Signal{Status: status}
	decodeString(raw, "summary", &sig.Summary)
	decodeString(raw, "reason", &sig.Reason)
	decodeString(raw, "needs", &sig.Needs)
	decodeString(raw, "for", &sig.WaitingFor)
	decodeString(raw, "phase", &sig.Phase)
	if v, ok := raw["context"]; ok {
		_ = json.Unmarshal(v, &sig.Context) // best-effort, wrong shape ignored
	}
	return sig
}

func decodeString(raw map[string]json.RawMessage, key string, dst *string) {
	if v, ok := raw[key]; ok {
		_ = json.Unmarshal(v, dst)
	}
}

// Encode serializes a signal in wire format, status lowercased and absent
// optional fields omitted.
func Encode(sig Signal) ([]byte, error) {
	sig.Status = Status(strings.ToLower(string(sig.Status)))
	data, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return data, nil
}
