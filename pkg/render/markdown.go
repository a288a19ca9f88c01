// Package render builds and renders terminal views of session state.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/session"
	"github.com/samocode/samocode/pkg/signal"
)

// Markdown renders markdown content for terminal display. With noColor the
// content is returned unchanged.
func Markdown(content string, noColor bool) (string, error) {
	if noColor {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	result, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	return result, nil
}

// historyTail bounds how many ledger entries the status view shows.
const historyTail = 10

// SessionStatus composes a markdown status document for a session: the
// overview document, phase budget usage, and the tail of the signal history.
func SessionStatus(s session.Session, graph *phase.Graph) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session: %s\n\n", s.DisplayName)
	fmt.Fprintf(&b, "Path: `%s`\n\n", s.Path)

	overview, err := os.ReadFile(filepath.Join(s.Path, session.OverviewFileName)) //nolint:gosec // session path from CLI
	if err != nil {
		b.WriteString("_No overview document yet (session not started)._\n")
		return b.String()
	}
	b.WriteString("## Overview\n\n")
	b.Write(overview)
	b.WriteString("\n")

	if current, pErr := session.Phase(s); pErr == nil && current != "" {
		count := signal.CountForPhase(s.Path, current)
		if cfg := graph.ConfigFor(current); cfg != nil {
			fmt.Fprintf(&b, "## Budget\n\nPhase `%s`: %d of %d iterations used.\n\n", current, count, cfg.MaxIterations)
		}
	}

	entries := signal.History(s.Path)
	if len(entries) == 0 {
		return b.String()
	}
	if len(entries) > historyTail {
		entries = entries[len(entries)-historyTail:]
	}

	b.WriteString("## Recent Signals\n\n")
	b.WriteString("| Iteration | Phase | Status | Detail |\n")
	b.WriteString("|-----------|-------|--------|--------|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", e.Iteration, e.Phase, e.Status, historyDetail(e))
	}

	return b.String()
}

// historyDetail picks the most informative free-text field of an entry.
func historyDetail(e signal.HistoryEntry) string {
	for _, v := range []string{e.Summary, e.Reason, e.WaitingFor} {
		if v != "" {
			return truncate(v, 60)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
