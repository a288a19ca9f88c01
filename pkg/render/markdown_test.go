package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/session"
	"github.com/samocode/samocode/pkg/signal"
)

func TestMarkdown_NoColor(t *testing.T) {
	content := "# Title\n\nsome **bold** text\n"
	got, err := Markdown(content, true)
	require.NoError(t, err)
	assert.Equal(t, content, got, "noColor returns the content unchanged")
}

func TestMarkdown_Rendered(t *testing.T) {
	got, err := Markdown("# Title\n\nplain paragraph\n", false)
	require.NoError(t, err)
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "plain paragraph")
}

func TestSessionStatus_NoOverview(t *testing.T) {
	s := session.Session{Path: t.TempDir(), DisplayName: "fresh"}

	got := SessionStatus(s, phase.NewGraph())
	assert.Contains(t, got, "# Session: fresh")
	assert.Contains(t, got, "No overview document yet")
	assert.NotContains(t, got, "## Budget")
}

func TestSessionStatus_Full(t *testing.T) {
	dir := t.TempDir()
	s := session.Session{Path: dir, DisplayName: "auth-rework"}
	require.NoError(t, os.WriteFile(filepath.Join(dir, session.OverviewFileName),
		[]byte("Phase: testing\nGoal: rework auth\n"), 0o600))

	require.NoError(t, signal.Record(dir, signal.Signal{Status: signal.Continue, Phase: "implementation", Summary: "wired handlers"}, 1, ""))
	require.NoError(t, signal.Record(dir, signal.Signal{Status: signal.Continue, Phase: "testing"}, 2, ""))
	require.NoError(t, signal.Record(dir, signal.Signal{Status: signal.Blocked, Phase: "testing", Reason: "flaky integration test"}, 3, ""))

	got := SessionStatus(s, phase.NewGraph())

	assert.Contains(t, got, "# Session: auth-rework")
	assert.Contains(t, got, "Goal: rework auth")
	assert.Contains(t, got, "Phase `testing`: 2 of 20 iterations used.")
	assert.Contains(t, got, "## Recent Signals")
	assert.Contains(t, got, "| 1 | implementation | continue | wired handlers |")
	assert.Contains(t, got, "| 3 | testing | blocked | flaky integration test |")
}

func TestSessionStatus_HistoryTail(t *testing.T) {
	dir := t.TempDir()
	s := session.Session{Path: dir, DisplayName: "long-run"}
	require.NoError(t, os.WriteFile(filepath.Join(dir, session.OverviewFileName),
		[]byte("Phase: implementation\n"), 0o600))

	for i := 1; i <= 15; i++ {
		require.NoError(t, signal.Record(dir, signal.Signal{Status: signal.Continue, Phase: "implementation"}, i, ""))
	}

	got := SessionStatus(s, phase.NewGraph())
	assert.NotContains(t, got, "| 5 |", "only the last entries are shown")
	assert.Contains(t, got, "| 6 |")
	assert.Contains(t, got, "| 15 |")
}

func TestHistoryDetail(t *testing.T) {
	tests := []struct {
		name  string
		entry signal.HistoryEntry
		want  string
	}{
		{name: "summary wins", entry: signal.HistoryEntry{Summary: "done deal", Reason: "ignored"}, want: "done deal"},
		{name: "reason next", entry: signal.HistoryEntry{Reason: "stuck", WaitingFor: "ignored"}, want: "stuck"},
		{name: "waiting for last", entry: signal.HistoryEntry{WaitingFor: "plan_approval"}, want: "plan_approval"},
		{name: "empty", entry: signal.HistoryEntry{}, want: ""},
		{name: "long detail truncated", entry: signal.HistoryEntry{Summary: strings.Repeat("a", 80)}, want: strings.Repeat("a", 60) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, historyDetail(tc.entry))
		})
	}
}
