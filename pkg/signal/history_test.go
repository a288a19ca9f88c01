package signal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndHistory(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Record(dir, Signal{Status: Continue, Summary: "explored codebase"}, 1, "investigation"))
	require.NoError(t, Record(dir, Signal{Status: Continue, Phase: "requirements"}, 2, "investigation"))
	require.NoError(t, Record(dir, Signal{Status: Waiting, WaitingFor: "qa_answers", Phase: "requirements"}, 3, "requirements"))

	entries := History(dir)
	require.Len(t, entries, 3)

	assert.Equal(t, "investigation", entries[0].Phase, "fallback phase used when signal has none")
	assert.Equal(t, "explored codebase", entries[0].Summary)
	assert.Equal(t, 1, entries[0].Iteration)
	assert.NotEmpty(t, entries[0].Timestamp)

	assert.Equal(t, "requirements", entries[1].Phase, "signal's own phase wins over fallback")
	assert.Equal(t, "qa_answers", entries[2].WaitingFor)
}

func TestCountForPhase(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Record(dir, Signal{Status: Continue, Phase: "testing"}, 1, ""))
	require.NoError(t, Record(dir, Signal{Status: Continue, Phase: "Testing"}, 2, ""))
	require.NoError(t, Record(dir, Signal{Status: Continue, Phase: "quality"}, 3, ""))
	require.NoError(t, Record(dir, Signal{Status: Continue}, 4, "TESTING"))

	assert.Equal(t, 3, CountForPhase(dir, "testing"), "count is case-insensitive")
	assert.Equal(t, 1, CountForPhase(dir, "quality"))
	assert.Equal(t, 0, CountForPhase(dir, "planning"))
}

func TestCountForPhase_NoLedger(t *testing.T) {
	assert.Equal(t, 0, CountForPhase(t.TempDir(), "testing"))
}

func TestHistory_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Record(dir, Signal{Status: Continue, Phase: "init"}, 1, ""))

	// simulate a partial write from a crash plus a blank line
	f, err := os.OpenFile(filepath.Join(dir, HistoryFileName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"iteration\": 2, \"pha\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Record(dir, Signal{Status: Done, Phase: "done"}, 3, ""))

	entries := History(dir)
	require.Len(t, entries, 2, "corrupt and blank lines skipped")
	assert.Equal(t, 1, entries[0].Iteration)
	assert.Equal(t, 3, entries[1].Iteration)
	assert.Equal(t, 1, CountForPhase(dir, "init"))
}

func TestHistory_NoFile(t *testing.T) {
	assert.Nil(t, History(t.TempDir()))
}
