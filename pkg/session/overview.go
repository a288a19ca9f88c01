package session

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// line-anchored fields recognized in the overview document. the document is
// free text maintained by the agent; only these lines matter to the
// orchestrator.
var (
	phaseRe      = regexp.MustCompile(`(?m)^Phase:\s*(.+)$`)
	iterationRe  = regexp.MustCompile(`(?m)^Iteration:\s*(\d+)\s*$`)
	totalIterRe  = regexp.MustCompile(`(?m)^Total Iterations:\s*(\d+)\s*$`)
	workingDirRe = regexp.MustCompile(`(?m)^Working Dir:\s*(.+)$`)
)

// Phase extracts the current phase from the overview document. Returns
// ErrNoOverview when the document does not exist (new session) and an empty
// string when the document exists but has no Phase line.
func Phase(s Session) (string, error) {
	content, err := readOverview(s)
	if err != nil {
		return "", err
	}
	if m := phaseRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return "", nil
}

// Iteration extracts the agent-maintained iteration counter, 0 when absent.
func Iteration(s Session) (int, error) {
	content, err := readOverview(s)
	if err != nil {
		return 0, err
	}
	if m := iterationRe.FindStringSubmatch(content); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, nil
	}
	return 0, nil
}

// TotalIterations extracts the cumulative iteration counter that persists
// across orchestrator restarts, 0 when absent or no overview exists.
func TotalIterations(s Session) int {
	content, err := readOverview(s)
	if err != nil {
		return 0
	}
	if m := totalIterRe.FindStringSubmatch(content); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// WorkingDirHint extracts the Working Dir line for display only. The
// orchestrator never executes anything there: the agent writes this document,
// and execution paths must come from orchestrator-owned configuration.
func WorkingDirHint(s Session) string {
	content, err := readOverview(s)
	if err != nil {
		return ""
	}
	if m := workingDirRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// UpdatePhase rewrites the Phase line in place, inserting one at the top of
// the document when absent. The overview document is the single source of
// truth for "what phase are we in", so this must happen before the next
// iteration reads it back.
func UpdatePhase(s Session, phaseName string) error {
	content, err := readOverview(s)
	if err != nil {
		return err
	}

	line := "Phase: " + phaseName
	if phaseRe.MatchString(content) {
		content = phaseRe.ReplaceAllString(content, line)
	} else {
		content = line + "\n" + content
	}
	return writeOverview(s, content)
}

// IncrementTotalIterations bumps the cumulative counter in place, inserting
// the line when absent, and returns the new value. No-op error when the
// overview does not exist yet.
func IncrementTotalIterations(s Session) (int, error) {
	content, err := readOverview(s)
	if err != nil {
		return 0, err
	}

	total := 1
	if m := totalIterRe.FindStringSubmatch(content); m != nil {
		prev, _ := strconv.Atoi(m[1])
		total = prev + 1
		content = totalIterRe.ReplaceAllString(content, "Total Iterations: "+strconv.Itoa(total))
	} else {
		content = strings.TrimRight(content, "\n") + "\nTotal Iterations: 1\n"
	}

	if err := writeOverview(s, content); err != nil {
		return 0, err
	}
	return total, nil
}

func readOverview(s Session) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Path, OverviewFileName)) //nolint:gosec // path under session dir
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoOverview
		}
		return "", fmt.Errorf("read overview: %w", err)
	}
	return string(data), nil
}

func writeOverview(s Session, content string) error {
	if err := os.WriteFile(filepath.Join(s.Path, OverviewFileName), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write overview: %w", err)
	}
	return nil
}
