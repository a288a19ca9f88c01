// Package session manages the on-disk session directory: path resolution
// from CLI arguments, the overview document that is the single source of
// truth for the current phase, structure validation, and the naming of
// per-iteration transcript files.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// well-known files inside a session directory.
const (
	OverviewFileName = "_overview.md"
	LogsDirName      = "_logs"
)

// Session identifies one session directory and how it was addressed.
type Session struct {
	Path        string // absolute session directory
	DisplayName string // human-readable name for notifications
	PathBased   bool   // true when --session was given as a path, not a name
}

// IsPathArg reports whether the --session argument is a path rather than a
// bare name: it contains a separator or starts with "~".
func IsPathArg(arg string) bool {
	return strings.ContainsRune(arg, '/') || strings.HasPrefix(arg, "~")
}

// Resolve turns the --session argument into a Session.
//
// Path-based arguments are used directly; the display name is the parent
// directory (the project). Name-based arguments are normalized (lowercase,
// spaces to dashes) and matched against existing "*-name" directories under
// sessionsDir, most recent winning; otherwise a new dated path
// "YY-MM-DD-name" is produced (not created yet, the agent creates it).
func Resolve(arg, sessionsDir string) (Session, error) {
	if IsPathArg(arg) {
		path, err := expandPath(arg)
		if err != nil {
			return Session{}, err
		}
		return Session{Path: path, DisplayName: filepath.Base(filepath.Dir(path)), PathBased: true}, nil
	}

	name := strings.ToLower(strings.ReplaceAll(arg, " ", "-"))
	matches, err := filepath.Glob(filepath.Join(sessionsDir, "*-"+name))
	if err != nil {
		return Session{}, fmt.Errorf("search sessions dir: %w", err)
	}

	var path string
	if len(matches) > 0 {
		sort.Strings(matches)
		path = matches[len(matches)-1]
	} else {
		path = filepath.Join(sessionsDir, FolderTimestamp(time.Now())+"-"+name)
	}
	return Session{Path: path, DisplayName: filepath.Base(path)}, nil
}

// expandPath expands a leading ~ and makes the path absolute.
func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve session path: %w", err)
	}
	return abs, nil
}

// legacy control files from the pre-underscore layout.
var legacyFiles = []string{"signal.json", "overview.md", "signal_history.jsonl"}

// ValidateStructure rejects deprecated or duplicated session layouts with
// migration guidance. Corrupted structure must never be silently used.
func ValidateStructure(s Session) error {
	info, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // new session, agent creates it
		}
		return fmt.Errorf("stat session path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session path exists but is not a directory: %s", s.Path)
	}

	// nested _samocode means the old duplicated layout where the session
	// lived one level deeper
	nested := filepath.Join(s.Path, "_samocode")
	if fi, statErr := os.Stat(nested); statErr == nil && fi.IsDir() {
		return fmt.Errorf("deprecated session layout: %s contains a nested _samocode directory\n"+
			"move its contents up one level and remove the nested directory, "+
			"then re-run with --session %s", s.Path, s.Path)
	}

	for _, name := range legacyFiles {
		if _, statErr := os.Stat(filepath.Join(s.Path, name)); statErr == nil {
			return fmt.Errorf("deprecated session layout: %s uses legacy file %q\n"+
				"rename it to %q and re-run", s.Path, name, "_"+name)
		}
	}

	return nil
}

// ErrNoOverview indicates the overview document does not exist yet, which
// means a brand new session.
var ErrNoOverview = errors.New("overview document not found")

// TranscriptFile returns the per-attempt transcript path inside the session
// _logs directory. The name encodes timestamp, iteration and phase so a
// plain directory listing sorts chronologically.
func TranscriptFile(s Session, iteration int, phaseName string) string {
	slug := strings.ToLower(phaseName)
	if slug == "" {
		slug = "unknown"
	}
	name := fmt.Sprintf("%s-%03d-%s.jsonl", JSONLTimestamp(time.Now()), iteration, slug)
	return filepath.Join(s.Path, LogsDirName, name)
}
