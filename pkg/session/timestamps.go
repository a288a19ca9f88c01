package session

import "time"

// timestamp layouts shared by all session files. kept in one place so file
// names and log lines stay sortable and greppable across the session.
const (
	fileLayout   = "01-02-15:04"       // MM-DD-HH:mm, for human-named files
	logLayout    = "01-02 15:04"       // MM-DD HH:MM, for flow log lines
	fullLayout   = "2006-01-02 15:04"  // for document headers
	folderLayout = "06-01-02"          // YY-MM-DD, session folder prefix
	jsonlLayout  = "01-02-150405"      // MM-DD-HHMMSS, transcript files
)

// FileTimestamp formats t for file names, e.g. 01-15-14:30.
func FileTimestamp(t time.Time) string { return t.Format(fileLayout) }

// LogTimestamp formats t for flow log lines, e.g. 01-15 14:30.
func LogTimestamp(t time.Time) string { return t.Format(logLayout) }

// FullTimestamp formats t for document headers, e.g. 2026-01-15 14:30.
func FullTimestamp(t time.Time) string { return t.Format(fullLayout) }

// FolderTimestamp formats t for session folder prefixes, e.g. 26-01-15.
func FolderTimestamp(t time.Time) string { return t.Format(folderLayout) }

// JSONLTimestamp formats t for transcript file names, e.g. 01-15-143721.
func JSONLTimestamp(t time.Time) string { return t.Format(jsonlLayout) }

// validation patterns for the formats above.
const (
	FileTimestampPattern   = `^\d{2}-\d{2}-\d{2}:\d{2}`
	FolderTimestampPattern = `^\d{2}-\d{2}-\d{2}`
)
