// Package progress provides timestamped logging to file and stdout with color support.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// colors for log levels and the timestamp prefix.
var (
	warnColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	timestampColor = color.New(color.FgWhite)
	defaultColor   = color.New(color.FgGreen)
)

// phaseColors maps workflow phases to stdout colors. Unknown phases fall
// back to defaultColor.
var phaseColors = map[string]*color.Color{
	"init":           color.New(color.FgWhite),
	"investigation":  color.New(color.FgCyan),
	"requirements":   color.New(color.FgBlue),
	"planning":       color.New(color.FgMagenta),
	"implementation": color.New(color.FgGreen),
	"testing":        color.New(color.FgYellow),
	"quality":        color.New(color.FgHiCyan),
	"done":           color.New(color.FgHiGreen),
}

// Logger writes timestamped output to both a run log file and stdout.
type Logger struct {
	file      *os.File
	stdout    io.Writer
	startTime time.Time
	phase     string
}

// Config holds logger configuration.
type Config struct {
	SessionPath string // session directory, log file created under it
	SessionName string // display name for the header
	Branch      string // current git branch, empty outside a repo
	NoColor     bool   // disable color output (sets color.NoColor globally)
}

// NewLogger creates a logger writing to <session>/_run.log and stdout.
// With an empty SessionPath the logger writes to stdout only.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.NoColor {
		color.NoColor = true
	}

	l := &Logger{stdout: os.Stdout, startTime: time.Now()}

	if cfg.SessionPath == "" {
		return l, nil
	}

	logPath := filepath.Join(cfg.SessionPath, "_run.log")
	if err := os.MkdirAll(cfg.SessionPath, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	// append so restarts of the same session share one log
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path derived from session dir
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}
	l.file = f

	l.writeFile("# Samocode Run Log\n")
	l.writeFile("Session: %s\n", cfg.SessionName)
	if cfg.Branch != "" {
		l.writeFile("Branch: %s\n", cfg.Branch)
	}
	l.writeFile("Started: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	l.writeFile("%s\n\n", strings.Repeat("-", 60))

	return l, nil
}

// Path returns the run log file path.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// SetPhase sets the current workflow phase for color coding.
func (l *Logger) SetPhase(phase string) {
	l.phase = strings.ToLower(phase)
}

// timestampFormat is the format for timestamps: YY-MM-DD HH:MM:SS
const timestampFormat = "06-01-02 15:04:05"

func (l *Logger) phaseColor() *color.Color {
	if c, ok := phaseColors[l.phase]; ok {
		return c
	}
	return defaultColor
}

// Print writes a timestamped message to both file and stdout.
func (l *Logger) Print(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	// write to file without color
	l.writeFile("[%s] %s\n", timestamp, msg)

	// write to stdout with color
	tsStr := timestampColor.Sprintf("[%s]", timestamp)
	msgStr := l.phaseColor().Sprint(msg)
	l.writeStdout("%s %s\n", tsStr, msgStr)
}

// PrintRaw writes without timestamp (for streaming output).
func (l *Logger) PrintRaw(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.writeFile("%s", msg)
	l.writeStdout("%s", msg)
}

// getTerminalWidth returns terminal width, using COLUMNS env var or syscall.
// Defaults to 80 if detection fails. Returns content width (total - 20 for timestamp).
func getTerminalWidth() int {
	const minWidth = 40

	// try COLUMNS env var first
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if w, err := strconv.Atoi(cols); err == nil && w > 0 {
			contentWidth := w - 20 // leave room for timestamp prefix
			if contentWidth < minWidth {
				return minWidth
			}
			return contentWidth
		}
	}

	// try terminal syscall
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		contentWidth := w - 20
		if contentWidth < minWidth {
			return minWidth
		}
		return contentWidth
	}

	return 80 - 20 // default 80 columns minus timestamp
}

// wrapText wraps text to specified width, breaking on word boundaries.
func wrapText(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0

	for i, word := range words {
		wordLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen = wordLen
			continue
		}

		// check if word fits on current line
		if lineLen+1+wordLen <= width {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wordLen
		} else {
			// start new line
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wordLen
		}
	}

	return result.String()
}

// PrintAligned writes text with timestamp, handling multi-line content
// properly: timestamps the first line, indents continuation lines.
func (l *Logger) PrintAligned(text string) {
	if text == "" {
		return
	}

	// trim trailing newlines to avoid extra blank lines
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}

	timestamp := time.Now().Format(timestampFormat)
	phaseColor := l.phaseColor()
	tsPrefix := timestampColor.Sprintf("[%s]", timestamp)
	indent := "                    " // 20 chars to align with "[YY-MM-DD HH:MM:SS] "

	// wrap text to terminal width
	width := getTerminalWidth()

	// split into lines, wrap each long line, then process
	var lines []string
	for line := range strings.SplitSeq(text, "\n") {
		if len(line) > width {
			wrapped := wrapText(line, width)
			for wrappedLine := range strings.SplitSeq(wrapped, "\n") {
				lines = append(lines, wrappedLine)
			}
		} else {
			lines = append(lines, line)
		}
	}
	for i, line := range lines {
		if line == "" {
			// preserve empty lines within content
			l.writeFile("\n")
			l.writeStdout("\n")
			continue
		}

		if i == 0 {
			// first line gets timestamp
			l.writeFile("[%s] %s\n", timestamp, line)
			l.writeStdout("%s %s\n", tsPrefix, phaseColor.Sprint(line))
		} else {
			// continuation lines get indent
			l.writeFile("%s%s\n", indent, line)
			l.writeStdout("%s%s\n", indent, phaseColor.Sprint(line))
		}
	}
}

// Error writes an error message in red.
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] ERROR: %s\n", timestamp, msg)

	tsStr := timestampColor.Sprintf("[%s]", timestamp)
	errStr := errorColor.Sprintf("ERROR: %s", msg)
	l.writeStdout("%s %s\n", tsStr, errStr)
}

// Warn writes a warning message in yellow.
func (l *Logger) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] WARN: %s\n", timestamp, msg)

	tsStr := timestampColor.Sprintf("[%s]", timestamp)
	warnStr := warnColor.Sprintf("WARN: %s", msg)
	l.writeStdout("%s %s\n", tsStr, warnStr)
}

// Elapsed returns formatted elapsed time since start.
func (l *Logger) Elapsed() string {
	return humanize.RelTime(l.startTime, time.Now(), "", "")
}

// Close writes footer and closes the run log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}

	l.writeFile("\n%s\n", strings.Repeat("-", 60))
	l.writeFile("Stopped: %s (%s)\n", time.Now().Format("2006-01-02 15:04:05"), l.Elapsed())

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}

func (l *Logger) writeFile(format string, args ...any) {
	if l.file != nil {
		fmt.Fprintf(l.file, format, args...)
	}
}

func (l *Logger) writeStdout(format string, args ...any) {
	fmt.Fprintf(l.stdout, format, args...)
}
