package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// errDeadline marks the wall-clock cutoff; the caller kills the process and
// classifies the attempt as TIMEOUT.
var errDeadline = errors.New("stream deadline exceeded")

// lineSink accumulates lines and optionally mirrors them to a transcript
// file and a callback. Safe for one writer goroutine plus a reader that may
// snapshot mid-stream on timeout.
type lineSink struct {
	mu     sync.Mutex
	buf    []byte
	file   *os.File
	onLine func(string)
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	s.buf = append(s.buf, line...)
	s.buf = append(s.buf, '\n')
	if s.file != nil {
		_, _ = s.file.WriteString(line + "\n") // best-effort transcript
	}
	s.mu.Unlock()
	if s.onLine != nil {
		s.onLine(line)
	}
}

func (s *lineSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// streamOutput reads the process's stdout and stderr concurrently until both
// close (normal exit, already-buffered output drained) or the deadline
// passes. Stdout lines go to the transcript file as they arrive so a human
// can tail progress mid-run.
func streamOutput(ctx context.Context, proc Process, logFile string, timeout time.Duration, onLine func(string)) (stdout, stderr string, err error) {
	f, err := os.Create(logFile) //nolint:gosec // path under session _logs dir
	if err != nil {
		return "", "", fmt.Errorf("create transcript: %w", err)
	}
	defer f.Close() //nolint:errcheck // transcript is best-effort

	outSink := &lineSink{file: f, onLine: onLine}
	errSink := &lineSink{}

	outDone := consumeLines(proc.Stdout(), outSink)
	errDone := consumeLines(proc.Stderr(), errSink)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for pending := 2; pending > 0; {
		select {
		case <-outDone:
			outDone = nil
			pending--
		case <-errDone:
			errDone = nil
			pending--
		case <-deadline.C:
			return outSink.String(), errSink.String(), errDeadline
		case <-ctx.Done():
			return outSink.String(), errSink.String(), ctx.Err()
		}
	}

	return outSink.String(), errSink.String(), nil
}

// consumeLines scans r line by line into the sink, closing the returned
// channel on EOF. The reader goroutine exits when the process's pipe closes,
// including after a kill.
func consumeLines(r io.Reader, sink *lineSink) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(r)
		// stream-json events can be large single lines
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			sink.add(scanner.Text())
		}
	}()
	return done
}
