// Package executor runs the agent CLI for exactly one orchestrator
// iteration: it resolves the phase-appropriate invocation, launches the
// process with a hard wall-clock deadline, streams its output to a
// transcript file, classifies the outcome, and retries transient failures.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samocode/samocode/pkg/config"
	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/session"
)

// Status classifies one invocation attempt.
type Status string

// attempt outcomes.
const (
	StatusSuccess        Status = "success"
	StatusTimeout        Status = "timeout"
	StatusFailure        Status = "failure"
	StatusRetryExhausted Status = "retry_exhausted"
)

// Result holds the outcome of one attempt (or, for RETRY_EXHAUSTED, the
// last attempt of an exhausted series). Never mutated after construction.
type Result struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int // -1 when the process never produced one
	Attempt  int
	LogFile  string // transcript path, empty when the launch failed before streaming
}

// Logger is the minimal logging surface the executor needs.
type Logger interface {
	Print(format string, args ...any)
}

// CommandRunner abstracts process launching for testing.
type CommandRunner interface {
	Start(ctx context.Context, spec CommandSpec) (Process, error)
}

// CommandSpec describes one process launch.
type CommandSpec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the inherited environment
}

// Process is a started process the stream loop drives to completion.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error // reaps the process, non-nil for non-zero exit
	Kill()       // hard-kills the whole process group
}

// Executor drives the agent CLI for a single session.
type Executor struct {
	Graph          *phase.Graph
	Config         config.Config
	Session        session.Session
	WorkflowPrompt string       // generic prompt template for phases without an agent
	OnLine         func(string) // called for each streamed stdout line, may be nil
	Log            Logger

	cmdRunner CommandRunner // nil uses the real os/exec runner
}

// Options carries per-iteration inputs that are not part of session state.
type Options struct {
	Iteration   int
	InitialDive string // first iteration of a new session only
	InitialTask string // first iteration of a new session only
}

// Invocation is the resolved dispatch for one attempt: either a dedicated
// agent with an appended session context, or the generic workflow prompt.
type Invocation struct {
	Agent   string // empty means prompt fallback
	Context string // appended system prompt, agent mode only
	Prompt  string // full prompt, fallback mode only
	Model   string
	Phase   string
}

// minimalPrompt is the literal prompt in agent mode; real results flow
// through the signal file and overview document, not stdout.
const minimalPrompt = "Continue the session workflow."

// Resolve determines the invocation for the current session state. The
// returned error is a configuration error: fatal, never retried.
func (e *Executor) Resolve(opts Options) (Invocation, error) {
	phaseName, err := session.Phase(e.Session)
	newSession := false
	switch {
	case errors.Is(err, session.ErrNoOverview):
		// brand new session: force the initial phase and its agent
		phaseName = e.Graph.InitialPhase()
		newSession = true
	case err != nil:
		return Invocation{}, err
	case phaseName == "":
		phaseName = e.Graph.InitialPhase()
	}

	if !e.Graph.IsValidPhase(phaseName) {
		return Invocation{}, fmt.Errorf("phase %q has no configuration in the graph", phaseName)
	}

	model := e.Graph.ModelFor(phaseName)
	if model == "" {
		model = e.Config.Runtime.Model
	}

	inv := Invocation{Model: model, Phase: phaseName}

	// initial instructions only make sense on a fresh session; for existing
	// sessions they could trick the agent into redoing phase one
	dive, task := opts.InitialDive, opts.InitialTask
	if !newSession {
		dive, task = "", ""
	}

	iteration := opts.Iteration
	if n, iterErr := session.Iteration(e.Session); iterErr == nil && n > 0 {
		iteration = n
	}

	if agent := e.Graph.AgentFor(phaseName); agent != "" {
		inv.Agent = agent
		inv.Context = e.buildContext(phaseName, iteration, dive, task)
		return inv, nil
	}

	if e.WorkflowPrompt == "" {
		return Invocation{}, fmt.Errorf("phase %q has no agent and no workflow prompt is configured", phaseName)
	}
	inv.Prompt = e.buildFallbackPrompt(phaseName, iteration, dive, task)
	return inv, nil
}

// workingDir resolves where the agent process executes. Always derived from
// orchestrator-owned configuration; the overview document's Working Dir
// line is agent-authored and deliberately ignored here.
func (e *Executor) workingDir() string {
	if e.Config.Project.Repo != "" {
		return e.Config.Project.Repo
	}
	if e.Session.PathBased {
		return filepath.Dir(e.Session.Path)
	}
	return e.Session.Path
}

// buildContext assembles the session context appended to the agent's system
// prompt: everything the agent needs about this session without hardcoding.
func (e *Executor) buildContext(phaseName string, iteration int, dive, task string) string {
	var b strings.Builder
	b.WriteString("# Session Context\n")
	fmt.Fprintf(&b, "**Session path:** %s\n", e.Session.Path)
	fmt.Fprintf(&b, "**Working directory:** %s\n", e.workingDir())
	fmt.Fprintf(&b, "**Phase:** %s\n", phaseName)
	if iteration > 0 {
		fmt.Fprintf(&b, "**Iteration:** %d\n", iteration)
	}
	fmt.Fprintf(&b, "**Time budget:** %ds\n", e.Config.Runtime.TimeoutSec)

	if e.Config.Project.Repo != "" {
		name := filepath.Base(e.Session.Path)
		b.WriteString("\n## Worktree Configuration\n")
		fmt.Fprintf(&b, "- Base repo: `%s`\n", e.Config.Project.Repo)
		fmt.Fprintf(&b, "- Worktree path: `%s`\n", filepath.Join(e.Config.Project.Worktrees, name))
		fmt.Fprintf(&b, "- Branch name: `%s`\n", e.branchName(name))
	} else {
		b.WriteString("\n## Standalone Project Configuration\n")
		fmt.Fprintf(&b, "- Project folder: `%s`\n", e.workingDir())
		b.WriteString("- No git worktree (standalone project)\n")
	}

	writeInitialInstructions(&b, dive, task)
	return b.String()
}

// buildFallbackPrompt combines the generic workflow template with the same
// session information, used for graph states without a dedicated agent.
func (e *Executor) buildFallbackPrompt(phaseName string, iteration int, dive, task string) string {
	var b strings.Builder
	b.WriteString(e.WorkflowPrompt)
	fmt.Fprintf(&b, "\n\n## Session Path\n\n`%s`\n", e.Session.Path)
	fmt.Fprintf(&b, "\n## Phase\n\n%s (iteration %d)\n", phaseName, iteration)
	fmt.Fprintf(&b, "\n## Working Directory\n\n`%s`\n", e.workingDir())
	writeInitialInstructions(&b, dive, task)
	return b.String()
}

// writeInitialInstructions records the dive/task inputs as data for the
// agent to persist, with an explicit instruction not to short-circuit the
// remaining phases because of them.
func writeInitialInstructions(b *strings.Builder, dive, task string) {
	if dive == "" && task == "" {
		return
	}
	b.WriteString("\n## Initial Instructions\n")
	b.WriteString("This is a NEW session. After initialization:\n")
	step := 1
	if dive != "" {
		fmt.Fprintf(b, "%d. Record dive topic: **%s**\n", step, dive)
		step++
	}
	if task != "" {
		fmt.Fprintf(b, "%d. Record task definition: **%s**\n", step, task)
	}
	b.WriteString("\nThese are inputs to record for later phases, not work to do now. ")
	b.WriteString("Continue through ALL workflow phases; do NOT signal done early.\n")
}

// branchName derives the worktree branch from the session folder name,
// stripping the date prefix and applying the configured prefix.
func (e *Executor) branchName(sessionName string) string {
	parts := strings.SplitN(sessionName, "-", 4)
	name := parts[len(parts)-1]
	if e.Config.Runtime.BranchPrefix != "" {
		return e.Config.Runtime.BranchPrefix + "/" + name
	}
	return name
}

// buildArgs produces the full CLI argument list for an invocation.
func (e *Executor) buildArgs(inv Invocation) []string {
	args := []string{
		"--dangerously-skip-permissions",
		"--model", inv.Model,
		"--max-turns", strconv.Itoa(e.Config.Runtime.MaxTurns),
		"--verbose",
		"--output-format", "stream-json",
	}
	if inv.Agent != "" {
		args = append(args,
			"--agent", inv.Agent,
			"--append-system-prompt", inv.Context,
			"-p", minimalPrompt,
		)
		return args
	}
	return append(args, "-p", inv.Prompt)
}

// RunOnce executes a single attempt. Transient problems (launch failure,
// non-zero exit, timeout) land in the Result; the error return is reserved
// for configuration errors that must not be retried.
func (e *Executor) RunOnce(ctx context.Context, attempt int, opts Options) (Result, error) {
	inv, err := e.Resolve(opts)
	if err != nil {
		return Result{}, err
	}

	if inv.Agent != "" {
		e.Log.Print("using agent: %s (phase: %s, attempt %d)", inv.Agent, inv.Phase, attempt)
	} else {
		e.Log.Print("no agent for phase %q, using workflow prompt (attempt %d)", inv.Phase, attempt)
	}

	logFile := session.TranscriptFile(e.Session, opts.Iteration, inv.Phase)
	if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
		return Result{}, fmt.Errorf("create transcript dir: %w", err)
	}
	e.Log.Print("streaming transcript to %s", logFile)

	runner := e.cmdRunner
	if runner == nil {
		runner = &execRunner{}
	}

	spec := CommandSpec{
		Name: e.Config.Runtime.ClaudePath,
		Args: e.buildArgs(inv),
		Dir:  e.workingDir(),
		Env:  []string{"SAMOCODE_SESSION_PATH=" + e.Session.Path},
	}

	proc, err := runner.Start(ctx, spec)
	if err != nil {
		e.Log.Print("agent CLI launch failed: %v", err)
		return Result{Status: StatusFailure, Stderr: err.Error(), ExitCode: -1, Attempt: attempt}, nil
	}

	timeout := time.Duration(e.Config.Runtime.TimeoutSec) * time.Second
	stdout, stderr, streamErr := streamOutput(ctx, proc, logFile, timeout, e.OnLine)

	if errors.Is(streamErr, errDeadline) {
		proc.Kill()
		_ = proc.Wait() // reap
		e.Log.Print("agent CLI timed out after %s", timeout)
		return Result{
			Status:   StatusTimeout,
			Stderr:   fmt.Sprintf("timeout after %s", timeout),
			ExitCode: -1,
			Attempt:  attempt,
			LogFile:  logFile,
		}, nil
	}
	if streamErr != nil {
		proc.Kill()
		_ = proc.Wait()
		e.Log.Print("agent CLI stream failed: %v", streamErr)
		return Result{
			Status:   StatusFailure,
			Stdout:   stdout,
			Stderr:   streamErr.Error(),
			ExitCode: -1,
			Attempt:  attempt,
			LogFile:  logFile,
		}, nil
	}

	if waitErr := proc.Wait(); waitErr != nil {
		code := exitCodeOf(waitErr)
		e.Log.Print("agent CLI failed with code %d", code)
		e.logFailureTail(stdout, stderr)
		return Result{
			Status:   StatusFailure,
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: code,
			Attempt:  attempt,
			LogFile:  logFile,
		}, nil
	}

	return Result{
		Status:  StatusSuccess,
		Stdout:  stdout,
		Stderr:  stderr,
		Attempt: attempt,
		LogFile: logFile,
	}, nil
}

// logFailureTail prints truncated diagnostics for a non-zero exit: stderr
// when present, otherwise the tail of stdout.
func (e *Executor) logFailureTail(stdout, stderr string) {
	const limit = 500
	if stderr != "" {
		e.Log.Print("stderr: %s", truncate(stderr, limit))
		return
	}
	if stdout != "" {
		e.Log.Print("stdout tail: %s", tail(stdout, limit))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// exitCodeOf extracts the process exit code from a Wait error, -1 when the
// process was killed or never exited normally.
func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
