// Package processor implements the orchestrator loop: it drives the agent
// CLI iteration by iteration, validates each reported signal against the
// phase graph, commits phase transitions to the overview document, and stops
// with a notification on any terminal condition.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samocode/samocode/pkg/executor"
	"github.com/samocode/samocode/pkg/notify"
	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/session"
	"github.com/samocode/samocode/pkg/signal"
)

// Logger is the logging surface the loop needs.
type Logger interface {
	Print(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	SetPhase(phase string)
}

// agentRunner abstracts the executor for testing.
type agentRunner interface {
	RunWithRetry(ctx context.Context, opts executor.Options) (executor.Result, error)
}

// notifier abstracts notification delivery for testing. *notify.Service
// satisfies it, including the nil receiver.
type notifier interface {
	Send(ctx context.Context, ev notify.Event)
}

// Runner drives one session to a stop condition.
type Runner struct {
	Graph    *phase.Graph
	Session  session.Session
	Exec     agentRunner
	Notifier notifier
	Log      Logger
}

// Options carries the per-run inputs.
type Options struct {
	InitialDive string // recorded by the agent on the first iteration of a new session
	InitialTask string
}

// Outcome reports how the loop stopped. Status is the final (possibly
// overridden) signal status or empty when the loop failed before producing
// one.
type Outcome struct {
	Status     signal.Status
	Iterations int
	Summary    string
	Reason     string
	Needs      string
	WaitingFor string
}

// Run executes the orchestrator loop until a stop condition. The error
// return covers execution failures and IO errors; signal-driven stops
// (done, blocked, waiting) land in the Outcome with a nil error.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	return r.run(ctx, Options{})
}

// RunWithOptions is Run with initial dive/task instructions for a new
// session.
func (r *Runner) RunWithOptions(ctx context.Context, opts Options) (Outcome, error) {
	return r.run(ctx, opts)
}

func (r *Runner) run(ctx context.Context, opts Options) (Outcome, error) {
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Iterations: iteration - 1}, fmt.Errorf("run canceled: %w", err)
		}

		outcome, stop, err := r.iterate(ctx, iteration, opts)
		if err != nil || stop {
			outcome.Iterations = iteration
			return outcome, err
		}
	}
}

// iterate performs one full orchestrator iteration. stop=true means the
// loop finished with the returned outcome.
func (r *Runner) iterate(ctx context.Context, iteration int, opts Options) (Outcome, bool, error) {
	// phase is re-read fresh every iteration so a restarted orchestrator
	// picks up exactly where the overview document says the session is
	currentPhase, err := r.currentPhase()
	if err != nil {
		return Outcome{}, true, err
	}
	if currentPhase != "" {
		r.Log.SetPhase(currentPhase)
	}
	r.Log.Print("iteration %d (phase: %s)", iteration, displayPhase(currentPhase))

	prev, err := signal.Clear(r.Session.Path)
	if err != nil {
		return Outcome{}, true, fmt.Errorf("clear signal: %w", err)
	}
	if prev != "" {
		r.Log.Print("discarded stale signal: %s", prev)
	}

	execOpts := executor.Options{Iteration: iteration}
	if iteration == 1 {
		execOpts.InitialDive = opts.InitialDive
		execOpts.InitialTask = opts.InitialTask
	}

	res, err := r.Exec.RunWithRetry(ctx, execOpts)
	if err != nil {
		// configuration error, the deployment is broken
		r.notifyError(ctx, iteration, err.Error())
		return Outcome{}, true, err
	}
	if res.Status != executor.StatusSuccess {
		detail := executionFailure(res)
		r.Log.Error("%s", detail)
		r.notifyError(ctx, iteration, detail)
		return Outcome{}, true, fmt.Errorf("agent execution failed: %s", res.Status)
	}

	if total, incErr := session.IncrementTotalIterations(r.Session); incErr != nil {
		r.Log.Warn("failed to update total iterations: %v", incErr)
	} else {
		r.Log.Print("total iterations: %d", total)
	}

	sig := signal.Read(r.Session.Path)

	// on the first iteration of a new session the agent just created the
	// overview; bootstrap the phase from it. Later iterations keep the
	// pre-run phase so gate and transition rules are enforced against the
	// phase the agent was dispatched in, not one it wrote itself.
	if currentPhase == "" {
		if currentPhase, err = r.currentPhase(); err != nil {
			return Outcome{}, true, err
		}
	}

	// the ledger records what the agent actually reported, before any
	// override, so the audit trail is complete
	fallbackPhase := currentPhase
	if fallbackPhase == "" {
		fallbackPhase = r.Graph.InitialPhase()
	}
	if recErr := signal.Record(r.Session.Path, sig, iteration, fallbackPhase); recErr != nil {
		r.Log.Warn("failed to record signal history: %v", recErr)
	}

	sig, err = r.validate(currentPhase, sig)
	if err != nil {
		return Outcome{}, true, err
	}

	return r.dispatch(ctx, iteration, sig)
}

// currentPhase reads the phase from the overview document. A missing
// overview or missing Phase line means the pre-init null state.
func (r *Runner) currentPhase() (string, error) {
	name, err := session.Phase(r.Session)
	if err != nil {
		if errors.Is(err, session.ErrNoOverview) {
			return "", nil
		}
		return "", fmt.Errorf("read current phase: %w", err)
	}
	return name, nil
}

// validate applies the override pipeline to a recorded signal: status
// legality, iteration budget, then gate and transition rules for phase
// changes. Each violation rewrites the signal to BLOCKED in memory; the
// ledger already holds the original. The returned error covers only the
// overview write on a committed transition.
func (r *Runner) validate(currentPhase string, sig signal.Signal) (signal.Signal, error) {
	// legality is checked where the agent is, not where it wants to go,
	// so a continue that requests the terminal phase is not rejected by
	// the target's narrower signal set
	statusPhase := currentPhase
	if statusPhase == "" {
		statusPhase = sig.Phase
	}

	warning, err := r.Graph.ValidateSignalForPhase(statusPhase, string(sig.Status))
	if warning != "" {
		r.Log.Warn("%s", warning)
	}
	if err != nil {
		r.Log.Warn("invalid signal: %v", err)
		return overrideBlocked(err.Error(), "investigation"), nil
	}

	// the budget is charged to the phase the ledger recorded the
	// iteration under: the signal's own phase when it states one
	budgetPhase := sig.Phase
	if budgetPhase == "" {
		budgetPhase = currentPhase
	}
	count := signal.CountForPhase(r.Session.Path, budgetPhase)
	if exceeded, maxAllowed := r.Graph.BudgetExceeded(budgetPhase, count); exceeded {
		reason := fmt.Sprintf("phase %q used %d iterations, exceeding its limit of %d", budgetPhase, count, maxAllowed)
		r.Log.Warn("%s", reason)
		return overrideBlocked(reason, "investigation"), nil
	}

	if sig.Phase == "" || strings.EqualFold(sig.Phase, currentPhase) {
		return sig, nil
	}

	// phase change requested
	if cfg := r.Graph.ConfigFor(currentPhase); cfg != nil && cfg.RequiresGate && sig.Status != signal.Waiting {
		reason := fmt.Sprintf("phase %q requires approval before moving on; signal waiting instead", currentPhase)
		r.Log.Warn("%s", reason)
		return overrideBlocked(reason, "human_decision"), nil
	}

	if tErr := r.Graph.ValidateTransition(currentPhase, sig.Phase); tErr != nil {
		r.Log.Warn("invalid transition: %v", tErr)
		return overrideBlocked(tErr.Error(), "investigation"), nil
	}

	if uErr := session.UpdatePhase(r.Session, sig.Phase); uErr != nil {
		return sig, fmt.Errorf("persist phase %q: %w", sig.Phase, uErr)
	}
	r.Log.Print("phase: %s -> %s", displayPhase(currentPhase), sig.Phase)
	r.Log.SetPhase(sig.Phase)
	return sig, nil
}

// dispatch acts on the validated signal status. stop=false continues the
// loop.
func (r *Runner) dispatch(ctx context.Context, iteration int, sig signal.Signal) (Outcome, bool, error) {
	outcome := Outcome{
		Status:     sig.Status,
		Summary:    sig.Summary,
		Reason:     sig.Reason,
		Needs:      sig.Needs,
		WaitingFor: sig.WaitingFor,
	}

	switch sig.Status {
	case signal.Done:
		r.Log.Print("workflow complete: %s", sig.Summary)
		r.Notifier.Send(ctx, notify.Event{
			Kind:      notify.KindComplete,
			Session:   r.Session.DisplayName,
			Iteration: iteration,
			Summary:   sig.Summary,
		})
		return outcome, true, nil

	case signal.Blocked:
		r.Log.Error("workflow blocked: %s (needs: %s)", sig.Reason, sig.Needs)
		r.Notifier.Send(ctx, notify.Event{
			Kind:      notify.KindBlocked,
			Session:   r.Session.DisplayName,
			Iteration: iteration,
			Reason:    sig.Reason,
			Needs:     sig.Needs,
		})
		return outcome, true, nil

	case signal.Waiting:
		r.Log.Print("workflow waiting for: %s", sig.WaitingFor)
		r.Notifier.Send(ctx, notify.Event{
			Kind:       notify.KindWaiting,
			Session:    r.Session.DisplayName,
			Iteration:  iteration,
			WaitingFor: sig.WaitingFor,
		})
		return outcome, true, nil

	case signal.Continue:
		return outcome, false, nil

	default:
		// the codec never produces anything else, stop rather than loop
		r.Log.Error("unexpected signal status %q, stopping", sig.Status)
		return outcome, true, fmt.Errorf("unexpected signal status %q", sig.Status)
	}
}

func (r *Runner) notifyError(ctx context.Context, iteration int, detail string) {
	r.Notifier.Send(ctx, notify.Event{
		Kind:      notify.KindError,
		Session:   r.Session.DisplayName,
		Iteration: iteration,
		Error:     detail,
	})
}

// overrideBlocked builds the in-memory replacement signal for a validation
// violation.
func overrideBlocked(reason, needs string) signal.Signal {
	return signal.Signal{Status: signal.Blocked, Reason: reason, Needs: needs}
}

// executionFailure summarizes a failed execution result for logs and
// notifications.
func executionFailure(res executor.Result) string {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = "no error output captured"
	}
	return fmt.Sprintf("agent execution %s after attempt %d: %s", res.Status, res.Attempt, detail)
}

func displayPhase(name string) string {
	if name == "" {
		return "(new session)"
	}
	return name
}
