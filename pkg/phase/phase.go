// Package phase defines the workflow phase graph: the closed set of phases,
// their legal transitions, per-phase signal and iteration constraints, and
// the validation functions the orchestrator uses before committing any state
// change. All lookups are case-insensitive and stateless.
package phase

import (
	"fmt"
	"sort"
	"strings"
)

// workflow phase names.
const (
	Init           = "init"
	Investigation  = "investigation"
	Requirements   = "requirements"
	Planning       = "planning"
	Implementation = "implementation"
	Testing        = "testing"
	Quality        = "quality"
	Done           = "done"
)

// signal status names a phase may allow. mirrors signal.Status values but kept
// as plain strings here so the graph stays independent of the codec package.
const (
	StatusContinue = "continue"
	StatusDone     = "done"
	StatusBlocked  = "blocked"
	StatusWaiting  = "waiting"
)

// Config holds per-phase constraints. Instances are created once at graph
// construction and never mutated.
type Config struct {
	Name           string   // canonical lowercase phase name
	Agent          string   // dedicated agent name, empty means generic prompt fallback
	Model          string   // optional model override for this phase
	AllowedNext    []string // legal target phases, empty for terminal
	AllowedSignals []string // legal signal statuses while in this phase
	MaxIterations  int      // per-phase iteration budget
	RequiresGate   bool     // leaving this phase requires an explicit human checkpoint
}

// CanTransitionTo reports whether a move to target is listed in AllowedNext.
func (c *Config) CanTransitionTo(target string) bool {
	target = strings.ToLower(target)
	for _, next := range c.AllowedNext {
		if next == target {
			return true
		}
	}
	return false
}

// SignalAllowed reports whether the signal status is legal in this phase.
func (c *Config) SignalAllowed(status string) bool {
	status = strings.ToLower(status)
	for _, s := range c.AllowedSignals {
		if s == status {
			return true
		}
	}
	return false
}

// Graph is an immutable registry of phase configs. Construct via NewGraph or
// LoadGraph and pass explicitly; there is no package-level instance.
type Graph struct {
	configs map[string]*Config
	initial string
}

// NewGraph returns the built-in default graph:
// init -> investigation -> requirements -> planning -> implementation ->
// testing -> {quality, done}, quality -> testing, done terminal.
func NewGraph() *Graph {
	configs := []*Config{
		{Name: Init, Agent: "init-agent",
			AllowedNext:    []string{Investigation},
			AllowedSignals: []string{StatusContinue, StatusBlocked},
			MaxIterations:  5},
		{Name: Investigation, Agent: "investigation-agent",
			AllowedNext:    []string{Requirements},
			AllowedSignals: []string{StatusContinue, StatusBlocked},
			MaxIterations:  20},
		{Name: Requirements, Agent: "requirements-agent",
			AllowedNext:    []string{Planning},
			AllowedSignals: []string{StatusContinue, StatusWaiting, StatusBlocked},
			MaxIterations:  10,
			RequiresGate:   true}, // needs Q&A answers before moving on
		{Name: Planning, Agent: "planning-agent",
			AllowedNext:    []string{Implementation},
			AllowedSignals: []string{StatusContinue, StatusWaiting, StatusBlocked},
			MaxIterations:  10,
			RequiresGate:   true}, // needs human plan approval
		{Name: Implementation, Agent: "implementation-agent",
			AllowedNext:    []string{Testing},
			AllowedSignals: []string{StatusContinue, StatusWaiting, StatusBlocked},
			MaxIterations:  100},
		{Name: Testing, Agent: "testing-agent",
			// testing goes to quality on first pass, done after quality
			AllowedNext:    []string{Quality, Done},
			AllowedSignals: []string{StatusContinue, StatusBlocked},
			MaxIterations:  20},
		{Name: Quality, Agent: "quality-agent",
			AllowedNext:    []string{Testing}, // back to testing after fixes
			AllowedSignals: []string{StatusContinue, StatusBlocked},
			MaxIterations:  10},
		{Name: Done, Agent: "done-agent",
			AllowedNext:    nil, // terminal
			AllowedSignals: []string{StatusDone, StatusBlocked},
			MaxIterations:  3},
	}

	m := make(map[string]*Config, len(configs))
	for _, c := range configs {
		m[c.Name] = c
	}
	return &Graph{configs: m, initial: Init}
}

// ConfigFor returns the config for a phase name, nil when the name is empty
// or unknown. Callers treat nil as "unknown phase": non-fatal for signal
// validation, fatal for transition targets.
func (g *Graph) ConfigFor(name string) *Config {
	if name == "" {
		return nil
	}
	return g.configs[strings.ToLower(name)]
}

// InitialPhase returns the phase a fresh session starts in.
func (g *Graph) InitialPhase() string { return g.initial }

// IsValidPhase reports whether the name is a known phase.
func (g *Graph) IsValidPhase(name string) bool { return g.ConfigFor(name) != nil }

// Phases returns all phase names in sorted order.
func (g *Graph) Phases() []string {
	names := make([]string, 0, len(g.configs))
	for name := range g.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentFor returns the agent name for a phase, empty when the phase is
// unknown or has no dedicated agent.
func (g *Graph) AgentFor(name string) string {
	if c := g.ConfigFor(name); c != nil {
		return c.Agent
	}
	return ""
}

// ModelFor returns the per-phase model override, empty when none is set.
func (g *Graph) ModelFor(name string) string {
	if c := g.ConfigFor(name); c != nil {
		return c.Model
	}
	return ""
}

// DefaultTransition returns the first allowed next phase, used as fallback
// when a signal names an invalid target. Empty for terminal/unknown phases.
func (g *Graph) DefaultTransition(name string) string {
	c := g.ConfigFor(name)
	if c == nil || len(c.AllowedNext) == 0 {
		return ""
	}
	return c.AllowedNext[0]
}

// ValidateTransition checks whether moving from one phase to another is
// legal. An empty from-phase means a new session, which may only enter the
// initial phase. Staying in the same phase is always legal.
func (g *Graph) ValidateTransition(from, to string) error {
	if to == "" {
		return fmt.Errorf("invalid transition: no target phase (from %q)", from)
	}

	if from == "" {
		if strings.EqualFold(to, g.initial) {
			return nil
		}
		return fmt.Errorf("new session must start with %q, got %q", g.initial, to)
	}

	fromConfig := g.ConfigFor(from)
	if fromConfig == nil {
		return fmt.Errorf("unknown source phase: %q", from)
	}

	if !g.IsValidPhase(to) {
		return fmt.Errorf("unknown target phase: %q", to)
	}

	if strings.EqualFold(from, to) {
		return nil // continue in the same phase
	}

	if !fromConfig.CanTransitionTo(to) {
		return fmt.Errorf("invalid transition: %s -> %s, valid targets: %s",
			from, to, strings.Join(fromConfig.AllowedNext, ", "))
	}

	return nil
}

// ValidateSignalForPhase checks whether a signal status is allowed in the
// given phase. An unknown phase never blocks: it returns nil error plus a
// warning for the caller to log.
func (g *Graph) ValidateSignalForPhase(phaseName, status string) (warning string, err error) {
	c := g.ConfigFor(phaseName)
	if c == nil {
		return fmt.Sprintf("unknown phase: %q", phaseName), nil
	}

	if !c.SignalAllowed(status) {
		allowed := append([]string(nil), c.AllowedSignals...)
		sort.Strings(allowed)
		return "", fmt.Errorf("signal %q not allowed in phase %q, allowed: %s",
			status, phaseName, strings.Join(allowed, ", "))
	}

	return "", nil
}

// BudgetExceeded reports whether the iteration count is over the phase
// budget. The limit itself is still allowed; only count > max exceeds.
// Unknown phases are never enforced and report max 0.
func (g *Graph) BudgetExceeded(phaseName string, count int) (exceeded bool, maxAllowed int) {
	c := g.ConfigFor(phaseName)
	if c == nil {
		return false, 0
	}
	return count > c.MaxIterations, c.MaxIterations
}
