package phase

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// graphFile is the YAML shape of a custom phase graph. Example:
//
//	initial: init
//	phases:
//	  init:
//	    agent: init-agent
//	    next: [investigation]
//	    signals: [continue, blocked]
//	    max_iterations: 5
//	  planning:
//	    model: opus
//	    gate: true
//	    ...
type graphFile struct {
	Initial      string                    `yaml:"initial"`
	DefaultModel string                    `yaml:"default_model"`
	Phases       map[string]graphFilePhase `yaml:"phases"`
}

type graphFilePhase struct {
	Agent         string   `yaml:"agent"`
	Model         string   `yaml:"model"`
	Next          []string `yaml:"next"`
	Signals       []string `yaml:"signals"`
	MaxIterations int      `yaml:"max_iterations"`
	Gate          bool     `yaml:"gate"`
}

// LoadGraph reads a custom phase graph from a YAML file and returns an
// immutable Graph. The result fully replaces the built-in graph; it is never
// cached globally, callers own its lifetime. Reload is "call LoadGraph
// again", not in-place mutation.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	var gf graphFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse graph file: %w", err)
	}

	if len(gf.Phases) == 0 {
		return nil, fmt.Errorf("graph file %s defines no phases", path)
	}

	configs := make(map[string]*Config, len(gf.Phases))
	for name, p := range gf.Phases {
		canonical := strings.ToLower(strings.TrimSpace(name))
		if canonical == "" {
			return nil, fmt.Errorf("graph file %s has a phase with empty name", path)
		}

		signals := normalizeList(p.Signals)
		if len(signals) == 0 {
			// every phase can at least continue or report being stuck
			signals = []string{StatusContinue, StatusBlocked}
		}
		for _, s := range signals {
			if !validStatusName(s) {
				return nil, fmt.Errorf("phase %q allows unknown signal status %q", canonical, s)
			}
		}

		maxIter := p.MaxIterations
		if maxIter <= 0 {
			maxIter = 20
		}

		model := p.Model
		if model == "" {
			model = gf.DefaultModel
		}

		configs[canonical] = &Config{
			Name:           canonical,
			Agent:          p.Agent,
			Model:          model,
			AllowedNext:    normalizeList(p.Next),
			AllowedSignals: signals,
			MaxIterations:  maxIter,
			RequiresGate:   p.Gate,
		}
	}

	// every declared transition target must exist
	for name, c := range configs {
		for _, next := range c.AllowedNext {
			if _, ok := configs[next]; !ok {
				return nil, fmt.Errorf("phase %q lists unknown next phase %q", name, next)
			}
		}
	}

	initial := strings.ToLower(strings.TrimSpace(gf.Initial))
	if initial == "" {
		initial = Init
	}
	if _, ok := configs[initial]; !ok {
		return nil, fmt.Errorf("initial phase %q not defined in graph file", initial)
	}

	return &Graph{configs: configs, initial: initial}, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func validStatusName(s string) bool {
	switch s {
	case StatusContinue, StatusDone, StatusBlocked, StatusWaiting:
		return true
	}
	return false
}
