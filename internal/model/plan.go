package model

import (
	"fmt"

	"github.com/jmou/knit/internal/objid"
)

// Step is one node of a Plan's working set: a Process plus its Inputs
// (resolved Id or unresolved Pos), and the bookkeeping the scheduler fills
// in as the step runs. Grounded on original_source/src/object.rs's Step.
type Step struct {
	// Pos is the step's own name. Identity steps synthesized by the
	// text-plan encoder for File/Value inputs carry a name derived from
	// hashing their source; ordinary steps carry the name they were given
	// in the text plan.
	Pos     string
	Process Process
	Source  *string

	ExitCode   *int32
	Production *objid.ID[Production]

	// Abandoned marks a step the scheduler gave up on after a Parse,
	// NotFound, or IO error while scheduling it (spec.md §7): it carries no
	// Production, is excluded from further selection, and leaves its
	// dependents permanently unresolved.
	Abandoned bool

	// Inputs is keyed by the full "in/<path>" or "inref/<path>" string.
	Inputs map[string]Input

	// Dependencies accumulates, as inputs resolve, a record of which
	// Production satisfied each one. Keyed "_dep:<path>" while the step is
	// part of a live Plan; the leading underscore is stripped to "dep:" only
	// when the scheduler writes the finished Production.
	Dependencies map[string]objid.ID[Production]
}

// NewStep constructs a Step with its maps initialized.
func NewStep(pos string, process Process) *Step {
	return &Step{
		Pos:          pos,
		Process:      process,
		Inputs:       map[string]Input{},
		Dependencies: map[string]objid.ID[Production]{},
	}
}

// Ready reports whether every input has resolved to an Id and the step has
// not already been assigned a Production.
func (s *Step) Ready() bool {
	if s.Production != nil || s.Abandoned {
		return false
	}
	for _, in := range s.Inputs {
		if in.Kind == InputPos {
			return false
		}
	}
	return true
}

// Plan is the scheduler's working set of Steps, keyed by position name but
// iterated in insertion order: the original's HashMap iteration order was
// left unspecified (see spec.md's design notes); this implementation
// resolves that by always selecting/iterating in the order steps were
// first added.
type Plan struct {
	order []string
	steps map[string]*Step
}

// NewPlan returns an empty Plan.
func NewPlan() *Plan {
	return &Plan{steps: map[string]*Step{}}
}

// Add inserts a step, recording its insertion position if new. Re-adding an
// existing position overwrites the step in place without changing its
// position in iteration order.
func (p *Plan) Add(step *Step) {
	if _, exists := p.steps[step.Pos]; !exists {
		p.order = append(p.order, step.Pos)
	}
	p.steps[step.Pos] = step
}

// Get returns the step at pos, or nil if absent.
func (p *Plan) Get(pos string) *Step {
	return p.steps[pos]
}

// Positions returns step names in insertion order.
func (p *Plan) Positions() []string {
	return append([]string(nil), p.order...)
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.steps)
}

// CheckTerminal verifies that every step in the plan is reachable from
// terminal by following Pos inputs, i.e. that terminal is the plan's sole
// root. Grounded on original_source/src/plan.rs's Plan::check_terminal.
func (p *Plan) CheckTerminal(terminal string) error {
	seen := map[string]bool{}
	frontier := []string{terminal}
	for len(frontier) > 0 {
		pos := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if seen[pos] {
			continue
		}
		seen[pos] = true
		step := p.Get(pos)
		if step == nil {
			return fmt.Errorf("model: missing step %q", pos)
		}
		for _, in := range step.Inputs {
			if in.Kind == InputPos {
				frontier = append(frontier, in.Pos)
			}
		}
	}

	var extra []string
	for _, pos := range p.order {
		if !seen[pos] {
			extra = append(extra, pos)
		}
	}
	if len(extra) > 0 {
		return fmt.Errorf("model: %s is not the plan terminal: %v", terminal, extra)
	}
	return nil
}
