// Package scheduler implements the single-threaded execution-graph
// scheduler of spec.md §4.E: picks ready steps, delegates their Jobs to a
// JobRunner, reconciles against the job cache, propagates completed
// outputs to downstream inputs, and reduces the finished Plan to its
// Production roots. Grounded step-for-step on
// original_source/src/execution.rs's Scheduler/run_plan.
package scheduler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

// JobRunner executes a concrete, fully-resolved Job and returns the
// resulting Production (not yet written to the store — the scheduler owns
// writing it and updating the job cache, since a cache hit may mean the Job
// never actually runs). Implemented by internal/runner.
type JobRunner interface {
	Run(jobID objid.ID[model.Job], job *model.Job) (*model.Production, error)
}

// Scheduler drives one Plan to completion.
type Scheduler struct {
	Store  store.Store
	Runner JobRunner
	Logger *slog.Logger
}

// New constructs a Scheduler. A nil logger falls back to slog.Default().
func New(s store.Store, runner JobRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Store: s, Runner: runner, Logger: logger}
}

// RewriteNested performs the at-intake Nested→Command+Dynamic rewrite of
// spec.md §4.G, before any scheduling happens. For each step whose process
// is Nested(cmd), it is split into a "<pos>@plan" Command(cmd) step (which
// inherits the original inputs, and whose source gains a "@plan" suffix —
// or becomes literally "plan" if the original step had no source) and a
// Dynamic step at the original position whose single "in/" input maps the
// Command step's "out/" prefix, keeping the original (unmodified) source.
func RewriteNested(plan *model.Plan) *model.Plan {
	rewritten := model.NewPlan()
	for _, pos := range plan.Positions() {
		step := plan.Get(pos)
		if step.Process.Kind != model.ProcessNested {
			rewritten.Add(step)
			continue
		}

		commandPos := pos + "@plan"
		var commandSource string
		if step.Source != nil {
			commandSource = *step.Source + "@plan"
		} else {
			commandSource = "plan"
		}
		commandStep := model.NewStep(commandPos, model.Process{Kind: model.ProcessCommand, Tail: step.Process.Tail})
		commandStep.Inputs = step.Inputs
		commandStep.Source = &commandSource
		rewritten.Add(commandStep)

		dynamicStep := model.NewStep(pos, model.Process{Kind: model.ProcessDynamic})
		dynamicStep.Source = step.Source
		dynamicStep.Inputs["in/"] = model.Input{Kind: model.InputPos, Pos: commandPos, Path: "out/"}
		rewritten.Add(dynamicStep)
	}
	return rewritten
}

// selectStep returns the first ready step in insertion order, or nil if
// none remain. Grounded on execution.rs's Scheduler::schedule_step; the
// original's choice among a HashMap's unspecified iteration order is
// resolved here as plan insertion order (see spec.md's design notes).
func selectStep(plan *model.Plan) *model.Step {
	for _, pos := range plan.Positions() {
		step := plan.Get(pos)
		if step.Ready() {
			return step
		}
	}
	return nil
}

// buildJob materializes a Job from a ready step's process and resolved
// inputs. Panics if any input is still Pos: an invariant violation per
// spec.md §4.E step 1 ("panic if any input is still Pos").
func buildJob(step *model.Step) *model.Job {
	inputs := map[string]objid.ID[model.Resource]{}
	for path, in := range step.Inputs {
		if in.Kind != model.InputID {
			panic(fmt.Sprintf("scheduler: step %q: unresolved input %q", step.Pos, path))
		}
		inputs[path] = in.ID
	}
	return &model.Job{Process: step.Process, Inputs: inputs}
}

// expectedDependencies strips the step's working "_dep:" prefix down to the
// Production field's "dep:" prefix.
func expectedDependencies(step *model.Step) map[string]objid.ID[model.Production] {
	out := make(map[string]objid.ID[model.Production], len(step.Dependencies))
	for key, id := range step.Dependencies {
		out["dep:"+strings.TrimPrefix(key, "_dep:")] = id
	}
	return out
}

func dependenciesEqual(a, b map[string]objid.ID[model.Production]) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// executeStep runs the Job for a ready step: writes it (memoized), checks
// the job cache, and either reconciles a cached Production or delegates to
// the JobRunner. Grounded on execution.rs's StepRunner plus run_plan's
// cache-hit branch.
func (sch *Scheduler) executeStep(step *model.Step) (*model.Production, objid.ID[model.Production], error) {
	job := buildJob(step)
	jobID, err := store.WriteJob(sch.Store, job)
	if err != nil {
		return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: write job: %w", err)
	}

	expected := expectedDependencies(step)

	if cachedRaw, found, err := sch.Store.ReadJobCache(jobID.Raw()); err != nil {
		return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: read job cache: %w", err)
	} else if found {
		cachedID := objid.New[model.Production](cachedRaw)
		cached, err := store.ReadProduction(sch.Store, cachedID)
		if err != nil {
			return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: read cached production: %w", err)
		}
		if dependenciesEqual(cached.Dependencies, expected) {
			sch.Logger.Info("job cache hit", "job", jobID, "production", cachedID)
			return cached, cachedID, nil
		}
		rewritten := *cached
		rewritten.Dependencies = expected
		rewritten.Source = step.Source
		orig := cachedID
		rewritten.Cache = &orig
		newID, err := store.WriteProduction(sch.Store, &rewritten)
		if err != nil {
			return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: write rewritten production: %w", err)
		}
		sch.Logger.Info("job cache hit with new dependencies", "job", jobID, "production", newID, "cache", orig)
		return &rewritten, newID, nil
	}

	sch.Logger.Info("running job", "job", jobID, "source", sourceOrPos(step))
	production, err := sch.Runner.Run(jobID, job)
	if err != nil {
		return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: run job %s: %w", jobID, err)
	}
	production.Job = jobID
	production.Dependencies = expected
	production.Source = step.Source

	productionID, err := store.WriteProduction(sch.Store, production)
	if err != nil {
		return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: write production: %w", err)
	}
	if err := sch.Store.WriteJobCache(jobID.Raw(), productionID.Raw()); err != nil {
		return nil, objid.ID[model.Production]{}, fmt.Errorf("scheduler: write job cache: %w", err)
	}
	if production.ExitCode != 0 {
		sch.Logger.Warn("job failed", "job", jobID, "source", sourceOrPos(step), "exit_code", production.ExitCode)
	}
	return production, productionID, nil
}

func sourceOrPos(step *model.Step) string {
	if step.Source != nil {
		return *step.Source
	}
	return step.Pos
}

// completeStep records a finished step's Production and, on success,
// propagates its outputs into every other step's matching Pos inputs.
// Grounded on execution.rs's Scheduler::complete_step, including its exact
// quirk: a dependency entry is recorded for a matched Pos input even when
// the subsequent output lookup fails and the step's input rewrite for this
// pass is abandoned (the step is left unresolved, but the spurious
// dependency entry sticks).
func (sch *Scheduler) completeStep(plan *model.Plan, completedPos string, production *model.Production, productionID objid.ID[model.Production]) {
	step := plan.Get(completedPos)
	exitCode := production.ExitCode
	step.ExitCode = &exitCode
	step.Production = &productionID
	if production.ExitCode != 0 {
		return
	}

	for _, pos := range plan.Positions() {
		other := plan.Get(pos)
		mapped := map[string]model.Input{}
		ok := true
		for inpath, in := range other.Inputs {
			if in.Kind != model.InputPos || in.Pos != completedPos {
				mapped[inpath] = in
				continue
			}
			outpath := in.Path
			other.Dependencies["_dep:"+inpath] = productionID

			if strings.HasSuffix(inpath, "/") && strings.HasSuffix(outpath, "/") {
				for outfull, outID := range production.Outputs {
					if suffix, found := strings.CutPrefix(outfull, outpath); found {
						mapped[inpath+suffix] = model.Input{Kind: model.InputID, ID: outID}
					}
				}
				continue
			}

			outID, found := production.Outputs[outpath]
			if !found {
				sch.Logger.Warn("step expects missing output",
					"source", sourceOrPos(other), "output", outpath, "upstream", completedPos)
				ok = false
				break
			}
			mapped[inpath] = model.Input{Kind: model.InputID, ID: outID}
		}
		if ok {
			other.Inputs = mapped
		}
	}
}

// reduceProductions collects every step's assigned Production id, then
// removes one occurrence per value referenced anywhere in any step's
// Dependencies map. Grounded on execution.rs's Scheduler::reduce_productions.
func reduceProductions(plan *model.Plan) []objid.ID[model.Production] {
	var roots []objid.ID[model.Production]
	for _, pos := range plan.Positions() {
		if step := plan.Get(pos); step.Production != nil {
			roots = append(roots, *step.Production)
		}
	}
	for _, pos := range plan.Positions() {
		for _, depID := range plan.Get(pos).Dependencies {
			for i, r := range roots {
				if r == depID {
					roots = append(roots[:i], roots[i+1:]...)
					break
				}
			}
		}
	}
	return roots
}

func buildInvocation(plan *model.Plan, planID objid.ID[model.Resource]) *model.Invocation {
	roots := reduceProductions(plan)
	if len(roots) == 1 {
		for _, pos := range plan.Positions() {
			step := plan.Get(pos)
			if step.Production != nil && *step.Production == roots[0] && step.ExitCode != nil && *step.ExitCode == 0 {
				root := roots[0]
				return &model.Invocation{
					Production:         &root,
					PartialProductions: map[string]objid.ID[model.Production]{},
					Status:             model.InvocationOk,
					Plan:               planID,
				}
			}
		}
	}
	partial := make(map[string]objid.ID[model.Production], len(roots))
	for i, r := range roots {
		partial[fmt.Sprintf("partial_production:%d", i)] = r
	}
	return &model.Invocation{
		PartialProductions: partial,
		Status:             model.InvocationFail,
		Plan:               planID,
	}
}

// RunPlan rewrites nested steps, then iterates select/execute/complete
// until no ready step remains, returning the resulting Invocation.
// Grounded on execution.rs's run_plan. planID names the Resource the
// TextPlan itself was stored under, recorded on the Invocation for
// provenance.
func (sch *Scheduler) RunPlan(plan *model.Plan, planID objid.ID[model.Resource]) (*model.Invocation, error) {
	plan = RewriteNested(plan)

	for {
		step := selectStep(plan)
		if step == nil {
			break
		}
		production, productionID, err := sch.executeStep(step)
		if err != nil {
			// A Parse/NotFound/IO error while scheduling a step abandons
			// that step as a diagnostic (spec.md §7): it carries no
			// Production and its dependents stay unresolved, but the error
			// does not escalate to the caller.
			sch.Logger.Error("step abandoned", "pos", step.Pos, "source", sourceOrPos(step), "error", err)
			step.Abandoned = true
			continue
		}
		sch.completeStep(plan, step.Pos, production, productionID)
	}

	return buildInvocation(plan, planID), nil
}
