package runner

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/planfile"
	"github.com/jmou/knit/internal/scheduler"
	"github.com/jmou/knit/internal/store"
)

// Runner implements scheduler.JobRunner: it executes a fully-resolved Job
// by its Process kind. A Dynamic job recursively drives a fresh
// scheduler.Scheduler over its own Runner, so nested plans share the same
// execution machinery as the top-level one. Grounded on
// original_source/src/execution.rs's run_job/run_dynamic/JobRunner.
type Runner struct {
	Store   store.Store
	BaseDir string // root directory under which Command jobs get scratch workdirs
	Logger  *slog.Logger
}

// New constructs a Runner. A nil logger falls back to slog.Default().
func New(s store.Store, baseDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Store: s, BaseDir: baseDir, Logger: logger}
}

// Run dispatches job by its Process kind.
func (r *Runner) Run(jobID objid.ID[model.Job], job *model.Job) (*model.Production, error) {
	switch job.Process.Kind {
	case model.ProcessIdentity:
		return r.runIdentity(jobID, job)
	case model.ProcessCommand:
		return r.runCommand(jobID, job)
	case model.ProcessNested:
		// The scheduler rewrites every Nested step into Command+Dynamic
		// before a Job is ever built; a Nested Job reaching the runner is a
		// scheduler bug, not a runtime condition. Mirrors the original's
		// `Process::Nested(_) => unreachable!()`.
		panic(fmt.Sprintf("runner: job %s: nested process reached the runner", jobID))
	case model.ProcessDynamic:
		return r.runDynamic(jobID, job)
	default:
		return nil, fmt.Errorf("runner: job %s: unknown process kind %d", jobID, job.Process.Kind)
	}
}

func (r *Runner) runIdentity(jobID objid.ID[model.Job], job *model.Job) (*model.Production, error) {
	outputs := map[string]objid.ID[model.Resource]{}
	for key, id := range job.Inputs {
		if !strings.HasPrefix(key, "in/") {
			return nil, fmt.Errorf("runner: job %s: identity input %q missing in/ prefix", jobID, key)
		}
		outputs["out/"+key[len("in/"):]] = id
	}
	return &model.Production{
		Job:          jobID,
		ExitCode:     0,
		Outputs:      outputs,
		Dependencies: map[string]objid.ID[model.Production]{},
	}, nil
}

func (r *Runner) runCommand(jobID objid.ID[model.Job], job *model.Job) (*model.Production, error) {
	jobBytes, err := job.Encode()
	if err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}
	wd, err := NewWorkDir(r.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}
	retained := false
	defer func() {
		if retained {
			return
		}
		if err := wd.Release(); err != nil {
			r.Logger.Warn("failed to release workdir", "job", jobID, "dir", wd.Path(""), "error", err)
		}
	}()
	if err := writeFile(wd, "job", jobBytes); err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}
	for path, id := range job.Inputs {
		switch {
		case strings.HasPrefix(path, "in/"):
			data, err := store.ReadResourceTyped(r.Store, id)
			if err != nil {
				return nil, fmt.Errorf("runner: job %s: input %s: %w", jobID, path, err)
			}
			if err := writeFile(wd, path, data); err != nil {
				return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
			}
		case strings.HasPrefix(path, "inref/"):
			if err := writeFile(wd, path, []byte(id.String()+"\n")); err != nil {
				return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
			}
		default:
			return nil, fmt.Errorf("runner: job %s: invalid input path %q", jobID, path)
		}
	}
	env, err := jobEnviron(jobBytes)
	if err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}

	if err := wd.CreateDir("out"); err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}
	startTS := now()
	exitCode, output, err := runShell(job.Process.Tail, env, wd.Path(""))
	if err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}

	var log *objid.ID[model.Resource]
	if len(output) > 0 {
		id, err := store.WriteResourceTyped(r.Store, output)
		if err != nil {
			return nil, fmt.Errorf("runner: job %s: save log: %w", jobID, err)
		}
		log = &id
	}

	outputs := map[string]objid.ID[model.Resource]{}
	files, err := wd.ScanFiles("out")
	if err != nil {
		return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f[1])
		if err != nil {
			return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
		}
		id, err := store.WriteResourceTyped(r.Store, data)
		if err != nil {
			return nil, fmt.Errorf("runner: job %s: %w", jobID, err)
		}
		outputs["out/"+f[0]] = id
	}
	endTS := now()

	if exitCode != 0 {
		retained = true
		r.Logger.Warn("job dir retained", "job", jobID, "dir", wd.Retain())
	}

	return &model.Production{
		Job:          jobID,
		ExitCode:     exitCode,
		Outputs:      outputs,
		Log:          log,
		Dependencies: map[string]objid.ID[model.Production]{},
		StartTS:      &startTS,
		EndTS:        &endTS,
	}, nil
}

func writeFile(wd *WorkDir, path string, data []byte) error {
	w, err := wd.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(data)
	return err
}

// runDynamic implements run_dynamic: internal errors while expanding and
// running the nested plan degrade to a failed (exit_code 1) Production
// rather than propagating — "internal errors should not fail the job" per
// the original's own comment on this exact path.
func (r *Runner) runDynamic(jobID objid.ID[model.Job], job *model.Job) (*model.Production, error) {
	startTS := now()
	exitCode := int32(0)
	outputs := map[string]objid.ID[model.Resource]{}
	var invocationID *objid.ID[model.Invocation]

	invocation, err := r.tryRunDynamic(job)
	if err != nil {
		r.Logger.Error("dynamic job failed", "job", jobID, "error", err)
		exitCode = 1
	} else {
		if invocation.Status != model.InvocationOk {
			exitCode = 1
		}
		id, werr := store.WriteInvocation(r.Store, invocation)
		if werr != nil {
			r.Logger.Error("dynamic job: failed to write invocation", "job", jobID, "error", werr)
			exitCode = 1
		} else {
			invocationID = &id
			if invocation.Production != nil {
				prod, rerr := store.ReadProduction(r.Store, *invocation.Production)
				if rerr == nil {
					outputs = prod.Outputs
				}
			}
		}
	}
	endTS := now()

	return &model.Production{
		Job:          jobID,
		ExitCode:     exitCode,
		Outputs:      outputs,
		Invocation:   invocationID,
		Dependencies: map[string]objid.ID[model.Production]{},
		StartTS:      &startTS,
		EndTS:        &endTS,
	}, nil
}

// tryRunDynamic implements try_run_dynamic: reads the nested text plan from
// "in/plan", defaults every step's source to "nested:_pos:<pos>", folds
// "in/param/<name>" inputs into a synthesized or pre-existing "_param"
// Identity step, encodes against the Job's own resolved inputs, checks
// "main" is the sole terminal, and recurses into a fresh Scheduler.
func (r *Runner) tryRunDynamic(job *model.Job) (*model.Invocation, error) {
	planID, ok := job.Inputs["in/plan"]
	if !ok {
		return nil, fmt.Errorf("runner: missing in/plan input")
	}
	data, err := store.ReadResourceTyped(r.Store, planID)
	if err != nil {
		return nil, fmt.Errorf("runner: read plan: %w", err)
	}
	textPlan, err := planfile.ParseTextPlan(data)
	if err != nil {
		return nil, fmt.Errorf("runner: parse plan: %w", err)
	}

	paramIdx := -1
	for i := range textPlan.Steps {
		step := &textPlan.Steps[i]
		if step.Source == nil {
			source := "nested:_pos:" + step.Pos
			step.Source = &source
		}
		if step.Pos == "_param" {
			paramIdx = i
		}
	}
	for path, id := range job.Inputs {
		suffix, ok := strings.CutPrefix(path, "in/param/")
		if !ok {
			continue
		}
		if paramIdx == -1 {
			textPlan.Steps = append(textPlan.Steps, planfile.TextStep{
				Pos:     "_param",
				Process: model.Process{Kind: model.ProcessIdentity},
				Inputs:  map[string]planfile.TextInput{},
			})
			paramIdx = len(textPlan.Steps) - 1
		}
		textPlan.Steps[paramIdx].Inputs["in/"+suffix] = planfile.TextInput{Kind: planfile.TextInputID, ID: id}
	}

	plan, err := planfile.Encode(textPlan, &jobAccessor{job: job}, r.Store, func(format string, args ...any) {
		r.Logger.Warn(fmt.Sprintf(format, args...))
	})
	if err != nil {
		return nil, fmt.Errorf("runner: encode plan: %w", err)
	}
	// main is hardcoded as the nested flow terminal pos.
	if err := plan.CheckTerminal("main"); err != nil {
		return nil, err
	}

	sch := scheduler.New(r.Store, r, r.Logger)
	return sch.RunPlan(plan, planID)
}

func now() time.Time { return time.Now() }
