package model

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jmou/knit/internal/attr"
	"github.com/jmou/knit/internal/objid"
)

// timeLayout matches the original implementation's chrono
// DateTime<FixedOffset> default Display/FromStr format (RFC 3339 with a
// numeric, colon-less offset, e.g. "2021-01-02T04:32:43-0800").
const timeLayout = "2006-01-02T15:04:05-0700"

// Job is the fully-resolved unit of execution: a Process plus its resolved
// input resources. Grounded on original_source/src/object.rs's Job and
// compat/object.rs's Storable impl.
type Job struct {
	Process Process
	// Inputs is keyed by the full "in/<path>" or "inref/<path>" string, not
	// just the path: the codec's flatten rule treats them as already
	// qualified field names.
	Inputs map[string]objid.ID[Resource]
}

func (Job) ObjType() string { return "job" }

func (j *Job) Encode() ([]byte, error) {
	var rec attr.Record
	rec.Set("process", j.Process.String())
	for key, id := range j.Inputs {
		rec.Set(key, id.String())
	}
	return rec.Bytes()
}

func DecodeJob(r io.Reader) (*Job, error) {
	fields, err := attr.Parse(r)
	if err != nil {
		return nil, err
	}
	processStr, err := fields.MustConsume("process")
	if err != nil {
		return nil, err
	}
	process, err := ParseProcess(processStr)
	if err != nil {
		return nil, err
	}
	j := &Job{Process: process, Inputs: map[string]objid.ID[Resource]{}}
	for key, value := range fields.Remaining() {
		if !strings.HasPrefix(key, "in/") && !strings.HasPrefix(key, "inref/") {
			return nil, fmt.Errorf("model: job: unknown key %q", key)
		}
		id, err := objid.Parse[Resource](value)
		if err != nil {
			return nil, fmt.Errorf("model: job: %s: %w", key, err)
		}
		j.Inputs[key] = id
	}
	return j, nil
}

// Production is the recorded outcome of running a Job: its exit code,
// outputs, the dependency Productions it was built from, and cache/
// provenance bookkeeping. Grounded on object.rs's Production.
type Production struct {
	Job      objid.ID[Job]
	ExitCode int32
	// Outputs is keyed "out/<path>".
	Outputs map[string]objid.ID[Resource]
	// Dependencies is keyed "dep:<path>".
	Dependencies map[string]objid.ID[Production]
	Log          *objid.ID[Resource]
	Invocation   *objid.ID[Invocation]
	Cache        *objid.ID[Production]
	Source       *string
	StartTS      *time.Time
	EndTS        *time.Time
}

func (Production) ObjType() string { return "production" }

func (p *Production) Encode() ([]byte, error) {
	var rec attr.Record
	rec.Set("job", p.Job.String())
	rec.SetInt("exit_code", p.ExitCode)
	for key, id := range p.Outputs {
		rec.Set(key, id.String())
	}
	for key, id := range p.Dependencies {
		rec.Set(key, id.String())
	}
	if p.Log != nil {
		rec.Set("log", p.Log.String())
	}
	if p.Invocation != nil {
		rec.Set("invocation", p.Invocation.String())
	}
	if p.Cache != nil {
		rec.Set("cache", p.Cache.String())
	}
	rec.SetOption("_source", p.Source)
	if p.StartTS != nil {
		rec.Set("start_ts", p.StartTS.Format(timeLayout))
	}
	if p.EndTS != nil {
		rec.Set("end_ts", p.EndTS.Format(timeLayout))
	}
	return rec.Bytes()
}

func DecodeProduction(r io.Reader) (*Production, error) {
	fields, err := attr.Parse(r)
	if err != nil {
		return nil, err
	}
	jobStr, err := fields.MustConsume("job")
	if err != nil {
		return nil, err
	}
	job, err := objid.Parse[Job](jobStr)
	if err != nil {
		return nil, err
	}
	exitCodeStr, err := fields.MustConsume("exit_code")
	if err != nil {
		return nil, err
	}
	exitCode, err := strconv.ParseInt(exitCodeStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("model: production: exit_code: %w", err)
	}

	p := &Production{
		Job:          job,
		ExitCode:     int32(exitCode),
		Outputs:      map[string]objid.ID[Resource]{},
		Dependencies: map[string]objid.ID[Production]{},
	}
	// Absent and malformed are not distinguished for these optional fields,
	// matching compat/object.rs's `.ok()` treatment.
	if v, ok := fields.Consume("log"); ok {
		if id, err := objid.Parse[Resource](v); err == nil {
			p.Log = &id
		}
	}
	if v, ok := fields.Consume("invocation"); ok {
		if id, err := objid.Parse[Invocation](v); err == nil {
			p.Invocation = &id
		}
	}
	if v, ok := fields.Consume("cache"); ok {
		if id, err := objid.Parse[Production](v); err == nil {
			p.Cache = &id
		}
	}
	if v, ok := fields.Consume("_source"); ok {
		p.Source = &v
	}
	if v, ok := fields.Consume("start_ts"); ok {
		if t, err := time.Parse(timeLayout, v); err == nil {
			p.StartTS = &t
		}
	}
	if v, ok := fields.Consume("end_ts"); ok {
		if t, err := time.Parse(timeLayout, v); err == nil {
			p.EndTS = &t
		}
	}

	for key, value := range fields.Remaining() {
		switch {
		case strings.HasPrefix(key, "dep:"):
			id, err := objid.Parse[Production](value)
			if err != nil {
				return nil, fmt.Errorf("model: production: %s: %w", key, err)
			}
			p.Dependencies[key] = id
		case strings.HasPrefix(key, "out/"):
			id, err := objid.Parse[Resource](value)
			if err != nil {
				return nil, fmt.Errorf("model: production: %s: %w", key, err)
			}
			p.Outputs[key] = id
		default:
			return nil, fmt.Errorf("model: production: unknown key %q", key)
		}
	}
	return p, nil
}

// Invocation is the record of one scheduler run over a Plan: its terminal
// Production (if the run succeeded), any partial Productions recorded along
// the way, and the overall status. Grounded on object.rs's Invocation.
type Invocation struct {
	Production *objid.ID[Production]
	// PartialProductions is keyed "partial_production:<i>", where i is the
	// root's index in the scheduler's reduction order (the map key is the
	// full prefixed string, not just the index).
	PartialProductions map[string]objid.ID[Production]
	Status             InvocationStatus
	Plan               objid.ID[Resource]
}

func (Invocation) ObjType() string { return "invocation" }

func (i *Invocation) Encode() ([]byte, error) {
	var rec attr.Record
	if i.Production != nil {
		rec.Set("production", i.Production.String())
	}
	for key, id := range i.PartialProductions {
		rec.Set(key, id.String())
	}
	rec.Set("status", i.Status.String())
	rec.Set("plan", i.Plan.String())
	return rec.Bytes()
}

func DecodeInvocation(r io.Reader) (*Invocation, error) {
	fields, err := attr.Parse(r)
	if err != nil {
		return nil, err
	}
	i := &Invocation{PartialProductions: map[string]objid.ID[Production]{}}
	if v, ok := fields.Consume("production"); ok {
		if id, err := objid.Parse[Production](v); err == nil {
			i.Production = &id
		}
	}
	planStr, err := fields.MustConsume("plan")
	if err != nil {
		return nil, err
	}
	plan, err := objid.Parse[Resource](planStr)
	if err != nil {
		return nil, err
	}
	i.Plan = plan
	statusStr, err := fields.MustConsume("status")
	if err != nil {
		return nil, err
	}
	status, err := parseInvocationStatus(statusStr)
	if err != nil {
		return nil, err
	}
	i.Status = status

	for key, value := range fields.Remaining() {
		if !strings.HasPrefix(key, "partial_production:") {
			return nil, fmt.Errorf("model: invocation: unknown key %q", key)
		}
		id, err := objid.Parse[Production](value)
		if err != nil {
			return nil, fmt.Errorf("model: invocation: %s: %w", key, err)
		}
		i.PartialProductions[key] = id
	}
	return i, nil
}
