// Package model implements the object model: the types every other package
// builds or consumes (Resource, Job, Production, Invocation, Plan, Step) and
// their attribute-codec Encode/Decode. See spec.md §4.C.
package model

import (
	"fmt"
	"strings"

	"github.com/jmou/knit/internal/objid"
)

// Resource is the phantom type tag for raw-bytes objects. Resource content
// is never attribute-encoded; it is whatever bytes a step wrote to an
// output path, stored and read via the store's resource fast path.
type Resource struct{}

// ProcessKind distinguishes the four ways a Job can be executed.
type ProcessKind int

const (
	ProcessIdentity ProcessKind = iota
	ProcessCommand
	ProcessNested
	ProcessDynamic
)

// Process names how a Job's inputs become its outputs. Command and Nested
// carry a tail string (a shell command, or a sub-plan source respectively);
// Identity and Dynamic carry none.
type Process struct {
	Kind ProcessKind
	Tail string
}

func (p Process) String() string {
	switch p.Kind {
	case ProcessIdentity:
		return "identity"
	case ProcessDynamic:
		return "dynamic"
	case ProcessCommand:
		return "command:" + p.Tail
	case ProcessNested:
		return "nested:" + p.Tail
	default:
		return fmt.Sprintf("process(%d)", p.Kind)
	}
}

// ParseProcess parses the "identity" / "dynamic" / "command:<tail>" /
// "nested:<tail>" encoding.
func ParseProcess(s string) (Process, error) {
	switch s {
	case "identity":
		return Process{Kind: ProcessIdentity}, nil
	case "dynamic":
		return Process{Kind: ProcessDynamic}, nil
	}
	kind, tail, ok := strings.Cut(s, ":")
	if !ok {
		return Process{}, fmt.Errorf("model: malformed process %q", s)
	}
	switch kind {
	case "command":
		return Process{Kind: ProcessCommand, Tail: tail}, nil
	case "nested":
		return Process{Kind: ProcessNested, Tail: tail}, nil
	default:
		return Process{}, fmt.Errorf("model: unsupported process kind %q", kind)
	}
}

// InputKind distinguishes a resolved resource reference (Id) from an
// unresolved reference into another step's eventual output (Pos).
type InputKind int

const (
	InputID InputKind = iota
	InputPos
)

// Input is a Job's input before (Pos) or after (Id) the producing step has
// run. A Pos input is a contract violation once the step is turned into a
// Job: the scheduler's buildJob panics, rather than returning an error, when
// this happens.
type Input struct {
	Kind InputKind
	ID   objid.ID[Resource]
	Pos  string
	Path string
}

func (in Input) String() string {
	switch in.Kind {
	case InputID:
		return in.ID.String()
	case InputPos:
		return "_pos:" + in.Pos + ":" + in.Path
	default:
		return fmt.Sprintf("input(%d)", in.Kind)
	}
}

// ParseInput parses a bare hex id, or "_pos:<pos>:<path>".
func ParseInput(s string) (Input, error) {
	prefix, suffix, ok := strings.Cut(s, ":")
	if !ok {
		id, err := objid.Parse[Resource](s)
		if err != nil {
			return Input{}, err
		}
		return Input{Kind: InputID, ID: id}, nil
	}
	if prefix != "_pos" {
		return Input{}, fmt.Errorf("model: unknown input type %q", prefix)
	}
	pos, path, ok := strings.Cut(suffix, ":")
	if !ok {
		return Input{}, fmt.Errorf("model: expected ':' in _pos input %q", s)
	}
	return Input{Kind: InputPos, Pos: pos, Path: path}, nil
}

// InvocationStatus is the terminal outcome of running a plan to a terminal
// step.
type InvocationStatus int

const (
	InvocationOk InvocationStatus = iota
	InvocationFail
)

func (s InvocationStatus) String() string {
	if s == InvocationOk {
		return "ok"
	}
	return "fail"
}

func parseInvocationStatus(s string) (InvocationStatus, error) {
	switch s {
	case "ok":
		return InvocationOk, nil
	case "fail":
		return InvocationFail, nil
	default:
		return 0, fmt.Errorf("model: invalid status %q", s)
	}
}
