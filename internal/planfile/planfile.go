// Package planfile implements the text-plan parser and encoder of
// spec.md §4.D: parsing a multi-record text plan and resolving its
// File/Value/Param inputs against a ResourceAccessor and Store into a
// canonical model.Plan.
package planfile

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // position naming, not a security boundary
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmou/knit/internal/attr"
	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

// TextInputKind distinguishes the four ways a text-plan input can be
// spelled.
type TextInputKind int

const (
	TextInputID TextInputKind = iota
	TextInputFile
	TextInputPos
	TextInputValue
)

// TextInput is an as-written plan input, before resolution. Grounded on
// original_source/src/plan.rs's TextInput.
type TextInput struct {
	Kind TextInputKind
	ID   objid.ID[model.Resource]
	File string
	Pos  string
	Path string
	// Value is the inline payload. A trailing newline is appended when
	// written as a Resource, matching the original's `value.push('\n')`.
	Value string
}

// ParseTextInput parses a bare hex id, "file:<path>", "_pos:<step>:<path>",
// "inline:<value>", or the "param:<name>" sugar (which desugars to
// Pos("_param", name)).
func ParseTextInput(s string) (TextInput, error) {
	prefix, suffix, ok := strings.Cut(s, ":")
	if !ok {
		id, err := objid.Parse[model.Resource](s)
		if err != nil {
			return TextInput{}, err
		}
		return TextInput{Kind: TextInputID, ID: id}, nil
	}
	switch prefix {
	case "file":
		return TextInput{Kind: TextInputFile, File: suffix}, nil
	case "_pos":
		pos, path, ok := strings.Cut(suffix, ":")
		if !ok {
			return TextInput{}, fmt.Errorf("planfile: expected ':' in _pos input %q", s)
		}
		return TextInput{Kind: TextInputPos, Pos: pos, Path: path}, nil
	case "inline":
		return TextInput{Kind: TextInputValue, Value: suffix}, nil
	case "param":
		return TextInput{Kind: TextInputPos, Pos: "_param", Path: suffix}, nil
	default:
		return TextInput{}, fmt.Errorf("planfile: unknown input type %q", prefix)
	}
}

// TextStep is one as-written record of a TextPlan.
type TextStep struct {
	Pos     string
	Source  *string
	Process model.Process
	// Inputs is keyed by the full "in/<path>" or "inref/<path>" string.
	Inputs map[string]TextInput
}

func parseTextStep(raw []byte) (TextStep, error) {
	fields, err := attr.Parse(bytes.NewReader(raw))
	if err != nil {
		return TextStep{}, err
	}
	pos, err := fields.MustConsume("_pos")
	if err != nil {
		return TextStep{}, err
	}
	var source *string
	if v, ok := fields.Consume("_source"); ok {
		source = &v
	}
	processStr, err := fields.MustConsume("process")
	if err != nil {
		return TextStep{}, err
	}
	process, err := model.ParseProcess(processStr)
	if err != nil {
		return TextStep{}, err
	}
	step := TextStep{Pos: pos, Source: source, Process: process, Inputs: map[string]TextInput{}}
	for key, value := range fields.Remaining() {
		if !strings.HasPrefix(key, "in/") && !strings.HasPrefix(key, "inref/") {
			return TextStep{}, fmt.Errorf("planfile: unknown key %q", key)
		}
		input, err := ParseTextInput(value)
		if err != nil {
			return TextStep{}, fmt.Errorf("planfile: %s: %w", key, err)
		}
		step.Inputs[key] = input
	}
	return step, nil
}

// TextPlan is a sequence of TextSteps, as parsed from or rendered to the
// blank-line-separated record format.
type TextPlan struct {
	Steps []TextStep
}

// ParseTextPlan splits data on "\n\n" into records, ignoring a trailing
// empty record.
func ParseTextPlan(data []byte) (*TextPlan, error) {
	var steps []TextStep
	for _, raw := range bytes.Split(data, []byte("\n\n")) {
		if len(raw) == 0 {
			continue
		}
		step, err := parseTextStep(raw)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return &TextPlan{Steps: steps}, nil
}

// Bytes renders the plan in the same record format: each step's attribute
// record, followed by a blank line.
func (p *TextPlan) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	for _, step := range p.Steps {
		var rec attr.Record
		rec.Set("_pos", step.Pos)
		rec.SetOption("_source", step.Source)
		rec.Set("process", step.Process.String())
		for key, in := range step.Inputs {
			rec.Set(key, textInputString(in))
		}
		line, err := rec.Bytes()
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func textInputString(in TextInput) string {
	switch in.Kind {
	case TextInputID:
		return in.ID.String()
	case TextInputFile:
		return "file:" + in.File
	case TextInputPos:
		return "_pos:" + in.Pos + ":" + in.Path
	case TextInputValue:
		return "inline:" + in.Value
	default:
		return ""
	}
}

// ResourceAccessor resolves File references during encoding: a single
// file's content id, or a directory's files by suffix relative to root.
// Grounded on original_source/src/plan.rs's ResourceAccessor trait.
type ResourceAccessor interface {
	Read(path string) (objid.ID[model.Resource], error)
	// ForEachFileSuffix calls f for every file beneath root, passing the
	// path relative to root (the "suffix") and its resolved content id.
	ForEachFileSuffix(root string, f func(suffix string, id objid.ID[model.Resource]) error) error
}

// Warnf is called by Encode to report non-fatal diagnostics (an empty
// directory expansion). Tests and callers that don't care may pass nil,
// in which case warnings are silently dropped.
type Warnf func(format string, args ...any)

func makeIdentityStep(source string, id objid.ID[model.Resource]) *model.Step {
	sum := sha1.Sum([]byte(source)) //nolint:gosec // position naming, not a security boundary
	name := hex.EncodeToString(sum[:])
	step := model.NewStep(name, model.Process{Kind: model.ProcessIdentity})
	step.Inputs["in/_"] = model.Input{Kind: model.InputID, ID: id}
	step.Source = &source
	return step
}

func addFileInput(path string, id objid.ID[model.Resource], plan *model.Plan) model.Input {
	source := "file:" + path
	step := makeIdentityStep(source, id)
	plan.Add(step)
	return model.Input{Kind: model.InputPos, Pos: step.Pos, Path: "out/_"}
}

// Encode resolves a TextPlan's File/Value/Param inputs against accessor and
// s, producing the scheduler's canonical Plan. Grounded on
// original_source/src/plan.rs's TextPlan::encode.
func Encode(tp *TextPlan, accessor ResourceAccessor, s store.Store, warn Warnf) (*model.Plan, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	plan := model.NewPlan()
	for _, textStep := range tp.Steps {
		stepSource := textStep.Pos
		if textStep.Source != nil {
			stepSource = *textStep.Source
		}
		inputs := map[string]model.Input{}
		for inputKey, textInput := range textStep.Inputs {
			switch textInput.Kind {
			case TextInputID:
				inputs[inputKey] = model.Input{Kind: model.InputID, ID: textInput.ID}

			case TextInputFile:
				path := textInput.File
				if strings.HasSuffix(inputKey, "/") && strings.HasSuffix(path, "/") {
					entries := 0
					err := accessor.ForEachFileSuffix(path, func(suffix string, id objid.ID[model.Resource]) error {
						entries++
						input := addFileInput(path+suffix, id, plan)
						inputs[inputKey+suffix] = input
						return nil
					})
					if err != nil {
						return nil, fmt.Errorf("planfile: in step %s: %w", stepSource, err)
					}
					if entries == 0 {
						warn("step %s empty input directory %s", stepSource, path)
					}
					continue
				}
				id, err := accessor.Read(path)
				if err != nil {
					return nil, fmt.Errorf("planfile: in step %s: %w", stepSource, err)
				}
				inputs[inputKey] = addFileInput(path, id, plan)

			case TextInputPos:
				inputs[inputKey] = model.Input{Kind: model.InputPos, Pos: textInput.Pos, Path: textInput.Path}

			case TextInputValue:
				value := textInput.Value
				source := "value:" + value
				id, err := store.WriteResourceTyped(s, []byte(value+"\n"))
				if err != nil {
					return nil, fmt.Errorf("planfile: in step %s: %w", stepSource, err)
				}
				step := makeIdentityStep(source, id)
				plan.Add(step)
				inputs[inputKey] = model.Input{Kind: model.InputPos, Pos: step.Pos, Path: "out/_"}

			default:
				return nil, fmt.Errorf("planfile: unknown text input kind %d", textInput.Kind)
			}
		}
		step := model.NewStep(textStep.Pos, textStep.Process)
		step.Source = textStep.Source
		step.Inputs = inputs
		plan.Add(step)
	}
	return plan, nil
}

// readLines is a small helper used by DirAccessor to read .knitignore.
func readLines(r *bufio.Scanner) []string {
	var lines []string
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
