package planfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextPlanIgnoresTrailingBlankRecord(t *testing.T) {
	raw := "_pos=main\nprocess=identity\n\n"
	tp, err := ParseTextPlan([]byte(raw))
	require.NoError(t, err)
	require.Len(t, tp.Steps, 1)
	assert.Equal(t, "main", tp.Steps[0].Pos)
}

func TestParseTextInputVariants(t *testing.T) {
	id, err := ParseTextInput("file:data/in.txt")
	require.NoError(t, err)
	assert.Equal(t, TextInput{Kind: TextInputFile, File: "data/in.txt"}, id)

	pos, err := ParseTextInput("_pos:main@0:out/_")
	require.NoError(t, err)
	assert.Equal(t, TextInput{Kind: TextInputPos, Pos: "main@0", Path: "out/_"}, pos)

	val, err := ParseTextInput("inline:hello")
	require.NoError(t, err)
	assert.Equal(t, TextInput{Kind: TextInputValue, Value: "hello"}, val)

	param, err := ParseTextInput("param:name")
	require.NoError(t, err)
	assert.Equal(t, TextInput{Kind: TextInputPos, Pos: "_param", Path: "name"}, param)
}

func TestEncodeValueInputSharesIdentityStep(t *testing.T) {
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	tp := &TextPlan{Steps: []TextStep{
		{
			Pos:     "main",
			Process: model.Process{Kind: model.ProcessCommand, Tail: "cat in/a in/b"},
			Inputs: map[string]TextInput{
				"in/a": {Kind: TextInputValue, Value: "hello"},
				"in/b": {Kind: TextInputValue, Value: "hello"},
			},
		},
	}}
	plan, err := Encode(tp, NewDirAccessor(t.TempDir(), s), s, nil)
	require.NoError(t, err)

	main := plan.Get("main")
	require.NotNil(t, main)
	inA := main.Inputs["in/a"]
	inB := main.Inputs["in/b"]
	assert.Equal(t, model.InputPos, inA.Kind)
	assert.Equal(t, inA.Pos, inB.Pos, "identical inline values should share one identity step")
	assert.Equal(t, 2, plan.Len()) // one identity step + main
}

func TestEncodeFileInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("content"), 0o644))
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	tp := &TextPlan{Steps: []TextStep{
		{
			Pos:     "main",
			Process: model.Process{Kind: model.ProcessCommand, Tail: "cat in/a"},
			Inputs: map[string]TextInput{
				"in/a": {Kind: TextInputFile, File: "in.txt"},
			},
		},
	}}
	plan, err := Encode(tp, NewDirAccessor(dir, s), s, nil)
	require.NoError(t, err)
	main := plan.Get("main")
	require.NotNil(t, main)
	inA := main.Inputs["in/a"]
	require.Equal(t, model.InputPos, inA.Kind)
	identity := plan.Get(inA.Pos)
	require.NotNil(t, identity)
	require.NotNil(t, identity.Source)
	assert.Equal(t, "file:in.txt", *identity.Source)
}

func TestEncodeDirectoryExpansionWarnsOnEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	tp := &TextPlan{Steps: []TextStep{
		{
			Pos:     "main",
			Process: model.Process{Kind: model.ProcessCommand, Tail: "ls in/"},
			Inputs: map[string]TextInput{
				"in/": {Kind: TextInputFile, File: "empty/"},
			},
		},
	}}
	var warned []string
	_, err = Encode(tp, NewDirAccessor(dir, s), s, func(format string, args ...any) {
		warned = append(warned, format)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, warned)
}

func TestPlanCheckTerminalViaEncode(t *testing.T) {
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	tp := &TextPlan{Steps: []TextStep{
		{Pos: "main", Process: model.Process{Kind: model.ProcessCommand, Tail: "true"}, Inputs: map[string]TextInput{}},
	}}
	plan, err := Encode(tp, NewDirAccessor(t.TempDir(), s), s, nil)
	require.NoError(t, err)
	assert.NoError(t, plan.CheckTerminal("main"))
}

func TestTextPlanBytesRoundTrip(t *testing.T) {
	source := "unit:flow.unit"
	id := objid.Sum([]byte("x"))
	tp := &TextPlan{Steps: []TextStep{
		{
			Pos:     "main",
			Source:  &source,
			Process: model.Process{Kind: model.ProcessIdentity},
			Inputs: map[string]TextInput{
				"in/_": {Kind: TextInputID, ID: objid.New[model.Resource](id)},
			},
		},
	}}
	data, err := tp.Bytes()
	require.NoError(t, err)
	got, err := ParseTextPlan(data)
	require.NoError(t, err)
	assert.Equal(t, tp, got)
}
