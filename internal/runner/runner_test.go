package runner

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, store.Store) {
	t.Helper()
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	return New(s, t.TempDir(), logger), s
}

func mustWriteJob(t *testing.T, s store.Store, job *model.Job) objid.ID[model.Job] {
	t.Helper()
	id, err := store.WriteJob(s, job)
	require.NoError(t, err)
	return id
}

func TestRunIdentityRenamesInputsToOutputs(t *testing.T) {
	r, s := newTestRunner(t)
	dataID, err := store.WriteResourceTyped(s, []byte("hello\n"))
	require.NoError(t, err)

	job := &model.Job{
		Process: model.Process{Kind: model.ProcessIdentity},
		Inputs:  map[string]objid.ID[model.Resource]{"in/greeting": dataID},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(0), prod.ExitCode)
	assert.Equal(t, dataID, prod.Outputs["out/greeting"])
}

func TestRunIdentityRejectsNonInInput(t *testing.T) {
	r, s := newTestRunner(t)
	dataID, err := store.WriteResourceTyped(s, []byte("x\n"))
	require.NoError(t, err)
	job := &model.Job{
		Process: model.Process{Kind: model.ProcessIdentity},
		Inputs:  map[string]objid.ID[model.Resource]{"inref/x": dataID},
	}
	jobID := mustWriteJob(t, s, job)

	_, err = r.Run(jobID, job)
	assert.Error(t, err)
}

func TestRunCommandCapturesOutputsAndLog(t *testing.T) {
	r, s := newTestRunner(t)
	inputID, err := store.WriteResourceTyped(s, []byte("world\n"))
	require.NoError(t, err)

	job := &model.Job{
		Process: model.Process{Kind: model.ProcessCommand, Tail: `echo hi; cat in/name > out/greeting`},
		Inputs:  map[string]objid.ID[model.Resource]{"in/name": inputID},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(0), prod.ExitCode)
	require.NotNil(t, prod.Log)
	logBytes, err := store.ReadResourceTyped(s, *prod.Log)
	require.NoError(t, err)
	assert.Contains(t, string(logBytes), "hi")

	outID, ok := prod.Outputs["out/greeting"]
	require.True(t, ok)
	outBytes, err := store.ReadResourceTyped(s, outID)
	require.NoError(t, err)
	assert.Equal(t, "world\n", string(outBytes))
}

func TestRunCommandReportsNonzeroExitAndRetainsWorkdir(t *testing.T) {
	r, s := newTestRunner(t)
	job := &model.Job{
		Process: model.Process{Kind: model.ProcessCommand, Tail: "exit 3"},
		Inputs:  map[string]objid.ID[model.Resource]{},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(3), prod.ExitCode)
	entries, err := os.ReadDir(r.BaseDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the failed job's workdir stays on disk")
}

func TestRunCommandExposesJobFieldsAsEnv(t *testing.T) {
	r, s := newTestRunner(t)
	job := &model.Job{
		Process: model.Process{Kind: model.ProcessCommand, Tail: `printf '%s' "$process" > out/result`},
		Inputs:  map[string]objid.ID[model.Resource]{},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	outID, ok := prod.Outputs["out/result"]
	require.True(t, ok)
	data, err := store.ReadResourceTyped(s, outID)
	require.NoError(t, err)
	assert.Equal(t, job.Process.String(), string(data))
}

func TestRunNestedPanics(t *testing.T) {
	r, s := newTestRunner(t)
	job := &model.Job{Process: model.Process{Kind: model.ProcessNested, Tail: "plan"}}
	jobID := mustWriteJob(t, s, job)
	assert.Panics(t, func() { _, _ = r.Run(jobID, job) })
}

func TestRunDynamicMissingPlanDegradesToFailure(t *testing.T) {
	r, s := newTestRunner(t)
	job := &model.Job{
		Process: model.Process{Kind: model.ProcessDynamic},
		Inputs:  map[string]objid.ID[model.Resource]{},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prod.ExitCode)
	assert.Empty(t, prod.Outputs)
	assert.Nil(t, prod.Invocation)
}

func TestRunDynamicRunsNestedPlanAndFoldsParams(t *testing.T) {
	r, s := newTestRunner(t)
	paramID, err := store.WriteResourceTyped(s, []byte("42\n"))
	require.NoError(t, err)

	planText := "_pos=main\nprocess=identity\nin/value=param:n\n\n"
	planID, err := store.WriteResourceTyped(s, []byte(planText))
	require.NoError(t, err)

	job := &model.Job{
		Process: model.Process{Kind: model.ProcessDynamic},
		Inputs: map[string]objid.ID[model.Resource]{
			"in/plan":    planID,
			"in/param/n": paramID,
		},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(0), prod.ExitCode)
	require.NotNil(t, prod.Invocation)

	outID, ok := prod.Outputs["out/value"]
	require.True(t, ok)
	data, err := store.ReadResourceTyped(s, outID)
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))
}

func TestRunDynamicWithoutMainFailsCheckTerminal(t *testing.T) {
	r, s := newTestRunner(t)
	planText := "_pos=other\nprocess=identity\n\n"
	planID, err := store.WriteResourceTyped(s, []byte(planText))
	require.NoError(t, err)

	job := &model.Job{
		Process: model.Process{Kind: model.ProcessDynamic},
		Inputs:  map[string]objid.ID[model.Resource]{"in/plan": planID},
	}
	jobID := mustWriteJob(t, s, job)

	prod, err := r.Run(jobID, job)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prod.ExitCode)
}
