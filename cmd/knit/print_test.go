package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPrintObjectJob(t *testing.T) {
	s := newTestStore(t)
	job := &model.Job{Process: model.Process{Kind: model.ProcessIdentity}, Inputs: map[string]objid.ID[model.Resource]{}}
	id, err := store.WriteJob(s, job)
	require.NoError(t, err)

	data, err := printObject(s, "job", id.String())
	require.NoError(t, err)
	want, err := job.Encode()
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestPrintObjectUnknownType(t *testing.T) {
	s := newTestStore(t)
	_, err := printObject(s, "widget", "0000000000000000000000000000000000000000")
	assert.Error(t, err)
}
