package store

import (
	"testing"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dirStore, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	gitStore, err := OpenGitStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{"dir": dirStore, "git": gitStore}
}

func TestWriteReadResourceRoundTrip(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.WriteResource([]byte("hello\n"))
			require.NoError(t, err)
			got, err := s.ReadResource(id)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello\n"), got)
		})
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			id1, err := s.Write(ObjTypeResource, []byte("same"))
			require.NoError(t, err)
			id2, err := s.Write(ObjTypeResource, []byte("same"))
			require.NoError(t, err)
			assert.Equal(t, id1, id2)
		})
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read(ObjTypeResource, objid.Sum([]byte("never written")))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestIdenticalContentSameIDAcrossBackends(t *testing.T) {
	stores := newStores(t)
	id1, err := stores["dir"].WriteResource([]byte("cross-backend"))
	require.NoError(t, err)
	id2, err := stores["git"].WriteResource([]byte("cross-backend"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestJobCacheRoundTrip(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			jobID := objid.Sum([]byte("job-x"))
			_, found, err := s.ReadJobCache(jobID)
			require.NoError(t, err)
			assert.False(t, found)

			prodID := objid.Sum([]byte("production-x"))
			require.NoError(t, s.WriteJobCache(jobID, prodID))
			got, found, err := s.ReadJobCache(jobID)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, prodID, got)

			prodID2 := objid.Sum([]byte("production-y"))
			require.NoError(t, s.WriteJobCache(jobID, prodID2))
			got, found, err = s.ReadJobCache(jobID)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, prodID2, got)
		})
	}
}

func TestWriteReadJobTyped(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			j := &model.Job{
				Process: model.Process{Kind: model.ProcessCommand, Tail: "echo hi"},
				Inputs:  map[string]objid.ID[model.Resource]{},
			}
			id, err := WriteJob(s, j)
			require.NoError(t, err)
			got, err := ReadJob(s, id)
			require.NoError(t, err)
			assert.Equal(t, j, got)
		})
	}
}
