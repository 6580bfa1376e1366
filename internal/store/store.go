// Package store implements the Store contract of spec.md §4.A: write/read
// of attribute-encoded objects and raw resource bytes, plus the job cache
// named-reference side table. Two backends are provided: DirStore (a loose
// filesystem layout) and GitStore (backed by a real git object database via
// go-git). Both compute identifiers identically (objid.Sum, a git blob
// hash), so a Production written by one backend names the same object a
// Production written by the other would.
package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
)

// Object type tags. Not part of the on-disk content; they only disambiguate
// intent and may be used by a backend to route to distinct namespaces.
const (
	ObjTypeResource   = "resource"
	ObjTypeJob        = "job"
	ObjTypeProduction = "production"
	ObjTypeInvocation = "invocation"
)

// ErrNotFound is returned by Read when the id is unknown to the store.
var ErrNotFound = errors.New("store: not found")

// ErrMalformed is returned by ReadJob, ReadProduction and ReadInvocation
// when the stored bytes fail to parse.
var ErrMalformed = errors.New("store: malformed")

// Store is the backing content-addressed blob store plus the job-cache
// named-reference side table. Implementations: DirStore, GitStore.
type Store interface {
	// Write serializes value and writes it, returning its content id.
	// Idempotent: writing identical bytes returns the same id.
	Write(objtype string, value []byte) (objid.Raw, error)
	// Read fetches bytes previously written under objtype. Returns
	// ErrNotFound if id is unknown.
	Read(objtype string, id objid.Raw) ([]byte, error)

	// WriteResource and ReadResource are the raw-bytes fast path for
	// Resource objects (whose serialization is exactly the bytes).
	WriteResource(value []byte) (objid.Raw, error)
	ReadResource(id objid.Raw) ([]byte, error)

	// WriteJobCache associates the last Production known to satisfy jobID.
	// Last writer wins.
	WriteJobCache(jobID objid.Raw, productionID objid.Raw) error
	// ReadJobCache retrieves the cached Production for jobID, if any. The
	// bool is false, with a nil error, when no entry exists.
	ReadJobCache(jobID objid.Raw) (objid.Raw, bool, error)
}

// WriteJob encodes and writes a Job, returning its typed id.
func WriteJob(s Store, j *model.Job) (objid.ID[model.Job], error) {
	data, err := j.Encode()
	if err != nil {
		return objid.ID[model.Job]{}, err
	}
	raw, err := s.Write(ObjTypeJob, data)
	if err != nil {
		return objid.ID[model.Job]{}, err
	}
	return objid.New[model.Job](raw), nil
}

// ReadJob reads and decodes a Job.
func ReadJob(s Store, id objid.ID[model.Job]) (*model.Job, error) {
	data, err := s.Read(ObjTypeJob, id.Raw())
	if err != nil {
		return nil, err
	}
	j, err := model.DecodeJob(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: job %s: %v", ErrMalformed, id, err)
	}
	return j, nil
}

// WriteProduction encodes and writes a Production, returning its typed id.
func WriteProduction(s Store, p *model.Production) (objid.ID[model.Production], error) {
	data, err := p.Encode()
	if err != nil {
		return objid.ID[model.Production]{}, err
	}
	raw, err := s.Write(ObjTypeProduction, data)
	if err != nil {
		return objid.ID[model.Production]{}, err
	}
	return objid.New[model.Production](raw), nil
}

// ReadProduction reads and decodes a Production.
func ReadProduction(s Store, id objid.ID[model.Production]) (*model.Production, error) {
	data, err := s.Read(ObjTypeProduction, id.Raw())
	if err != nil {
		return nil, err
	}
	p, err := model.DecodeProduction(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: production %s: %v", ErrMalformed, id, err)
	}
	return p, nil
}

// WriteInvocation encodes and writes an Invocation, returning its typed id.
func WriteInvocation(s Store, inv *model.Invocation) (objid.ID[model.Invocation], error) {
	data, err := inv.Encode()
	if err != nil {
		return objid.ID[model.Invocation]{}, err
	}
	raw, err := s.Write(ObjTypeInvocation, data)
	if err != nil {
		return objid.ID[model.Invocation]{}, err
	}
	return objid.New[model.Invocation](raw), nil
}

// ReadInvocation reads and decodes an Invocation.
func ReadInvocation(s Store, id objid.ID[model.Invocation]) (*model.Invocation, error) {
	data, err := s.Read(ObjTypeInvocation, id.Raw())
	if err != nil {
		return nil, err
	}
	inv, err := model.DecodeInvocation(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invocation %s: %v", ErrMalformed, id, err)
	}
	return inv, nil
}

// WriteResourceTyped writes raw bytes and returns a typed Resource id.
func WriteResourceTyped(s Store, value []byte) (objid.ID[model.Resource], error) {
	raw, err := s.WriteResource(value)
	if err != nil {
		return objid.ID[model.Resource]{}, err
	}
	return objid.New[model.Resource](raw), nil
}

// ReadResourceTyped reads raw bytes for a typed Resource id.
func ReadResourceTyped(s Store, id objid.ID[model.Resource]) ([]byte, error) {
	return s.ReadResource(id.Raw())
}

// jobCacheRefName is the reference-name scheme from spec.md §6.
func jobCacheRefName(jobID objid.Raw) string {
	return "refs/job/" + jobID.Hex() + "/lastproduction"
}
