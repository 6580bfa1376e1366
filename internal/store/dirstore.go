package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmou/knit/internal/objid"
)

// DirStore is a filesystem content-addressed store using a loose-object
// layout, grounded on the reference-name scheme of spec.md §6 and the
// object layout convention git itself uses (fanned out by the first byte of
// the hex id to keep directories small).
type DirStore struct {
	root string
}

// NewDirStore opens (creating if absent) a DirStore rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("store: dirstore: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "refs", "job"), 0o755); err != nil {
		return nil, fmt.Errorf("store: dirstore: %w", err)
	}
	return &DirStore{root: dir}, nil
}

func (d *DirStore) objectPath(objtype string, id objid.Raw) string {
	hex := id.Hex()
	return filepath.Join(d.root, "objects", objtype, hex[:2], hex[2:])
}

// Write implements Store.
func (d *DirStore) Write(objtype string, value []byte) (objid.Raw, error) {
	id := objid.Sum(value)
	path := d.objectPath(objtype, id)
	if _, err := os.Stat(path); err == nil {
		return id, nil // idempotent: identical content already present
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return objid.Raw{}, fmt.Errorf("store: dirstore: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return objid.Raw{}, fmt.Errorf("store: dirstore: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return objid.Raw{}, fmt.Errorf("store: dirstore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return objid.Raw{}, fmt.Errorf("store: dirstore: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return objid.Raw{}, fmt.Errorf("store: dirstore: %w", err)
	}
	return id, nil
}

// Read implements Store.
func (d *DirStore) Read(objtype string, id objid.Raw) ([]byte, error) {
	data, err := os.ReadFile(d.objectPath(objtype, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, objtype, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: dirstore: %w", err)
	}
	return data, nil
}

// WriteResource implements Store.
func (d *DirStore) WriteResource(value []byte) (objid.Raw, error) {
	return d.Write(ObjTypeResource, value)
}

// ReadResource implements Store.
func (d *DirStore) ReadResource(id objid.Raw) ([]byte, error) {
	return d.Read(ObjTypeResource, id)
}

func (d *DirStore) jobCachePath(jobID objid.Raw) string {
	return filepath.Join(d.root, "refs", "job", jobID.Hex(), "lastproduction")
}

// WriteJobCache implements Store.
func (d *DirStore) WriteJobCache(jobID objid.Raw, productionID objid.Raw) error {
	path := d.jobCachePath(jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: dirstore: %w", err)
	}
	// Last-writer-wins: an ordinary, non-atomic overwrite suffices since
	// the cache is explicitly a hint (spec.md §5), not a correctness
	// dependency.
	if err := os.WriteFile(path, []byte(productionID.Hex()), 0o644); err != nil {
		return fmt.Errorf("store: dirstore: %w", err)
	}
	return nil
}

// ReadJobCache implements Store.
func (d *DirStore) ReadJobCache(jobID objid.Raw) (objid.Raw, bool, error) {
	data, err := os.ReadFile(d.jobCachePath(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return objid.Raw{}, false, nil
	}
	if err != nil {
		return objid.Raw{}, false, fmt.Errorf("store: dirstore: %w", err)
	}
	id, err := objid.ParseRaw(string(data))
	if err != nil {
		return objid.Raw{}, false, fmt.Errorf("store: dirstore: job cache: %w", err)
	}
	return id, true, nil
}
