package planfile

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

// DirAccessor resolves text-plan File references against a filesystem
// directory tree, writing each file's content as a Resource on first read.
// An enrichment over the original's unconditional directory walk: entries
// matching a glob in a root-level .knitignore are skipped, using
// github.com/bmatcuk/doublestar/v4 for `**`-style patterns.
type DirAccessor struct {
	root  string
	s     store.Store
	cache map[string]objid.ID[model.Resource]
}

// NewDirAccessor roots file resolution at root.
func NewDirAccessor(root string, s store.Store) *DirAccessor {
	return &DirAccessor{root: root, s: s, cache: map[string]objid.ID[model.Resource]{}}
}

func (a *DirAccessor) ignorePatterns() []string {
	f, err := os.Open(filepath.Join(a.root, ".knitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()
	return readLines(bufio.NewScanner(f))
}

func (a *DirAccessor) ignored(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// Read implements ResourceAccessor.
func (a *DirAccessor) Read(path string) (objid.ID[model.Resource], error) {
	if id, ok := a.cache[path]; ok {
		return id, nil
	}
	data, err := os.ReadFile(filepath.Join(a.root, path))
	if err != nil {
		return objid.ID[model.Resource]{}, err
	}
	id, err := store.WriteResourceTyped(a.s, data)
	if err != nil {
		return objid.ID[model.Resource]{}, err
	}
	a.cache[path] = id
	return id, nil
}

// ForEachFileSuffix implements ResourceAccessor, walking root and calling f
// for every regular file beneath it (in sorted order, for deterministic
// diagnostics), skipping anything matched by .knitignore.
func (a *DirAccessor) ForEachFileSuffix(root string, f func(suffix string, id objid.ID[model.Resource]) error) error {
	base := filepath.Join(a.root, root)
	patterns := a.ignorePatterns()

	var suffixes []string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if a.ignored(rel, patterns) {
			return nil
		}
		suffixes = append(suffixes, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Strings(suffixes)

	for _, suffix := range suffixes {
		id, err := a.Read(strings.TrimSuffix(root, "/") + "/" + suffix)
		if err != nil {
			return err
		}
		if err := f(suffix, id); err != nil {
			return err
		}
	}
	return nil
}
