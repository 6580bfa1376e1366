package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
)

// jobAccessor lets a Dynamic job's own resolved inputs serve as the
// ResourceAccessor for re-encoding its nested text plan: a sub-plan's
// File("p") resolves against "in/files/p" on the parent Job, and a
// directory File("p/") resolves against every "in/files/p/..." input.
// Grounded on original_source/src/execution.rs's `impl ResourceAccessor for
// Job`.
type jobAccessor struct {
	job *model.Job
}

func (a *jobAccessor) Read(path string) (objid.ID[model.Resource], error) {
	id, ok := a.job.Inputs["in/files/"+path]
	if !ok {
		return objid.ID[model.Resource]{}, fmt.Errorf("runner: missing input %q", path)
	}
	return id, nil
}

func (a *jobAccessor) ForEachFileSuffix(root string, f func(suffix string, id objid.ID[model.Resource]) error) error {
	prefix := "in/files/" + root
	suffixes := make([]string, 0, len(a.job.Inputs))
	byPath := map[string]objid.ID[model.Resource]{}
	for path, id := range a.job.Inputs {
		if suffix, ok := strings.CutPrefix(path, prefix); ok {
			suffixes = append(suffixes, suffix)
			byPath[suffix] = id
		}
	}
	sort.Strings(suffixes)
	for _, suffix := range suffixes {
		if err := f(suffix, byPath[suffix]); err != nil {
			return err
		}
	}
	return nil
}
