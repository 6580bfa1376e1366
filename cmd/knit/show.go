package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/store"
)

// showCmd implements the original's `ShowOutput`: resolve an Invocation id
// to its terminal Production (falling back to treating the id as a
// Production id directly), then either list every output under a `path/`
// prefix or stream a single output's bytes to stdout. The `gen/` prefix
// strip is preserved so tab-completed workdir-relative paths still work.
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <production-or-invocation-id> [path]",
		Short: "List or stream a production's outputs",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			path := "out/"
			if len(args) == 2 {
				path = args[1]
			}
			if suffix, ok := strings.CutPrefix(path, "gen/"); ok {
				path = suffix
			}

			production, err := resolveProduction(s, args[0])
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}

			if strings.HasSuffix(path, "/") {
				var outs []string
				for out := range production.Outputs {
					if strings.HasPrefix(out, path) {
						outs = append(outs, out)
					}
				}
				sort.Strings(outs)
				for _, out := range outs {
					fmt.Printf("%s %s\n", production.Outputs[out], out)
				}
				return nil
			}

			id, ok := production.Outputs[path]
			if !ok {
				return fmt.Errorf("knit: output %q not found", path)
			}
			data, err := store.ReadResourceTyped(s, id)
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func resolveProduction(s store.Store, idStr string) (*model.Production, error) {
	if invocationID, err := objid.Parse[model.Invocation](idStr); err == nil {
		if invocation, err := store.ReadInvocation(s, invocationID); err == nil {
			if invocation.Production == nil {
				return nil, fmt.Errorf("invocation %s has no production", idStr)
			}
			return store.ReadProduction(s, *invocation.Production)
		}
	}
	productionID, err := objid.Parse[model.Production](idStr)
	if err != nil {
		return nil, err
	}
	return store.ReadProduction(s, productionID)
}
