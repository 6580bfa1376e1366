package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/planfile"
	"github.com/jmou/knit/internal/runner"
	"github.com/jmou/knit/internal/scheduler"
	"github.com/jmou/knit/internal/store"
)

// runPlanCmd implements the original's `RunPlan { plan_path, dir }`: parse a
// TextPlan file, resolve its File references against --dir, encode and run
// it, print the Invocation id, and exit 1 on a non-Ok status.
func runPlanCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "run-plan <plan-file>",
		Short: "Parse, encode and run a text plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			invocationID, invocation, err := runPlanFile(s, args[0], dir)
			if err != nil {
				return err
			}
			fmt.Println(invocationID)
			if invocation.Status != model.InvocationOk {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "root directory for resolving File references (default: cwd)")
	return cmd
}

func runPlanFile(s store.Store, planPath, dir string) (objid.ID[model.Invocation], *model.Invocation, error) {
	var zero objid.ID[model.Invocation]

	data, err := os.ReadFile(planPath)
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}
	textPlan, err := planfile.ParseTextPlan(data)
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}
	planID, err := store.WriteResourceTyped(s, data)
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}

	accessor := planfile.NewDirAccessor(dir, s)
	plan, err := planfile.Encode(textPlan, accessor, s, func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, "warn: "+format+"\n", a...)
	})
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}

	r := runner.New(s, cfg.GenDir, logger)
	sch := scheduler.New(s, r, logger)
	invocation, err := sch.RunPlan(plan, planID)
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}
	invocationID, err := store.WriteInvocation(s, invocation)
	if err != nil {
		return zero, nil, fmt.Errorf("knit: %w", err)
	}
	return invocationID, invocation, nil
}
