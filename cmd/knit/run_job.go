package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmou/knit/internal/model"
	"github.com/jmou/knit/internal/objid"
	"github.com/jmou/knit/internal/runner"
	"github.com/jmou/knit/internal/store"
)

// runJobCmd implements the original's `RunJob { job_id }`: run a single
// already-stored Job by id, print the resulting Production's
// attribute-encoded form, and exit with the Production's own exit code.
func runJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <job-id>",
		Short: "Run a single already-stored job by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			jobID, err := objid.Parse[model.Job](args[0])
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			job, err := store.ReadJob(s, jobID)
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}

			r := runner.New(s, cfg.GenDir, logger)
			production, err := r.Run(jobID, job)
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			data, err := production.Encode()
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			os.Stdout.Write(data)
			if production.ExitCode != 0 {
				os.Exit(int(production.ExitCode))
			}
			return nil
		},
	}
}
