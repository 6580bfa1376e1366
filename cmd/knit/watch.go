package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jmou/knit/internal/model"
)

// watchCmd is supplemental, not present in the original: it re-runs
// run-plan whenever the plan file or an entry directly inside the resolution
// root changes on disk, using fsnotify (the teacher's own dependency for
// reloading DAG files on change). Subdirectories are not watched, so a
// change to a File input nested below the root does not trigger a re-run.
func watchCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch <plan-file>",
		Short: "Re-run a text plan whenever it or its resolution directory changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			planPath := args[0]

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			defer watcher.Close()

			run := func() {
				invocationID, invocation, err := runPlanFile(s, planPath, dir)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					return
				}
				fmt.Println(invocationID)
				if invocation.Status != model.InvocationOk {
					fmt.Fprintln(os.Stderr, "knit: invocation failed")
				}
			}
			watchPaths, err := watchTargets(planPath, dir)
			if err != nil {
				return fmt.Errorf("knit: %w", err)
			}
			for _, p := range watchPaths {
				if err := watcher.Add(p); err != nil {
					logger.Warn("watch: failed to watch path", "path", p, "error", err)
				}
			}

			run()
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
						run()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn("watch: fsnotify error", "error", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "root directory for resolving File references (default: cwd)")
	return cmd
}

// watchTargets returns the plan file itself plus the resolution root
// directory, a coarse approximation of "every resolved File input" that
// avoids re-encoding the plan (and its side effects) just to enumerate
// watch targets.
func watchTargets(planPath, dir string) ([]string, error) {
	targets := []string{planPath}
	root := dir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return append(targets, abs), nil
}
