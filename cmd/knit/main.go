// Command knit is the CLI front-end for the content-addressed build engine:
// a thin cobra wrapper whose subcommands each delegate to internal/store,
// internal/planfile, internal/scheduler and internal/runner. Grounded on
// original_source/src/main.rs's four StructOpt commands (RunJob, RunPlan,
// ShowOutput, Print), with an added `watch` subcommand, and on the teacher's
// cmd/main.go root-command wiring.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmou/knit/internal/config"
	"github.com/jmou/knit/internal/knitlog"
	"github.com/jmou/knit/internal/store"
)

var (
	v      = viper.New()
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "knit",
		Short:         "A content-addressed build engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = knitlog.New(*cfg)
			return nil
		},
	}
	if err := config.BindFlags(root, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	root.PersistentFlags().String("config", "", "config file (default is $HOME/.config/knit/config.yaml)")

	root.AddCommand(
		runJobCmd(),
		runPlanCmd(),
		showCmd(),
		printCmd(),
		watchCmd(),
	)

	cobra.OnInitialize(func() {
		if path, _ := root.PersistentFlags().GetString("config"); path != "" {
			v.SetConfigFile(path)
		} else {
			v.AddConfigPath(config.ConfigDir())
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (store.Store, error) {
	switch cfg.StoreBackend {
	case "git":
		return store.OpenGitStore(cfg.StoreRoot)
	case "dir", "":
		return store.NewDirStore(cfg.StoreRoot)
	default:
		return nil, fmt.Errorf("knit: unknown store backend %q", cfg.StoreBackend)
	}
}
