// Package config loads knit's runtime configuration: built-in defaults
// overlaid with an optional YAML file and then with command-line flag
// overrides; environment variables are not consulted. Grounded on the teacher's cmd/config.go flag-binding idiom
// (commandLineFlag, initCommonFlags/bindCommonFlags) and cmd/main.go's
// viper.AddConfigPath/SetConfigType/SetConfigName sequence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every setting a knit invocation needs.
type Config struct {
	StoreBackend string `yaml:"storeBackend" mapstructure:"store-backend"`
	StoreRoot    string `yaml:"storeRoot" mapstructure:"store-root"`
	GenDir       string `yaml:"genDir" mapstructure:"gen-dir"`
	LogLevel     string `yaml:"logLevel" mapstructure:"log-level"`
	LogFormat    string `yaml:"logFormat" mapstructure:"log-format"`
	LogDir       string `yaml:"logDir" mapstructure:"log-dir"`
	Quiet        bool   `yaml:"quiet" mapstructure:"quiet"`
}

// ConfigDir is the default directory holding knit's config file, mirroring
// the teacher's $HOME/.config/dagu convention.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "knit")
}

func defaults() Config {
	return Config{
		StoreBackend: "dir",
		StoreRoot:    filepath.Join(ConfigDir(), "store"),
		GenDir:       filepath.Join(ConfigDir(), "gen"),
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load builds a Config from built-in defaults, an optional YAML file
// resolved by v, and any flag overrides already bound into v.
// The file layer is decoded with goccy/go-yaml and merged over the defaults
// with mergo before viper's bound overrides are applied on top, matching
// the teacher's config.Load() + bindCommonFlags two-stage precedence.
func Load(v *viper.Viper) (*Config, error) {
	cfg := defaults()

	// ReadInConfig resolves the config path from v's search paths/explicit
	// SetConfigFile call; its own decode is discarded in favor of
	// goccy/go-yaml so the file layer merges predictably over defaults.
	if err := v.ReadInConfig(); err == nil {
		path := v.ConfigFileUsed()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	// Push the defaults+file merge back into v as its default layer, so
	// v.Unmarshal only lets an explicitly-changed flag override it (viper's
	// own precedence: a bound flag only wins
	// over a default when Changed is true).
	v.SetDefault("store-backend", cfg.StoreBackend)
	v.SetDefault("store-root", cfg.StoreRoot)
	v.SetDefault("gen-dir", cfg.GenDir)
	v.SetDefault("log-level", cfg.LogLevel)
	v.SetDefault("log-format", cfg.LogFormat)
	v.SetDefault("log-dir", cfg.LogDir)
	v.SetDefault("quiet", cfg.Quiet)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal overrides: %w", err)
	}
	return &cfg, nil
}

// commandLineFlag mirrors the teacher's cmd/config.go struct: a flag's
// cobra registration plus its viper binding, in one place.
type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
}

var (
	storeBackendFlag = commandLineFlag{name: "store-backend", defaultValue: "dir", usage: "object store backend (dir|git)"}
	storeRootFlag    = commandLineFlag{name: "store-root", usage: "object store root directory"}
	genDirFlag       = commandLineFlag{name: "gen-dir", usage: "scratch directory for job workdirs"}
	logLevelFlag     = commandLineFlag{name: "log-level", defaultValue: "info", usage: "log level (debug|info|warn|error)"}
	logFormatFlag    = commandLineFlag{name: "log-format", defaultValue: "text", usage: "log format (text|json)"}
	logDirFlag       = commandLineFlag{name: "log-dir", usage: "directory for rotated log files"}
	quietFlag        = commandLineFlag{name: "quiet", shorthand: "q", usage: "suppress non-error output"}
)

var commonFlags = []commandLineFlag{
	storeBackendFlag, storeRootFlag, genDirFlag,
	logLevelFlag, logFormatFlag, logDirFlag, quietFlag,
}

// BindFlags registers knit's common flags on cmd and binds each to v,
// following initCommonFlags/bindCommonFlags from the teacher's
// cmd/config.go.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, flag := range commonFlags {
		if flag.name == quietFlag.name {
			cmd.PersistentFlags().BoolP(flag.name, flag.shorthand, false, flag.usage)
		} else {
			cmd.PersistentFlags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
		if err := v.BindPFlag(flag.name, cmd.PersistentFlags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}
