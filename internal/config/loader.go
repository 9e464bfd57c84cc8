package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".timelinetree"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for timelinetree settings.
const envPrefix = "TIMELINETREE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Defaults applied before file and environment values.
const (
	DefaultSyntaxRef          = "HEAD"
	DefaultTimelineRef        = "refs/heads/timeline"
	DefaultWindowMultiple     = 2
	DefaultCheckpointInterval = 100000
	DefaultRenameSimilarity   = uint16(30)
	DefaultRenameLimit        = uint(1000000)
	DefaultLogLevel           = "info"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
//
// The result is not validated: callers apply their flag overrides first and
// then call Validate.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("source.hg_mapping", false)

	viperCfg.SetDefault("syntax.ref", DefaultSyntaxRef)

	viperCfg.SetDefault("timeline.ref", DefaultTimelineRef)

	viperCfg.SetDefault("pipeline.workers", 0)
	viperCfg.SetDefault("pipeline.commit_limit", 0)
	viperCfg.SetDefault("pipeline.window_multiple", DefaultWindowMultiple)
	viperCfg.SetDefault("pipeline.checkpoint_interval", DefaultCheckpointInterval)

	viperCfg.SetDefault("moves.neighbor_window", 32)
	viperCfg.SetDefault("moves.file_distance_weight", 4.0)
	viperCfg.SetDefault("moves.stream_distance_weight", 1.0)
	viperCfg.SetDefault("moves.churn_token_cap", 50000)

	viperCfg.SetDefault("renames.similarity_threshold", DefaultRenameSimilarity)
	viperCfg.SetDefault("renames.limit", DefaultRenameLimit)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.json", false)

	viperCfg.SetDefault("metrics.addr", "")
}
