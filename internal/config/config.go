// Package config loads and validates the timelinetree configuration from
// file, environment, and defaults.
package config

import "errors"

// Config is the top-level configuration struct for timelinetree.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Syntax   SyntaxConfig   `mapstructure:"syntax"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Moves    MovesConfig    `mapstructure:"moves"`
	Renames  RenamesConfig  `mapstructure:"renames"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SourceConfig identifies the original repository the syntax repository was
// derived from. Only needed when Mercurial mapping is on; the derivation
// itself reads the syntax repository.
type SourceConfig struct {
	Repo string `mapstructure:"repo"`
	// HgMapping enables Mercurial revision resolution via cinnabar when the
	// syntax commit message carries no hg line.
	HgMapping bool `mapstructure:"hg_mapping"`
}

// SyntaxConfig identifies the pre-tokenized repository the derivation walks.
type SyntaxConfig struct {
	Repo string `mapstructure:"repo"`
	// Ref is the syntax revision the walk starts from.
	Ref string `mapstructure:"ref"`
}

// TimelineConfig identifies the history store being built.
type TimelineConfig struct {
	// Repo is the history-store repository the derivation appends to.
	Repo string `mapstructure:"repo"`
	// Ref is the history-store branch to extend.
	Ref string `mapstructure:"ref"`
}

// PipelineConfig holds derivation resource knobs.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
	// CommitLimit bounds how many revisions one run processes; zero means
	// unbounded.
	CommitLimit int `mapstructure:"commit_limit"`
	// WindowMultiple sizes each worker's queue as a multiple of the worker
	// count.
	WindowMultiple int `mapstructure:"window_multiple"`
	// CheckpointInterval is how many commits to write between fast-import
	// checkpoints.
	CheckpointInterval int `mapstructure:"checkpoint_interval"`
}

// MovesConfig tunes move/evolution inference.
type MovesConfig struct {
	NeighborWindow       int     `mapstructure:"neighbor_window"`
	FileDistanceWeight   float64 `mapstructure:"file_distance_weight"`
	StreamDistanceWeight float64 `mapstructure:"stream_distance_weight"`
	ChurnTokenCap        int     `mapstructure:"churn_token_cap"`
}

// RenamesConfig tunes file movement detection.
type RenamesConfig struct {
	SimilarityThreshold uint16 `mapstructure:"similarity_threshold"`
	Limit               uint   `mapstructure:"limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrMissingSyntaxRepo indicates no syntax repository was configured.
	ErrMissingSyntaxRepo = errors.New("syntax.repo is required")
	// ErrMissingSourceRepo indicates hg mapping is on without a source repository.
	ErrMissingSourceRepo = errors.New("source.repo is required when source.hg_mapping is set")
	// ErrMissingTimelineRepo indicates no history-store repository was configured.
	ErrMissingTimelineRepo = errors.New("timeline.repo is required")
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("pipeline.workers must be non-negative")
	// ErrInvalidCommitLimit indicates the commit limit is negative.
	ErrInvalidCommitLimit = errors.New("pipeline.commit_limit must be non-negative")
	// ErrInvalidWindowMultiple indicates the window multiple is not positive.
	ErrInvalidWindowMultiple = errors.New("pipeline.window_multiple must be positive")
	// ErrInvalidCheckpointInterval indicates the checkpoint interval is not positive.
	ErrInvalidCheckpointInterval = errors.New("pipeline.checkpoint_interval must be positive")
	// ErrInvalidNeighborWindow indicates the neighbor window is negative.
	ErrInvalidNeighborWindow = errors.New("moves.neighbor_window must be non-negative")
	// ErrInvalidChurnCap indicates the churn token cap is negative.
	ErrInvalidChurnCap = errors.New("moves.churn_token_cap must be non-negative")
	// ErrInvalidLogLevel indicates an unknown log level name.
	ErrInvalidLogLevel = errors.New("log.level must be one of debug, info, warn, error")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Syntax.Repo == "" {
		return ErrMissingSyntaxRepo
	}

	if c.Timeline.Repo == "" {
		return ErrMissingTimelineRepo
	}

	if c.Source.HgMapping && c.Source.Repo == "" {
		return ErrMissingSourceRepo
	}

	pipelineErr := c.validatePipeline()
	if pipelineErr != nil {
		return pipelineErr
	}

	movesErr := c.validateMoves()
	if movesErr != nil {
		return movesErr
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return ErrInvalidLogLevel
	}
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.Pipeline.CommitLimit < 0 {
		return ErrInvalidCommitLimit
	}

	if c.Pipeline.WindowMultiple < 1 {
		return ErrInvalidWindowMultiple
	}

	if c.Pipeline.CheckpointInterval < 1 {
		return ErrInvalidCheckpointInterval
	}

	return nil
}

func (c *Config) validateMoves() error {
	if c.Moves.NeighborWindow < 0 {
		return ErrInvalidNeighborWindow
	}

	if c.Moves.ChurnTokenCap < 0 {
		return ErrInvalidChurnCap
	}

	return nil
}
