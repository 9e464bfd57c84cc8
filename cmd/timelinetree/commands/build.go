// Package commands implements CLI command handlers for timelinetree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/timelinetree/internal/config"
	"github.com/Sumatoshi-tech/timelinetree/internal/observability"
	"github.com/Sumatoshi-tech/timelinetree/internal/pipeline"
)

// BuildCommand holds configuration and dependencies for the build command.
type BuildCommand struct {
	configPath string

	syntaxRepo  string
	syntaxRef   string
	historyRepo string
	historyRef  string
	sourceRepo  string
	hgMapping   bool

	workers     int
	commitLimit int
	metricsAddr string
	logLevel    string
	logJSON     bool
	noColor     bool

	out io.Writer
}

// NewBuildCommand creates the build command with default dependencies.
func NewBuildCommand() *cobra.Command {
	bc := &BuildCommand{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Derive history commits up to the syntax ref's head",
		Long: `Build walks the syntax repository topologically, skips revisions the
history store already maps, and appends one history commit per remaining
revision. Interrupted runs resume from the committed head.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return bc.run()
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&bc.configPath, "config", "c", "", "config file path")
	flags.StringVar(&bc.syntaxRepo, "syntax-repo", "", "syntax repository path")
	flags.StringVar(&bc.syntaxRef, "syntax-ref", "", "syntax revision to walk from")
	flags.StringVar(&bc.historyRepo, "history-repo", "", "history store repository path")
	flags.StringVar(&bc.historyRef, "history-ref", "", "history store ref to extend")
	flags.StringVar(&bc.sourceRepo, "source-repo", "", "source repository path (hg mapping)")
	flags.BoolVar(&bc.hgMapping, "hg-mapping", false, "resolve hg revisions via cinnabar")
	flags.IntVarP(&bc.workers, "workers", "w", 0, "precompute workers (0 = CPUs-1)")
	flags.IntVar(&bc.commitLimit, "limit", 0, "stop after this many commits (0 = unbounded)")
	flags.StringVar(&bc.metricsAddr, "metrics-addr", "", "prometheus listen address")
	flags.StringVar(&bc.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&bc.logJSON, "log-json", false, "log as JSON")
	flags.BoolVar(&bc.noColor, "no-color", false, "disable colored output")

	return cmd
}

func (bc *BuildCommand) run() error {
	cfg, err := bc.loadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Log.Level), cfg.Log.JSON)

	runner := &pipeline.Runner{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	summary, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("build history store: %w", err)
	}

	bc.printSummary(summary)

	return nil
}

// loadConfig layers explicit flags over the viper-loaded configuration and
// validates the merged result.
func (bc *BuildCommand) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(bc.configPath)
	if err != nil {
		return nil, err
	}

	bc.applyFlags(cfg)

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

func (bc *BuildCommand) applyFlags(cfg *config.Config) {
	if bc.syntaxRepo != "" {
		cfg.Syntax.Repo = bc.syntaxRepo
	}

	if bc.syntaxRef != "" {
		cfg.Syntax.Ref = bc.syntaxRef
	}

	if bc.historyRepo != "" {
		cfg.Timeline.Repo = bc.historyRepo
	}

	if bc.historyRef != "" {
		cfg.Timeline.Ref = bc.historyRef
	}

	if bc.sourceRepo != "" {
		cfg.Source.Repo = bc.sourceRepo
	}

	if bc.hgMapping {
		cfg.Source.HgMapping = true
	}

	if bc.workers > 0 {
		cfg.Pipeline.Workers = bc.workers
	}

	if bc.commitLimit > 0 {
		cfg.Pipeline.CommitLimit = bc.commitLimit
	}

	if bc.metricsAddr != "" {
		cfg.Metrics.Addr = bc.metricsAddr
	}

	if bc.logLevel != "" {
		cfg.Log.Level = bc.logLevel
	}

	if bc.logJSON {
		cfg.Log.JSON = true
	}
}

func (bc *BuildCommand) printSummary(summary *pipeline.Summary) {
	if bc.noColor {
		color.NoColor = true
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	bold.Fprintln(bc.out, "history store updated")
	green.Fprintf(bc.out, "  commits written   %s\n", humanize.Comma(int64(summary.CommitsWritten)))
	fmt.Fprintf(bc.out, "  already mapped    %s\n", humanize.Comma(int64(summary.Skipped)))
	fmt.Fprintf(bc.out, "  tokens added      %s\n", humanize.Comma(int64(summary.TokensAdded)))
	fmt.Fprintf(bc.out, "  tokens removed    %s\n", humanize.Comma(int64(summary.TokensRemoved)))
	fmt.Fprintf(bc.out, "  tokens moved      %s\n", humanize.Comma(int64(summary.TokensMoved)))
	fmt.Fprintf(bc.out, "  tokens evolved    %s\n", humanize.Comma(int64(summary.TokensEvolved)))
	fmt.Fprintf(bc.out, "  renames detected  %s\n", humanize.Comma(int64(summary.RenamesDetected)))

	if summary.ChurnCappedClusters > 0 {
		fmt.Fprintf(bc.out, "  churn-capped      %s\n", humanize.Comma(int64(summary.ChurnCappedClusters)))
	}

	if summary.OffsetMismatches > 0 {
		color.New(color.FgYellow).Fprintf(bc.out, "  offset mismatches %s\n",
			humanize.Comma(int64(summary.OffsetMismatches)))
	}
}
