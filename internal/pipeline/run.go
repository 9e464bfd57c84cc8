package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/timelinetree/internal/config"
	"github.com/Sumatoshi-tech/timelinetree/internal/hgmap"
	"github.com/Sumatoshi-tech/timelinetree/internal/langmap"
	"github.com/Sumatoshi-tech/timelinetree/internal/moves"
	"github.com/Sumatoshi-tech/timelinetree/internal/observability"
	"github.com/Sumatoshi-tech/timelinetree/internal/treewalk"
	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
	"github.com/Sumatoshi-tech/timelinetree/pkg/gitlib"
)

// Partitions rewritten from scratch in every history commit. The timeline
// partition is deliberately absent: its shards accumulate.
var rewrittenPartitions = []string{"annotated", "future", "files-delta"}

// progressInterval is how many commits between progress log lines.
const progressInterval = 1000

// ErrOutOfOrder reports a worker answering for a revision other than the one
// dispatched to its slot. The round-robin pairing is static, so this is a
// defect, and the run aborts before writing a misattributed commit.
var ErrOutOfOrder = errors.New("precompute result out of dispatch order")

// Summary is the outcome of one run.
type Summary struct {
	Planned        int
	Skipped        int
	CommitsWritten int

	TokensAdded   uint64
	TokensRemoved uint64
	TokensMoved   uint64
	TokensEvolved uint64

	RenamesDetected     int
	ChurnCappedClusters int
	OffsetMismatches    int
}

// Runner owns one derivation run.
type Runner struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Run derives history commits for every planned revision and appends them to
// the store. It blocks until the plan is exhausted or a defect aborts the
// run; the store stays valid either way, recovery is re-running.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	cfg := r.Config

	syntaxRepo, err := gitlib.OpenRepository(cfg.Syntax.Repo)
	if err != nil {
		return nil, fmt.Errorf("open syntax repository: %w", err)
	}
	defer syntaxRepo.Free()

	historyRepo, err := gitlib.OpenRepository(cfg.Timeline.Repo)
	if err != nil {
		return nil, fmt.Errorf("open history repository: %w", err)
	}
	defer historyRepo.Free()

	r.Logger.Info("repositories opened",
		"syntax", syntaxRepo.Path(), "history", historyRepo.Path())

	revmap, err := LoadRevMap(historyRepo, cfg.Timeline.Ref)
	if err != nil {
		return nil, err
	}

	r.Logger.Info("history store loaded",
		"mapped", humanize.Comma(int64(revmap.Len())), "ref", cfg.Timeline.Ref)

	plan, err := BuildPlan(syntaxRepo, cfg.Syntax.Ref, revmap, cfg.Pipeline.CommitLimit)
	if err != nil {
		return nil, err
	}

	verifyErr := plan.Verify(syntaxRepo, cfg.Syntax.Ref, revmap)
	if verifyErr != nil {
		return nil, verifyErr
	}

	summary := &Summary{Planned: len(plan.Revisions), Skipped: plan.Skipped}

	r.Logger.Info("revision plan built",
		"planned", humanize.Comma(int64(summary.Planned)),
		"skipped", humanize.Comma(int64(summary.Skipped)))

	if len(plan.Revisions) == 0 {
		return summary, nil
	}

	resolver, err := r.openResolver()
	if err != nil {
		return nil, err
	}
	defer resolver.Close()

	if cfg.Metrics.Addr != "" {
		r.Metrics.Serve(cfg.Metrics.Addr)
		r.Logger.Info("metrics endpoint up", "addr", cfg.Metrics.Addr)
	}

	client, err := fastimport.Start(cfg.Timeline.Repo)
	if err != nil {
		return nil, err
	}

	state := &runState{
		runner:     r,
		syntaxRepo: syntaxRepo,
		revmap:     revmap,
		client:     client,
		resolver:   resolver,
		summary:    summary,
	}

	runErr := state.writeAll(ctx, plan)

	closeErr := client.Close()
	if runErr != nil {
		return nil, runErr
	}

	if closeErr != nil {
		return nil, closeErr
	}

	return summary, nil
}

func (r *Runner) openResolver() (hgmap.Resolver, error) {
	if !r.Config.Source.HgMapping {
		return hgmap.None(), nil
	}

	resolver, err := hgmap.Start(r.Config.Source.Repo)
	if err != nil {
		return nil, fmt.Errorf("start hg resolver: %w", err)
	}

	return resolver, nil
}

// newPrecomputer builds one worker's precomputer with its own repository
// handle; the returned cleanup frees it on the worker's thread.
func (r *Runner) newPrecomputer() (*Precomputer, func(), error) {
	repo, err := gitlib.OpenRepository(r.Config.Syntax.Repo)
	if err != nil {
		return nil, nil, fmt.Errorf("open worker repository: %w", err)
	}

	renames := gitlib.RenameOptions{
		SimilarityThreshold: r.Config.Renames.SimilarityThreshold,
		RenameLimit:         r.Config.Renames.Limit,
	}

	movesCfg := moves.Config{
		NeighborWindow:       r.Config.Moves.NeighborWindow,
		FileDistanceWeight:   r.Config.Moves.FileDistanceWeight,
		StreamDistanceWeight: r.Config.Moves.StreamDistanceWeight,
		ChurnTokenCap:        r.Config.Moves.ChurnTokenCap,
	}

	pre := &Precomputer{
		Repo:     repo,
		Classify: langmap.ForPath,
		Moves:    movesCfg,
		Renames:  renames,
	}

	return pre, repo.Free, nil
}

// runState is the writer's mutable state for one run.
type runState struct {
	runner     *Runner
	syntaxRepo *gitlib.Repository
	revmap     *RevMap
	client     *fastimport.Client
	resolver   hgmap.Resolver
	summary    *Summary
	mark       int
}

// writeAll drives the precompute pool and writes results in plan order with
// a bounded in-flight window.
func (s *runState) writeAll(ctx context.Context, plan *Plan) error {
	cfg := s.runner.Config

	workers := workerCount(cfg.Pipeline.Workers)
	window := workers * cfg.Pipeline.WindowMultiple

	s.runner.Logger.Info("pipeline starting", "workers", workers, "window", window)

	workerPool := startPool(ctx, workers, cfg.Pipeline.WindowMultiple, s.runner.newPrecomputer)
	defer workerPool.close()

	dispatched, written := 0, 0

	for written < len(plan.Revisions) {
		for dispatched < len(plan.Revisions) && dispatched-written < window {
			workerPool.dispatch(dispatched, plan.Revisions[dispatched])
			dispatched++
		}

		result := workerPool.collect(written)
		if result.err != nil {
			return fmt.Errorf("precompute %s: %w", result.rev, result.err)
		}

		if result.rev != plan.Revisions[written] {
			return fmt.Errorf("%w: got %s, want %s", ErrOutOfOrder, result.rev, plan.Revisions[written])
		}

		err := s.writeCommit(ctx, result.data)
		if err != nil {
			return err
		}

		written++

		if written%cfg.Pipeline.CheckpointInterval == 0 {
			checkpointErr := s.client.Checkpoint()
			if checkpointErr != nil {
				return checkpointErr
			}

			s.runner.Logger.Info("checkpoint", "written", humanize.Comma(int64(written)))
		}

		if written%progressInterval == 0 {
			s.runner.Logger.Info("progress",
				"written", humanize.Comma(int64(written)),
				"planned", humanize.Comma(int64(len(plan.Revisions))))
		}
	}

	return nil
}

// writeCommit streams one history commit: header, partition rewrites, the
// structural-sharing tree walk, and the aggregate records.
func (s *runState) writeCommit(ctx context.Context, data *TimelineData) error {
	started := time.Now()

	parents, err := s.revmap.Parents(data.ParentRevs)
	if err != nil {
		return err
	}

	resolveErr := s.resolveForeign(data)
	if resolveErr != nil {
		return resolveErr
	}

	s.mark++
	mark := s.mark

	err = s.client.BeginCommit(fastimport.CommitHeader{
		Ref:       s.runner.Config.Timeline.Ref,
		Mark:      mark,
		Author:    fastimport.Ident{Name: data.Author.Name, Email: data.Author.Email, When: data.Author.When},
		Committer: fastimport.Ident{Name: data.Committer.Name, Email: data.Committer.Email, When: data.Committer.When},
		Message:   data.Linkage.BuildMessage(),
		Parents:   parents,
	})
	if err != nil {
		return err
	}

	for _, partition := range rewrittenPartitions {
		deleteErr := s.client.DeletePath(partition)
		if deleteErr != nil {
			return deleteErr
		}
	}

	walkErr := s.walkTrees(ctx, data, parents)
	if walkErr != nil {
		return walkErr
	}

	sink := &recordSink{client: s.client}

	recordErr := sink.write(data, firstParent(parents), s.predSHA(parents))
	if recordErr != nil {
		return recordErr
	}

	s.revmap.Record(data.SyntaxRev, fastimport.Mark(mark))
	s.observe(data, time.Since(started))

	return nil
}

func (s *runState) walkTrees(ctx context.Context, data *TimelineData, parents []fastimport.Commitish) error {
	commit, err := s.syntaxRepo.LookupCommit(ctx, gitlib.NewHash(data.SyntaxRev))
	if err != nil {
		return fmt.Errorf("lookup syntax commit %s: %w", data.SyntaxRev, err)
	}
	defer commit.Free()

	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("read syntax tree %s: %w", data.SyntaxRev, err)
	}

	files, ok := tree.Subtree(filesRoot)
	if !ok {
		return nil // Nothing to annotate.
	}

	parentFiles := make([]*gitlib.Tree, commit.NumParents())

	for n := range parentFiles {
		parent, parentErr := commit.Parent(n)
		if parentErr != nil {
			return fmt.Errorf("lookup parent %d of %s: %w", n, data.SyntaxRev, parentErr)
		}

		parentTree, treeErr := parent.Tree()
		if treeErr == nil {
			parentFiles[n], _ = parentTree.Subtree(filesRoot)
		}

		parent.Free()

		if treeErr != nil {
			return fmt.Errorf("read parent tree of %s: %w", data.SyntaxRev, treeErr)
		}
	}

	walker := &treewalk.Walker{
		Importer:  s.client,
		Blamer:    newBlamer(data, parents, &annotatedSource{client: s.client}),
		Partition: annotatedRoot,
	}

	return walker.Walk(newGitTree(files), adaptTrees(parentFiles), parents)
}

// resolveForeign fills the hg line when the syntax commit message lacked one.
func (s *runState) resolveForeign(data *TimelineData) error {
	if data.Linkage.ForeignRev != "" {
		return nil
	}

	foreign, ok, err := s.resolver.Resolve(data.Linkage.SourceRev)
	if err != nil {
		return fmt.Errorf("resolve hg revision of %s: %w", data.Linkage.SourceRev, err)
	}

	if ok {
		data.Linkage.ForeignRev = foreign
	}

	return nil
}

// predSHA lazily resolves the first parent to a durable object id for
// summary records, memoized per commit.
func (s *runState) predSHA(parents []fastimport.Commitish) func() (string, error) {
	var (
		resolved string
		done     bool
	)

	return func() (string, error) {
		if done {
			return resolved, nil
		}

		if len(parents) == 0 {
			return "", nil
		}

		first := parents[0]
		if mark, isMark := first.MarkID(); isMark {
			sha, err := s.client.GetMark(mark)
			if err != nil {
				return "", err
			}

			resolved = sha
		} else {
			resolved = first.ObjectID()
		}

		done = true

		return resolved, nil
	}
}

func (s *runState) observe(data *TimelineData, elapsed time.Duration) {
	totals := data.DeltaTotals()
	metrics := s.runner.Metrics

	metrics.CommitsWritten.Inc()
	metrics.TokensAdded.Add(float64(totals.Added))
	metrics.TokensRemoved.Add(float64(totals.Removed))
	metrics.TokensMoved.Add(float64(totals.Moved))
	metrics.TokensEvolved.Add(float64(totals.EvolvedFrom))
	metrics.RenamesDetected.Add(float64(data.RenamesDetected))
	metrics.ChurnCapped.Add(float64(data.ChurnCappedClusters))
	metrics.OffsetMismatches.Add(float64(data.OffsetMismatches))
	metrics.CommitSeconds.Observe(elapsed.Seconds())

	s.summary.CommitsWritten++
	s.summary.TokensAdded += uint64(totals.Added)
	s.summary.TokensRemoved += uint64(totals.Removed)
	s.summary.TokensMoved += uint64(totals.Moved)
	s.summary.TokensEvolved += uint64(totals.EvolvedFrom)
	s.summary.RenamesDetected += data.RenamesDetected
	s.summary.ChurnCappedClusters += data.ChurnCappedClusters
	s.summary.OffsetMismatches += data.OffsetMismatches
}

func firstParent(parents []fastimport.Commitish) fastimport.Commitish {
	if len(parents) == 0 {
		return fastimport.Commitish{}
	}

	return parents[0]
}
