// Package pipeline derives and appends history commits: a pool of workers
// precomputes per-revision token provenance data from read-only repository
// handles, and a single writer streams the resulting commits into the
// history store in topological order.
package pipeline

import (
	"time"

	"github.com/Sumatoshi-tech/timelinetree/internal/blame"
	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// FileDelta is everything precomputed for one file whose blob differs from
// every parent's.
type FileDelta struct {
	Path      string
	LineCount int
	Binary    bool

	// MovedFrom is the file's path in the first parent when rename
	// detection matched it; empty otherwise.
	MovedFrom string

	// Unmodified maps a parent syntax revision to the (new, old)
	// unchanged-line pairs against it. A parent without a comparable
	// version of the file has no entry.
	Unmodified map[string][]hunks.LinePair

	Predecessors []blame.PredecessorSplice
	Markers      []blame.MarkerSplice
}

// TimelineData is the precomputed input for writing one history commit. It
// carries no repository handles, so it crosses the worker/writer boundary
// freely.
type TimelineData struct {
	SyntaxRev  string
	ParentRevs []string // parent syntax revisions, in parent order
	Linkage    timeline.CommitLinkage

	Author    Ident
	Committer Ident

	// Files holds a delta for every file the writer must re-blame, keyed
	// by path.
	Files map[string]*FileDelta

	// TokenDeltas aggregates per-token counts for the shard records.
	TokenDeltas map[string]timeline.TokenDeltaDetails
	// SymbolDeltas is the per-revision symbol summary record.
	SymbolDeltas *timeline.SymbolDeltaGroup

	RenamesDetected     int
	ChurnCappedClusters int
	OffsetMismatches    int
}

// Ident mirrors a git signature without tying the writer to libgit2 types.
type Ident struct {
	Name  string
	Email string
	When  time.Time
}

// DeltaTotals sums the per-token counts for metrics and the run summary.
func (d *TimelineData) DeltaTotals() timeline.TokenDeltaDetails {
	var totals timeline.TokenDeltaDetails

	for _, delta := range d.TokenDeltas {
		totals.Accumulate(delta)
	}

	return totals
}
