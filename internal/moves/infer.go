// Package moves matches removed-token runs to added-token runs within a
// (namespace, context) cluster to explain tokens as moved or evolved rather
// than independently added and removed. The matching is heuristic by design:
// a miss silently degrades to independent add/remove and is only visible in
// aggregate counters.
package moves

import (
	"sort"

	"github.com/Sumatoshi-tech/timelinetree/internal/deltas"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// Config tunes the inference heuristics.
type Config struct {
	// NeighborWindow is how many stream positions around the last match to
	// scan when the longest-match search finds nothing unconsumed.
	NeighborWindow int
	// FileDistanceWeight penalizes candidates in a different file.
	FileDistanceWeight float64
	// StreamDistanceWeight penalizes candidates far from the last match in
	// removal-stream order.
	StreamDistanceWeight float64
	// ChurnTokenCap is the cluster token count beyond which exhaustive
	// matching is skipped in favor of a frequency-histogram pass. Bulk
	// reformats and autogenerated files land here.
	ChurnTokenCap int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	const (
		defaultWindow       = 32
		defaultFileWeight   = 4.0
		defaultStreamWeight = 1.0
		defaultChurnCap     = 50000
	)

	return Config{
		NeighborWindow:       defaultWindow,
		FileDistanceWeight:   defaultFileWeight,
		StreamDistanceWeight: defaultStreamWeight,
		ChurnTokenCap:        defaultChurnCap,
	}
}

// Edge explains an added token by a removed one: a move when the text is
// identical, an evolution when it changed.
type Edge struct {
	// ParentRev identifies the parent revision the old side lives in.
	ParentRev string
	OldPath   string
	OldLine   int
	NewPath   string
	NewLine   int
	Evolved   bool
	OldText   string
	NewText   string
}

// Result is the outcome of inference over a whole revision.
type Result struct {
	Edges []Edge

	// TokenDeltas aggregates per-token counts across the revision.
	TokenDeltas map[string]timeline.TokenDeltaDetails
	// SymbolDeltas classifies each context and nests its token counts.
	SymbolDeltas *timeline.SymbolDeltaGroup

	// ChurnCappedClusters counts clusters that fell back to the histogram
	// pass.
	ChurnCappedClusters int
}

// streamEntry is one position in the sentinel-delimited removal stream.
type streamEntry struct {
	id  int // interned token id; 0 delimits runs
	run *deltas.Run
	idx int // index into run.Removed
}

// Infer runs move/evolution inference over the clusters of one revision.
func Infer(clusters map[string]map[string]*deltas.Cluster, cfg Config) Result {
	result := Result{
		TokenDeltas:  make(map[string]timeline.TokenDeltaDetails),
		SymbolDeltas: &timeline.SymbolDeltaGroup{SymbolDeltas: make(map[string]*timeline.SymbolDelta)},
	}

	for _, contexts := range clusters {
		for context, cluster := range contexts {
			capped := inferCluster(cluster, cfg, &result)
			if capped {
				result.ChurnCappedClusters++
			}

			summarizeCluster(context, cluster, &result)
		}
	}

	return result
}

func inferCluster(cluster *deltas.Cluster, cfg Config, result *Result) (capped bool) {
	total := 0
	for _, run := range cluster.Runs {
		total += len(run.Added) + len(run.Removed)
	}

	if cfg.ChurnTokenCap > 0 && total > cfg.ChurnTokenCap {
		histogramMatch(cluster, result)

		return true
	}

	intern := map[string]int{}
	nextID := 1

	tokenID := func(text string) int {
		id, ok := intern[text]
		if !ok {
			id = nextID
			nextID++
			intern[text] = id
		}

		return id
	}

	// Build the removal stream with a reserved low sentinel between runs
	// so matches never cross a run boundary.
	var stream []streamEntry

	for _, run := range cluster.Runs {
		if len(run.Removed) == 0 {
			continue
		}

		if len(stream) > 0 {
			stream = append(stream, streamEntry{id: 0})
		}

		for i := range run.Removed {
			stream = append(stream, streamEntry{id: tokenID(run.Removed[i].Text), run: run, idx: i})
		}
	}

	// Longest addition runs first: large-scale cut/paste should resolve as
	// high-confidence single moves before shorter runs nibble at the
	// removals.
	additionRuns := make([]*deltas.Run, 0, len(cluster.Runs))

	for _, run := range cluster.Runs {
		if len(run.Added) > 0 {
			additionRuns = append(additionRuns, run)
		}
	}

	sort.SliceStable(additionRuns, func(i, j int) bool {
		return len(additionRuns[i].Added) > len(additionRuns[j].Added)
	})

	for _, run := range additionRuns {
		matchRun(run, stream, tokenID, cfg, result)
	}

	return false
}

// matchRun walks one addition run, consuming the longest unconsumed matching
// removal prefixes it can find.
func matchRun(run *deltas.Run, stream []streamEntry, tokenID func(string) int, cfg Config, result *Result) {
	lastMatchPos := 0

	for i := 0; i < len(run.Added); {
		if run.Added[i].Consumed {
			i++

			continue
		}

		pos, length := longestMatch(run, i, stream, tokenID, lastMatchPos, cfg)
		if length == 0 {
			pos, length = neighborMatch(run, i, stream, tokenID, lastMatchPos, cfg)
		}

		if length == 0 {
			i++

			continue
		}

		for k := range length {
			entry := stream[pos+k]
			entry.run.Removed[entry.idx].Consumed = true
			run.Added[i+k].Consumed = true

			result.Edges = append(result.Edges, Edge{
				ParentRev: entry.run.ParentRev,
				OldPath:   entry.run.OldPath,
				OldLine:   entry.run.Removed[entry.idx].Line,
				NewPath:   run.NewPath,
				NewLine:   run.Added[i+k].Line,
				OldText:   entry.run.Removed[entry.idx].Text,
				NewText:   run.Added[i+k].Text,
			})
		}

		lastMatchPos = pos + length
		i += length
	}
}

// longestMatch scans the stream for the longest unconsumed run matching the
// addition tokens starting at addIdx. Ties go to the candidate with the best
// locality fitness.
func longestMatch(run *deltas.Run, addIdx int, stream []streamEntry, tokenID func(string) int, lastMatchPos int, cfg Config) (pos, length int) {
	wantFirst := tokenID(run.Added[addIdx].Text)

	bestPos, bestLen := -1, 0
	bestFitness := 0.0

	for s := range stream {
		if stream[s].id != wantFirst || consumed(stream, s) {
			continue
		}

		matchLen := 0
		for addIdx+matchLen < len(run.Added) && s+matchLen < len(stream) {
			entry := stream[s+matchLen]
			added := run.Added[addIdx+matchLen]

			if entry.id == 0 || consumed(stream, s+matchLen) || added.Consumed {
				break
			}

			if entry.id != tokenID(added.Text) {
				break
			}

			matchLen++
		}

		if matchLen == 0 {
			continue
		}

		score := fitness(run, stream[s], s, lastMatchPos, cfg)
		if matchLen > bestLen || (matchLen == bestLen && score < bestFitness) {
			bestPos, bestLen, bestFitness = s, matchLen, score
		}
	}

	if bestLen == 0 {
		return 0, 0
	}

	return bestPos, bestLen
}

// neighborMatch searches a small window of stream positions around the last
// match for a single unconsumed matching token, scored by locality.
func neighborMatch(run *deltas.Run, addIdx int, stream []streamEntry, tokenID func(string) int, lastMatchPos int, cfg Config) (pos, length int) {
	want := tokenID(run.Added[addIdx].Text)

	lo := max(lastMatchPos-cfg.NeighborWindow, 0)
	hi := min(lastMatchPos+cfg.NeighborWindow, len(stream)-1)

	bestPos := -1
	bestFitness := 0.0

	for s := lo; s <= hi; s++ {
		if stream[s].id != want || consumed(stream, s) {
			continue
		}

		score := fitness(run, stream[s], s, lastMatchPos, cfg)
		if bestPos < 0 || score < bestFitness {
			bestPos, bestFitness = s, score
		}
	}

	if bestPos < 0 {
		return 0, 0
	}

	return bestPos, 1
}

// fitness is a locality score; lower is better.
func fitness(run *deltas.Run, entry streamEntry, pos, lastMatchPos int, cfg Config) float64 {
	score := cfg.StreamDistanceWeight * float64(abs(pos-lastMatchPos))
	if entry.run.OldPath != run.NewPath {
		score += cfg.FileDistanceWeight
	}

	return score
}

func consumed(stream []streamEntry, pos int) bool {
	entry := stream[pos]
	if entry.id == 0 {
		return true
	}

	return entry.run.Removed[entry.idx].Consumed
}

// histogramMatch is the cheap fallback for pathological churn: pair added
// and removed occurrences of the same token text in order, without any
// locality search.
func histogramMatch(cluster *deltas.Cluster, result *Result) {
	unconsumedRemovals := map[string][]*deltas.Token{}

	for _, run := range cluster.Runs {
		for i := range run.Removed {
			token := &run.Removed[i]
			if !token.Consumed {
				unconsumedRemovals[token.Text] = append(unconsumedRemovals[token.Text], token)
			}
		}
	}

	for _, run := range cluster.Runs {
		for i := range run.Added {
			token := &run.Added[i]
			if token.Consumed {
				continue
			}

			queue := unconsumedRemovals[token.Text]
			if len(queue) == 0 {
				continue
			}

			queue[0].Consumed = true
			token.Consumed = true
			unconsumedRemovals[token.Text] = queue[1:]
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
