package moves

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/timelinetree/internal/deltas"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

func tokens(startLine int, texts ...string) []deltas.Token {
	out := make([]deltas.Token, len(texts))
	for i, text := range texts {
		out[i] = deltas.Token{Line: startLine + i, Text: text}
	}

	return out
}

func singleCluster(runs ...*deltas.Run) map[string]map[string]*deltas.Cluster {
	return map[string]map[string]*deltas.Cluster{
		"source": {"ctx": &deltas.Cluster{Runs: runs}},
	}
}

func TestInferSingleTokenMove(t *testing.T) {
	t.Parallel()

	removal := &deltas.Run{
		ParentRev: "p1", OldPath: "src/a.rs", NewPath: "src/a.rs",
		Removed: tokens(10, "helper"),
	}
	addition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/b.rs", NewPath: "src/b.rs",
		Added: tokens(20, "helper"),
	}

	result := Infer(singleCluster(removal, addition), DefaultConfig())

	require.Len(t, result.Edges, 1)
	edge := result.Edges[0]
	assert.Equal(t, "p1", edge.ParentRev)
	assert.Equal(t, "src/a.rs", edge.OldPath)
	assert.Equal(t, 10, edge.OldLine)
	assert.Equal(t, "src/b.rs", edge.NewPath)
	assert.Equal(t, 20, edge.NewLine)
	assert.False(t, edge.Evolved)

	assert.Equal(t, timeline.TokenDeltaDetails{Moved: 1}, result.TokenDeltas["helper"])
	assert.Zero(t, result.ChurnCappedClusters)
}

func TestInferPrefersLongestRun(t *testing.T) {
	t.Parallel()

	// One removed token "b" appears alone and inside the run a,b,c. The
	// three-token addition must claim the contiguous run, leaving the lone
	// "b" for the single-token addition.
	loneRemoval := &deltas.Run{
		ParentRev: "p1", OldPath: "src/lone.rs", NewPath: "src/lone.rs",
		Removed: tokens(5, "b"),
	}
	runRemoval := &deltas.Run{
		ParentRev: "p1", OldPath: "src/run.rs", NewPath: "src/run.rs",
		Removed: tokens(30, "a", "b", "c"),
	}
	longAddition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/dst.rs", NewPath: "src/dst.rs",
		Added: tokens(1, "a", "b", "c"),
	}
	shortAddition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/other.rs", NewPath: "src/other.rs",
		Added: tokens(50, "b"),
	}

	result := Infer(singleCluster(loneRemoval, runRemoval, shortAddition, longAddition), DefaultConfig())

	require.Len(t, result.Edges, 4)

	byNewPath := map[string][]Edge{}
	for _, edge := range result.Edges {
		byNewPath[edge.NewPath] = append(byNewPath[edge.NewPath], edge)
	}

	require.Len(t, byNewPath["src/dst.rs"], 3)
	for _, edge := range byNewPath["src/dst.rs"] {
		assert.Equal(t, "src/run.rs", edge.OldPath)
	}

	require.Len(t, byNewPath["src/other.rs"], 1)
	assert.Equal(t, "src/lone.rs", byNewPath["src/other.rs"][0].OldPath)
}

func TestInferMatchesNeverCrossRunBoundary(t *testing.T) {
	t.Parallel()

	// "x", "y" removed in two different runs must not match a contiguous
	// two-token addition as one run.
	first := &deltas.Run{
		ParentRev: "p1", OldPath: "src/a.rs", NewPath: "src/a.rs",
		Removed: tokens(1, "x"),
	}
	second := &deltas.Run{
		ParentRev: "p1", OldPath: "src/a.rs", NewPath: "src/a.rs",
		Removed: tokens(40, "y"),
	}
	addition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/b.rs", NewPath: "src/b.rs",
		Added: tokens(7, "x", "y"),
	}

	result := Infer(singleCluster(first, second, addition), DefaultConfig())

	// Both still matched, but as two independent single-token moves.
	require.Len(t, result.Edges, 2)
	assert.Equal(t, timeline.TokenDeltaDetails{Moved: 2}, sumDeltas(result, "x", "y"))
}

func TestInferLocalityPrefersSameFile(t *testing.T) {
	t.Parallel()

	sameFile := &deltas.Run{
		ParentRev: "p1", OldPath: "src/same.rs", NewPath: "src/same.rs",
		Removed: tokens(3, "target"),
	}
	otherFile := &deltas.Run{
		ParentRev: "p1", OldPath: "src/other.rs", NewPath: "src/other.rs",
		Removed: tokens(3, "target"),
	}
	addition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/same.rs", NewPath: "src/same.rs",
		Added: tokens(8, "target"),
	}

	result := Infer(singleCluster(otherFile, sameFile, addition), DefaultConfig())

	require.Len(t, result.Edges, 1)
	assert.Equal(t, "src/same.rs", result.Edges[0].OldPath)
}

func TestInferUnmatchedTokensStayAddedAndRemoved(t *testing.T) {
	t.Parallel()

	removal := &deltas.Run{
		ParentRev: "p1", OldPath: "src/a.rs", NewPath: "src/a.rs",
		Removed: tokens(1, "gone"),
	}
	addition := &deltas.Run{
		ParentRev: "p1", OldPath: "src/b.rs", NewPath: "src/b.rs",
		Added: tokens(1, "fresh"),
	}

	result := Infer(singleCluster(removal, addition), DefaultConfig())

	assert.Empty(t, result.Edges)
	assert.Equal(t, timeline.TokenDeltaDetails{Removed: 1}, result.TokenDeltas["gone"])
	assert.Equal(t, timeline.TokenDeltaDetails{Added: 1}, result.TokenDeltas["fresh"])
}

func TestInferChurnCapFallsBackToHistogram(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ChurnTokenCap = 3

	run := &deltas.Run{
		ParentRev: "p1", OldPath: "src/big.rs", NewPath: "src/big.rs",
		Removed: tokens(1, "a", "b", "c"),
		Added:   tokens(10, "b", "z"),
	}

	result := Infer(singleCluster(run), cfg)

	assert.Equal(t, 1, result.ChurnCappedClusters)
	// Histogram pairing consumes the matching "b" without emitting edges.
	assert.Empty(t, result.Edges)
	assert.Equal(t, timeline.TokenDeltaDetails{Moved: 1}, result.TokenDeltas["b"])
	assert.Equal(t, timeline.TokenDeltaDetails{Added: 1}, result.TokenDeltas["z"])
	assert.Equal(t, timeline.TokenDeltaDetails{Removed: 1}, result.TokenDeltas["a"])
	assert.Equal(t, timeline.TokenDeltaDetails{Removed: 1}, result.TokenDeltas["c"])
}

func TestInferEvolutionEdges(t *testing.T) {
	t.Parallel()

	run := &deltas.Run{
		ParentRev: "p1", OldPath: "src/a.rs", NewPath: "src/a.rs",
		Evolved: []deltas.Evolution{{OldLine: 4, OldText: "oldName", NewLine: 4, NewText: "newName"}},
	}

	result := Infer(singleCluster(run), DefaultConfig())

	require.Len(t, result.Edges, 1)
	assert.True(t, result.Edges[0].Evolved)
	assert.Equal(t, "oldName", result.Edges[0].OldText)
	assert.Equal(t, timeline.TokenDeltaDetails{EvolvedFrom: 1}, result.TokenDeltas["newName"])

	symbol := result.SymbolDeltas.SymbolDeltas["ctx"]
	require.NotNil(t, symbol)
	assert.Equal(t, timeline.ChangeEvolved, symbol.Change)
}

func TestSymbolClassification(t *testing.T) {
	t.Parallel()

	assert.Equal(t, timeline.ChangeAdded, classify(2, 0, 0))
	assert.Equal(t, timeline.ChangeRemoved, classify(0, 3, 0))
	assert.Equal(t, timeline.ChangeEvolved, classify(1, 1, 1))
	assert.Equal(t, timeline.ChangeChanged, classify(1, 1, 0))
	assert.Equal(t, timeline.ChangeChanged, classify(0, 0, 0))
}

func sumDeltas(result Result, texts ...string) timeline.TokenDeltaDetails {
	var total timeline.TokenDeltaDetails
	for _, text := range texts {
		total.Accumulate(result.TokenDeltas[text])
	}

	return total
}
