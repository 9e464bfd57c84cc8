package moves

import (
	"github.com/Sumatoshi-tech/timelinetree/internal/deltas"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// summarizeCluster folds a cluster's runs into per-token and per-symbol
// delta counts and records evolution edges. Called after matching, so
// Consumed flags are final. A consumed pair counts once, as "moved", on the
// addition side.
func summarizeCluster(context string, cluster *deltas.Cluster, result *Result) {
	tokenChanges := map[string]timeline.TokenDeltaDetails{}

	var adds, removes, evolutions int

	for _, run := range cluster.Runs {
		for _, token := range run.Added {
			delta := tokenChanges[token.Text]
			if token.Consumed {
				delta.Moved++
			} else {
				delta.Added++
				adds++
			}

			tokenChanges[token.Text] = delta
		}

		for _, token := range run.Removed {
			if token.Consumed {
				continue
			}

			delta := tokenChanges[token.Text]
			delta.Removed++
			tokenChanges[token.Text] = delta
			removes++
		}

		for _, evolution := range run.Evolved {
			delta := tokenChanges[evolution.NewText]
			delta.EvolvedFrom++
			tokenChanges[evolution.NewText] = delta
			evolutions++

			result.Edges = append(result.Edges, Edge{
				ParentRev: run.ParentRev,
				OldPath:   run.OldPath,
				OldLine:   evolution.OldLine,
				NewPath:   run.NewPath,
				NewLine:   evolution.NewLine,
				Evolved:   true,
				OldText:   evolution.OldText,
				NewText:   evolution.NewText,
			})
		}
	}

	if len(tokenChanges) == 0 {
		return
	}

	for text, delta := range tokenChanges {
		merged := result.TokenDeltas[text]
		merged.Accumulate(delta)
		result.TokenDeltas[text] = merged
	}

	result.SymbolDeltas.SymbolDeltas[context] = &timeline.SymbolDelta{
		Change:       classify(adds, removes, evolutions),
		TokenChanges: tokenChanges,
	}
}

// classify derives the symbol-level change kind from its token traffic.
func classify(adds, removes, evolutions int) timeline.ChangeKind {
	switch {
	case evolutions > 0:
		return timeline.ChangeEvolved
	case adds > 0 && removes == 0:
		return timeline.ChangeAdded
	case removes > 0 && adds == 0:
		return timeline.ChangeRemoved
	default:
		return timeline.ChangeChanged
	}
}
