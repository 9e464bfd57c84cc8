package gitlib

import (
	git2go "github.com/libgit2/git2go/v34"
)

// RenameOptions bounds the similarity search when diffing two trees for file
// movement.
type RenameOptions struct {
	// SimilarityThreshold is the percentage of content overlap (0-100)
	// below which a candidate pair is not considered a rename or copy.
	SimilarityThreshold uint16
	// RenameLimit caps the candidate pair search space; beyond it the
	// search degrades to exact-content matches only.
	RenameLimit uint
}

// DefaultRenameOptions matches the thresholds the history derivation uses: a
// 30% overlap floor and a bounded search over at most 10^6 candidate pairs,
// breaking rewrites into separate add/delete when similarity is too low.
func DefaultRenameOptions() RenameOptions {
	const (
		defaultThreshold = 30
		defaultLimit     = 1000000
	)

	return RenameOptions{SimilarityThreshold: defaultThreshold, RenameLimit: defaultLimit}
}

// FileMovement diffs two trees with rename and copy detection and returns,
// for each moved file, the mapping from its blob id in the new tree to the
// path it had in the old tree. Unmoved and dissimilar files have no entry.
func (r *Repository) FileMovement(oldTree, newTree *Tree, opts RenameOptions) (map[Hash]string, error) {
	diff, err := r.DiffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	findOpts := git2go.DiffFindOptions{
		Flags: git2go.DiffFindRenames |
			git2go.DiffFindCopies |
			git2go.DiffFindBreakRewrites |
			git2go.DiffFindBreakRewritesForRenamesOnly,
		RenameThreshold: opts.SimilarityThreshold,
		CopyThreshold:   opts.SimilarityThreshold,
		RenameLimit:     opts.RenameLimit,
	}

	err = diff.FindSimilar(&findOpts)
	if err != nil {
		return nil, err
	}

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, err
	}

	movement := make(map[Hash]string)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, deltaErr
		}

		if delta.OldFile.Hash.IsZero() || delta.NewFile.Hash.IsZero() {
			continue
		}

		if delta.OldFile.Path == delta.NewFile.Path {
			continue
		}

		movement[delta.NewFile.Hash] = delta.OldFile.Path
	}

	return movement, nil
}
