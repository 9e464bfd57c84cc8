package deltas

import (
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// evolutionSimilarityFloor is the minimum share of common characters for two
// non-identifier tokens to count as an evolution.
const evolutionSimilarityFloor = 0.5

// LooksLikeIdentifier reports whether a token is lexically an identifier. A
// syntax grammar is not always available for a file's language, so this is
// deliberately permissive.
func LooksLikeIdentifier(token string) bool {
	if token == "" {
		return false
	}

	for i, r := range token {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}

		if i > 0 && unicode.IsDigit(r) {
			continue
		}

		return false
	}

	return true
}

// SimilarTokens is the default single-token evolution heuristic: both tokens
// look like identifiers, or their contents overlap substantially.
func SimilarTokens(removed, added string) bool {
	if removed == added {
		return false // Identical tokens are moves, not evolutions.
	}

	if LooksLikeIdentifier(removed) && LooksLikeIdentifier(added) {
		return true
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(removed, added, false)

	common := 0
	for _, diff := range diffs {
		if diff.Type == diffmatchpatch.DiffEqual {
			common += len(diff.Text)
		}
	}

	total := len(removed) + len(added)
	if total == 0 {
		return false
	}

	return float64(2*common)/float64(total) >= evolutionSimilarityFloor
}
