package pipeline

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
	"github.com/Sumatoshi-tech/timelinetree/pkg/gitlib"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// ErrUnmappedParent reports a revision whose parent has no history commit
// yet. The plan is topological, so this means the store or the plan is
// corrupt; continuing would write dangling parent links.
var ErrUnmappedParent = errors.New("parent revision has no history commit")

// ErrSyntaxRefMissing reports that the configured syntax ref does not exist.
var ErrSyntaxRefMissing = errors.New("syntax ref not found")

// RevMap is the durable syntax-revision to history-commit correspondence,
// rebuilt from the history ref's commit messages at startup and extended
// with marks as the run writes new commits.
type RevMap struct {
	bySyntax map[string]fastimport.Commitish
}

// NewRevMap returns an empty map, the state of a first run against a fresh
// history store.
func NewRevMap() *RevMap {
	return &RevMap{bySyntax: make(map[string]fastimport.Commitish)}
}

// LoadRevMap rebuilds the map by walking the history ref. A missing ref
// yields an empty map. Commits without the message schema are skipped; the
// store may have been seeded from an unrelated branch.
func LoadRevMap(repo *gitlib.Repository, ref string) (*RevMap, error) {
	m := NewRevMap()

	head, exists, err := repo.ResolveRef(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve history ref %q: %w", ref, err)
	}

	if !exists {
		return m, nil
	}

	walk, err := repo.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()

	pushErr := walk.Push(head)
	if pushErr != nil {
		return nil, pushErr
	}

	iterErr := walk.Iterate(func(commit *gitlib.Commit) bool {
		linkage, ok := timeline.ParseMessage(commit.Message())
		if ok {
			m.bySyntax[linkage.SyntaxRev] = fastimport.OID(commit.Hash().String())
		}

		return true
	})
	if iterErr != nil {
		return nil, fmt.Errorf("walk history ref %q: %w", ref, iterErr)
	}

	return m, nil
}

// Len returns how many syntax revisions have history commits.
func (m *RevMap) Len() int {
	return len(m.bySyntax)
}

// Lookup returns the history commit for a syntax revision.
func (m *RevMap) Lookup(syntaxRev string) (fastimport.Commitish, bool) {
	commitish, ok := m.bySyntax[syntaxRev]

	return commitish, ok
}

// Record maps a syntax revision to the mark of its freshly written history
// commit.
func (m *RevMap) Record(syntaxRev string, commitish fastimport.Commitish) {
	m.bySyntax[syntaxRev] = commitish
}

// Parents resolves a revision's parent syntax revs to their history commits,
// in parent order.
func (m *RevMap) Parents(parentRevs []string) ([]fastimport.Commitish, error) {
	resolved := make([]fastimport.Commitish, len(parentRevs))

	for i, rev := range parentRevs {
		commitish, ok := m.bySyntax[rev]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnmappedParent, rev)
		}

		resolved[i] = commitish
	}

	return resolved, nil
}

// walkRevisions walks the syntax repository from ref, topologically sorted
// with parents before children, calling the callback with each commit's rev
// and parent revs.
func walkRevisions(repo *gitlib.Repository, ref string, cb func(rev string, parents []string) error) error {
	head, exists, err := repo.ResolveRef(ref)
	if err != nil {
		return fmt.Errorf("resolve syntax ref %q: %w", ref, err)
	}

	if !exists {
		return fmt.Errorf("%w: %q", ErrSyntaxRefMissing, ref)
	}

	walk, err := repo.Walk()
	if err != nil {
		return err
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological | git2go.SortReverse)

	pushErr := walk.Push(head)
	if pushErr != nil {
		return pushErr
	}

	var cbErr error

	iterErr := walk.Iterate(func(commit *gitlib.Commit) bool {
		parents := make([]string, commit.NumParents())
		for n := range parents {
			parents[n] = commit.ParentHash(n).String()
		}

		cbErr = cb(commit.Hash().String(), parents)

		return cbErr == nil
	})
	if iterErr != nil {
		return fmt.Errorf("walk syntax ref %q: %w", ref, iterErr)
	}

	return cbErr
}
