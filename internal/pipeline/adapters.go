package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/timelinetree/internal/blame"
	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
	"github.com/Sumatoshi-tech/timelinetree/internal/treewalk"
	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
	"github.com/Sumatoshi-tech/timelinetree/pkg/gitlib"
)

// annotatedRoot is the history-store partition holding per-line provenance
// blobs, mirroring the files partition's paths.
const annotatedRoot = "annotated"

// ErrMissingFileDelta reports a blob the tree walk wants blamed but the
// precompute never saw. The walk and the precompute scan the same trees, so
// this is a defect.
var ErrMissingFileDelta = errors.New("no precomputed delta for file")

// gitTree adapts a gitlib tree to the walker's read interface.
type gitTree struct {
	tree *gitlib.Tree
}

func newGitTree(tree *gitlib.Tree) treewalk.Tree {
	if tree == nil {
		return nil
	}

	return &gitTree{tree: tree}
}

func (g *gitTree) Entries() ([]treewalk.Entry, error) {
	count := g.tree.EntryCount()
	entries := make([]treewalk.Entry, 0, count)

	for i := uint64(0); i < count; i++ {
		entries = append(entries, convertEntry(g.tree.EntryByIndex(i)))
	}

	return entries, nil
}

func (g *gitTree) Entry(name string) (treewalk.Entry, bool) {
	entry := g.tree.EntryByName(name)
	if entry == nil {
		return treewalk.Entry{}, false
	}

	return convertEntry(entry), true
}

func (g *gitTree) Subtree(name string) (treewalk.Tree, bool) {
	subtree, ok := g.tree.Subtree(name)
	if !ok {
		return nil, false
	}

	return &gitTree{tree: subtree}, true
}

func convertEntry(entry *gitlib.TreeEntry) treewalk.Entry {
	kind := treewalk.KindBlob

	switch entry.Filemode() {
	case modeTree:
		kind = treewalk.KindTree
	case modeSubmodule:
		kind = treewalk.KindSubmodule
	}

	return treewalk.Entry{
		Name: entry.Name(),
		ID:   entry.Hash().String(),
		Kind: kind,
		Mode: entry.Filemode(),
	}
}

// adaptTrees wraps aligned gitlib parent trees, keeping nil holes in place.
func adaptTrees(trees []*gitlib.Tree) []treewalk.Tree {
	adapted := make([]treewalk.Tree, len(trees))
	for i, tree := range trees {
		adapted[i] = newGitTree(tree)
	}

	return adapted
}

// annotatedSource reads parents' committed provenance blobs back through the
// fast-import session.
type annotatedSource struct {
	client *fastimport.Client
}

func (s *annotatedSource) ReadAnnotated(parent fastimport.Commitish, path string) ([]string, bool, error) {
	oid, found, err := s.client.Ls(parent, annotatedRoot+"/"+path)
	if err != nil || !found {
		return nil, false, err
	}

	content, err := s.client.CatBlob(oid)
	if err != nil {
		return nil, false, err
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")

	return lines, true, nil
}

// propagatingBlamer derives annotated blobs for the walker from the
// revision's precomputed deltas.
type propagatingBlamer struct {
	data    *TimelineData
	parents []blame.Parent
	source  blame.Source
}

func newBlamer(data *TimelineData, historyParents []fastimport.Commitish, source blame.Source) *propagatingBlamer {
	parents := make([]blame.Parent, len(historyParents))
	for i, commitish := range historyParents {
		parents[i] = blame.Parent{Rev: data.ParentRevs[i], Blame: commitish}
	}

	return &propagatingBlamer{data: data, parents: parents, source: source}
}

func (b *propagatingBlamer) BlameFile(path, _ string, _ []fastimport.Commitish) ([]byte, error) {
	delta, ok := b.data.Files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingFileDelta, path, b.data.SyntaxRev)
	}

	return blame.Propagate(blame.FileInput{
		SourceRev: b.data.Linkage.SourceRev,
		Path:      path,
		LineCount: delta.LineCount,
		Parents:   b.parents,
		MovedFrom: delta.MovedFrom,
		Unmodified: func(parentRev string) []hunks.LinePair {
			return delta.Unmodified[parentRev]
		},
		Predecessors: delta.Predecessors,
		Markers:      delta.Markers,
		Source:       b.source,
	})
}
