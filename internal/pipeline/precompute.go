package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/timelinetree/internal/blame"
	"github.com/Sumatoshi-tech/timelinetree/internal/deltas"
	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
	"github.com/Sumatoshi-tech/timelinetree/internal/langmap"
	"github.com/Sumatoshi-tech/timelinetree/internal/moves"
	"github.com/Sumatoshi-tech/timelinetree/pkg/gitlib"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// filesRoot is the syntax repository partition holding tokenized blobs.
const filesRoot = "files"

// Tree entry filemodes the scanner distinguishes.
const (
	modeTree      = 0o40000
	modeSubmodule = 0o160000
)

// ErrNoSourceRev reports a syntax commit whose message carries no source
// revision line; the repositories are out of correspondence.
var ErrNoSourceRev = errors.New("syntax commit message lacks a source revision")

// Precomputer derives one revision's TimelineData from a read-only syntax
// repository handle. Each worker owns one Precomputer; none of its state is
// shared.
type Precomputer struct {
	Repo     *gitlib.Repository
	Classify langmap.Classifier
	Moves    moves.Config
	Renames  gitlib.RenameOptions
	Similar  deltas.Similarity
}

// Compute precomputes the history-commit input for one syntax revision.
func (p *Precomputer) Compute(ctx context.Context, syntaxRev string) (*TimelineData, error) {
	commit, err := p.Repo.LookupCommit(ctx, gitlib.NewHash(syntaxRev))
	if err != nil {
		return nil, fmt.Errorf("lookup syntax commit %s: %w", syntaxRev, err)
	}
	defer commit.Free()

	linkage, _ := timeline.ParseMessage(commit.Message())
	if linkage.SourceRev == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceRev, syntaxRev)
	}

	linkage.SyntaxRev = syntaxRev

	data := &TimelineData{
		SyntaxRev: syntaxRev,
		Linkage:   linkage,
		Author:    identOf(commit.Author()),
		Committer: identOf(commit.Committer()),
		Files:     make(map[string]*FileDelta),
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read syntax tree %s: %w", syntaxRev, err)
	}

	files, _ := tree.Subtree(filesRoot)

	parentRevs, parentRoots, freeParents, err := p.loadParents(ctx, commit)
	if err != nil {
		return nil, err
	}
	defer freeParents()

	data.ParentRevs = parentRevs

	movement, err := p.detectMovement(parentRoots, files)
	if err != nil {
		return nil, err
	}

	data.RenamesDetected = len(movement)

	similar := p.Similar
	if similar == nil {
		similar = deltas.SimilarTokens
	}

	machine := deltas.NewMachine(similar)

	scan := &scanner{
		ctx:         ctx,
		pre:         p,
		machine:     machine,
		data:        data,
		parentRevs:  parentRevs,
		parentRoots: parentRoots,
		movement:    movement,
	}

	if files != nil {
		walkErr := scan.walk(files, parentRoots, "")
		if walkErr != nil {
			return nil, walkErr
		}
	}

	delErr := scan.deletions(files)
	if delErr != nil {
		return nil, delErr
	}

	result := moves.Infer(machine.Clusters(), p.Moves)

	data.TokenDeltas = result.TokenDeltas
	data.SymbolDeltas = result.SymbolDeltas
	data.ChurnCappedClusters = result.ChurnCappedClusters

	attachSplices(data, machine, result)

	return data, nil
}

func identOf(sig gitlib.Signature) Ident {
	return Ident{Name: sig.Name, Email: sig.Email, When: sig.When}
}

// loadParents resolves the parent syntax revisions and their files subtrees.
// A parent without a files partition keeps a nil hole so indices stay
// aligned.
func (p *Precomputer) loadParents(ctx context.Context, commit *gitlib.Commit) ([]string, []*gitlib.Tree, func(), error) {
	count := commit.NumParents()

	revs := make([]string, 0, count)
	roots := make([]*gitlib.Tree, 0, count)
	parents := make([]*gitlib.Commit, 0, count)

	free := func() {
		for _, parent := range parents {
			parent.Free()
		}
	}

	for n := range count {
		parent, err := commit.Parent(n)
		if err != nil {
			free()

			return nil, nil, nil, fmt.Errorf("lookup parent %d of %s: %w", n, commit.Hash(), err)
		}

		parents = append(parents, parent)
		revs = append(revs, parent.Hash().String())

		parentTree, err := parent.Tree()
		if err != nil {
			free()

			return nil, nil, nil, fmt.Errorf("read parent tree %s: %w", parent.Hash(), err)
		}

		parentFiles, _ := parentTree.Subtree(filesRoot)
		roots = append(roots, parentFiles)
	}

	return revs, roots, free, nil
}

// detectMovement runs rename detection against the first parent. Movement is
// only derivable for single-parent revisions; merges never redirect blame
// through renames.
func (p *Precomputer) detectMovement(parentRoots []*gitlib.Tree, files *gitlib.Tree) (map[gitlib.Hash]string, error) {
	if len(parentRoots) != 1 || parentRoots[0] == nil || files == nil {
		return nil, nil
	}

	movement, err := p.Repo.FileMovement(parentRoots[0], files, p.Renames)
	if err != nil {
		return nil, fmt.Errorf("detect file movement: %w", err)
	}

	return movement, nil
}

// scanner walks the files partition of the new revision against its parents'
// and feeds the delta machine.
type scanner struct {
	ctx         context.Context
	pre         *Precomputer
	machine     *deltas.Machine
	data        *TimelineData
	parentRevs  []string
	parentRoots []*gitlib.Tree
	movement    map[gitlib.Hash]string
}

func (s *scanner) walk(newTree *gitlib.Tree, parents []*gitlib.Tree, prefix string) error {
	for i := uint64(0); i < newTree.EntryCount(); i++ {
		entry := newTree.EntryByIndex(i)
		path := joinPath(prefix, entry.Name())

		if sharedWithParent(parents, entry) {
			continue
		}

		switch entry.Filemode() {
		case modeTree:
			subtree, ok := newTree.Subtree(entry.Name())
			if !ok {
				return fmt.Errorf("load subtree %q of %s", path, s.data.SyntaxRev)
			}

			err := s.walk(subtree, alignSubtrees(parents, entry.Name()), path)
			if err != nil {
				return err
			}

		case modeSubmodule:
			// Submodules carry no tokens.

		default:
			err := s.file(entry, path)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// file precomputes the delta for one blob that differs from every parent.
// Token events are fed to the machine for the first parent only; further
// parents contribute unchanged-line pairs for blame propagation.
func (s *scanner) file(entry *gitlib.TreeEntry, path string) error {
	blob, err := s.pre.Repo.LookupBlob(s.ctx, entry.Hash())
	if err != nil {
		return fmt.Errorf("lookup blob %s at %q: %w", entry.Hash(), path, err)
	}
	defer blob.Free()

	delta := &FileDelta{
		Path:       path,
		LineCount:  gitlib.CountLines(blob.Contents()),
		Unmodified: make(map[string][]hunks.LinePair),
	}

	if s.movement != nil {
		if oldPath, ok := s.movement[entry.Hash()]; ok && oldPath != path {
			delta.MovedFrom = oldPath
		}
	}

	s.data.Files[path] = delta

	if len(s.parentRoots) == 0 {
		return s.ingest(delta, 0, "", nil, blob, path, true)
	}

	for i, parentRoot := range s.parentRoots {
		oldPath := path
		if i == 0 && delta.MovedFrom != "" {
			oldPath = delta.MovedFrom
		}

		feedTokens := i == 0

		oldEntry, found := lookupEntry(parentRoot, oldPath)
		if !found || oldEntry.Filemode() == modeTree || oldEntry.Filemode() == modeSubmodule {
			if feedTokens {
				err := s.ingest(delta, i, oldPath, nil, blob, path, true)
				if err != nil {
					return err
				}
			}

			continue
		}

		oldBlob, err := s.pre.Repo.LookupBlob(s.ctx, oldEntry.Hash())
		if err != nil {
			return fmt.Errorf("lookup parent blob %s at %q: %w", oldEntry.Hash(), oldPath, err)
		}

		err = s.ingest(delta, i, oldPath, oldBlob, blob, path, feedTokens)

		oldBlob.Free()

		if err != nil {
			return err
		}
	}

	return nil
}

// ingest diffs one blob pair and classifies its hunks. An offset mismatch
// abandons the file's pairs for this parent; blame then falls back to
// introduced-here records for its lines.
func (s *scanner) ingest(delta *FileDelta, parentIdx int, oldPath string, oldBlob, newBlob *gitlib.Blob, path string, feedTokens bool) error {
	patch, err := gitlib.PatchBlobs(oldBlob, newBlob, oldPath, path)
	if err != nil {
		return fmt.Errorf("diff %q against parent: %w", path, err)
	}

	if patch.Binary {
		delta.Binary = true

		return nil
	}

	parentRev := ""
	if parentIdx < len(s.parentRevs) {
		parentRev = s.parentRevs[parentIdx]
	}

	var sink hunks.TokenSink = nopSink{}

	if feedTokens {
		s.machine.BeginFile(s.pre.Classify(path), parentRev, oldPath, path)
		sink = s.machine
	}

	pairs, ingestErr := hunks.Ingest(convertHunks(patch.Hunks), delta.LineCount, sink)

	if feedTokens {
		if ingestErr != nil {
			s.machine.AbortFile()
		} else {
			s.machine.EndFile()
		}
	}

	if ingestErr != nil {
		if errors.Is(ingestErr, hunks.ErrOffsetMismatch) {
			s.data.OffsetMismatches++

			return nil
		}

		return ingestErr
	}

	if parentRev != "" && oldBlob != nil {
		delta.Unmodified[parentRev] = pairs
	}

	return nil
}

// deletions feeds the machine the tokens of files removed relative to the
// first parent, so code moved out of a deleted file still matches. Rename
// sources are not deletions.
func (s *scanner) deletions(files *gitlib.Tree) error {
	if len(s.parentRoots) == 0 || s.parentRoots[0] == nil {
		return nil
	}

	renameSources := make(map[string]bool, len(s.movement))
	for _, oldPath := range s.movement {
		renameSources[oldPath] = true
	}

	return s.deletedIn(s.parentRoots[0], files, "", renameSources)
}

func (s *scanner) deletedIn(oldTree, newTree *gitlib.Tree, prefix string, renameSources map[string]bool) error {
	for i := uint64(0); i < oldTree.EntryCount(); i++ {
		entry := oldTree.EntryByIndex(i)
		path := joinPath(prefix, entry.Name())

		var newEntry *gitlib.TreeEntry
		if newTree != nil {
			newEntry = newTree.EntryByName(entry.Name())
		}

		switch entry.Filemode() {
		case modeTree:
			if newEntry != nil && newEntry.Hash() == entry.Hash() {
				continue // Unchanged subtree, nothing deleted below it.
			}

			oldSub, ok := oldTree.Subtree(entry.Name())
			if !ok {
				return fmt.Errorf("load parent subtree %q", path)
			}

			var newSub *gitlib.Tree
			if newTree != nil && newEntry != nil && newEntry.Filemode() == modeTree {
				newSub, _ = newTree.Subtree(entry.Name())
			}

			err := s.deletedIn(oldSub, newSub, path, renameSources)
			if err != nil {
				return err
			}

		case modeSubmodule:

		default:
			if newEntry != nil && newEntry.Filemode() != modeTree {
				continue // Still a file; the forward walk covered it.
			}

			if renameSources[path] {
				continue
			}

			err := s.deletedFile(entry, path)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *scanner) deletedFile(entry *gitlib.TreeEntry, path string) error {
	oldBlob, err := s.pre.Repo.LookupBlob(s.ctx, entry.Hash())
	if err != nil {
		return fmt.Errorf("lookup deleted blob %s at %q: %w", entry.Hash(), path, err)
	}
	defer oldBlob.Free()

	patch, err := gitlib.PatchBlobs(oldBlob, nil, path, path)
	if err != nil {
		return fmt.Errorf("diff deleted %q: %w", path, err)
	}

	if patch.Binary {
		return nil
	}

	s.machine.BeginFile(s.pre.Classify(path), s.parentRevs[0], path, path)
	_, ingestErr := hunks.Ingest(convertHunks(patch.Hunks), 0, s.machine)

	if ingestErr != nil {
		s.machine.AbortFile()

		if !errors.Is(ingestErr, hunks.ErrOffsetMismatch) {
			return ingestErr
		}

		s.data.OffsetMismatches++

		return nil
	}

	s.machine.EndFile()

	return nil
}

// attachSplices converts inference edges and surviving removal-only runs
// into per-file blame splices.
func attachSplices(data *TimelineData, machine *deltas.Machine, result moves.Result) {
	parentIdx := make(map[string]int, len(data.ParentRevs))
	for i, rev := range data.ParentRevs {
		parentIdx[rev] = i
	}

	for _, edge := range result.Edges {
		delta, ok := data.Files[edge.NewPath]
		if !ok {
			continue
		}

		idx, ok := parentIdx[edge.ParentRev]
		if !ok {
			continue
		}

		delta.Predecessors = append(delta.Predecessors, blame.PredecessorSplice{
			NewLine:   edge.NewLine,
			ParentIdx: idx,
			OldPath:   edge.OldPath,
			OldLine:   edge.OldLine,
		})
	}

	for _, contexts := range machine.Clusters() {
		for _, cluster := range contexts {
			for _, run := range cluster.Runs {
				attachMarker(data, parentIdx, run)
			}
		}
	}
}

// attachMarker anchors a removal marker for a removal-only run whose tokens
// were not explained as moves. Removals inside a file that no longer exists
// have no anchor and leave no marker.
func attachMarker(data *TimelineData, parentIdx map[string]int, run *deltas.Run) {
	if len(run.Added) > 0 || len(run.Removed) == 0 {
		return
	}

	first, count := 0, 0

	for _, token := range run.Removed {
		if token.Consumed {
			continue
		}

		if count == 0 {
			first = token.Line
		}

		count++
	}

	if count == 0 {
		return
	}

	delta, ok := data.Files[run.NewPath]
	if !ok {
		return
	}

	idx, ok := parentIdx[run.ParentRev]
	if !ok {
		return
	}

	delta.Markers = append(delta.Markers, blame.MarkerSplice{
		ParentIdx:    idx,
		OldPath:      run.OldPath,
		FirstOldLine: first,
		Count:        count,
	})
}

// nopSink discards token events; used when ingesting against non-first
// parents purely for unchanged-line pairs.
type nopSink struct{}

func (nopSink) Token(byte, int, string, string) {}
func (nopSink) Unchanged()                      {}
func (nopSink) FlushHunk()                      {}

func sharedWithParent(parents []*gitlib.Tree, entry *gitlib.TreeEntry) bool {
	for _, parent := range parents {
		if parent == nil {
			continue
		}

		parentEntry := parent.EntryByName(entry.Name())
		if parentEntry != nil && parentEntry.Hash() == entry.Hash() {
			return true
		}
	}

	return false
}

func alignSubtrees(parents []*gitlib.Tree, name string) []*gitlib.Tree {
	aligned := make([]*gitlib.Tree, len(parents))

	for i, parent := range parents {
		if parent == nil {
			continue
		}

		subtree, ok := parent.Subtree(name)
		if ok {
			aligned[i] = subtree
		}
	}

	return aligned
}

// lookupEntry descends a tree along a slash-separated path.
func lookupEntry(root *gitlib.Tree, path string) (*gitlib.TreeEntry, bool) {
	if root == nil {
		return nil, false
	}

	tree := root
	segments := strings.Split(path, "/")

	for _, segment := range segments[:len(segments)-1] {
		subtree, ok := tree.Subtree(segment)
		if !ok {
			return nil, false
		}

		tree = subtree
	}

	entry := tree.EntryByName(segments[len(segments)-1])
	if entry == nil {
		return nil, false
	}

	return entry, true
}

func convertHunks(patchHunks [][]gitlib.HunkLine) [][]hunks.Line {
	converted := make([][]hunks.Line, len(patchHunks))

	for i, hunk := range patchHunks {
		lines := make([]hunks.Line, len(hunk))
		for j, line := range hunk {
			lines[j] = hunks.Line{
				Origin:    line.Origin,
				OldLineno: line.OldLineno,
				NewLineno: line.NewLineno,
				Content:   line.Content,
			}
		}

		converted[i] = lines
	}

	return converted
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "/" + name
}
