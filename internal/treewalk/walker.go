// Package treewalk writes a revision's history tree by walking its file tree
// against each parent's, sharing unmodified subtrees by reference and only
// re-deriving provenance for entries that differ from every parent. This
// keeps per-revision commit cost proportional to the diff, not the tree.
package treewalk

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
)

// ErrUnexpectedEntry reports a tree entry kind the walker cannot represent.
// Continuing would write corrupt provenance, so the run aborts.
var ErrUnexpectedEntry = errors.New("unexpected tree entry kind")

// ErrMissingShared reports that a parent's history tree lacks an object the
// structural-sharing copy requires. The parent was committed by this same
// pipeline, so absence is a defect.
var ErrMissingShared = errors.New("shared history object missing in parent")

// Kind is a tree entry kind.
type Kind int

// Entry kinds.
const (
	KindBlob Kind = iota
	KindTree
	KindSubmodule
	KindOther
)

// Entry is one tree entry.
type Entry struct {
	Name string
	ID   string
	Kind Kind
	Mode uint32
}

// Tree is a read-only file tree.
type Tree interface {
	Entries() ([]Entry, error)
	// Entry returns the direct entry with the given name.
	Entry(name string) (Entry, bool)
	// Subtree returns the direct subtree with the given name.
	Subtree(name string) (Tree, bool)
}

// Importer is the subset of the fast-import session the walker writes
// through.
type Importer interface {
	ModifyOID(mode uint32, oid, path string) error
	ModifyInline(mode uint32, path string, data []byte) error
	ModifySubmodule(path string) error
	Ls(commit fastimport.Commitish, path string) (string, bool, error)
}

// Blamer derives the annotated blob for a modified file.
type Blamer interface {
	BlameFile(path, blobID string, blameParents []fastimport.Commitish) ([]byte, error)
}

// Walker writes one commit's tree under a partition prefix.
type Walker struct {
	Importer  Importer
	Blamer    Blamer
	Partition string
}

// frame is one unit of the explicit work stack; parents stay aligned by
// index with the blame parents and are never reordered, with nil holes for
// parents lacking the subtree.
type frame struct {
	tree    Tree
	parents []Tree
	path    string
}

// Walk writes the history tree for the revision whose file tree is root.
// parentRoots align by index with blameParents.
func (w *Walker) Walk(root Tree, parentRoots []Tree, blameParents []fastimport.Commitish) error {
	stack := []frame{{tree: root, parents: parentRoots, path: ""}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := w.walkFrame(current, blameParents, &stack)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) walkFrame(current frame, blameParents []fastimport.Commitish, stack *[]frame) error {
	entries, err := current.tree.Entries()
	if err != nil {
		return fmt.Errorf("read tree at %q: %w", current.path, err)
	}

	for _, entry := range entries {
		entryPath := joinPath(current.path, entry.Name)

		shared, shareErr := w.shareUnchanged(entry, entryPath, current.parents, blameParents)
		if shareErr != nil {
			return shareErr
		}

		if shared {
			continue
		}

		switch entry.Kind {
		case KindBlob:
			blameData, blameErr := w.Blamer.BlameFile(entryPath, entry.ID, blameParents)
			if blameErr != nil {
				return blameErr
			}

			writeErr := w.Importer.ModifyInline(entry.Mode, w.partitionPath(entryPath), blameData)
			if writeErr != nil {
				return writeErr
			}

		case KindSubmodule:
			// Blame inside a foreign repository is not derivable; a
			// fixed placeholder keeps the entry reproducible.
			writeErr := w.Importer.ModifySubmodule(w.partitionPath(entryPath))
			if writeErr != nil {
				return writeErr
			}

		case KindTree:
			subtree, ok := current.tree.Subtree(entry.Name)
			if !ok {
				return fmt.Errorf("%w: tree entry %q not loadable", ErrUnexpectedEntry, entryPath)
			}

			*stack = append(*stack, frame{
				tree:    subtree,
				parents: alignSubtrees(current.parents, entry.Name),
				path:    entryPath,
			})

		case KindOther:
			return fmt.Errorf("%w at %q", ErrUnexpectedEntry, entryPath)
		}
	}

	return nil
}

// shareUnchanged copies the entry by reference when some parent has an
// identical entry at the same path, checking parents in order.
func (w *Walker) shareUnchanged(entry Entry, entryPath string, parents []Tree, blameParents []fastimport.Commitish) (bool, error) {
	for i, parent := range parents {
		if parent == nil {
			continue
		}

		parentEntry, ok := parent.Entry(entry.Name)
		if !ok || parentEntry.ID != entry.ID {
			continue
		}

		// Same content id in this parent: the blame is the same too.
		oid, found, err := w.Importer.Ls(blameParents[i], w.partitionPath(entryPath))
		if err != nil {
			return false, err
		}

		if !found {
			return false, fmt.Errorf("%w: %q under %s", ErrMissingShared, entryPath, blameParents[i])
		}

		err = w.Importer.ModifyOID(entry.Mode, oid, w.partitionPath(entryPath))
		if err != nil {
			return false, err
		}

		return true, nil
	}

	return false, nil
}

// alignSubtrees descends each parent to the named subtree, keeping nil holes
// in place so indices stay aligned with blame parents. A parent whose entry
// is not a tree (a submodule replaced by a directory, say) becomes a hole.
func alignSubtrees(parents []Tree, name string) []Tree {
	aligned := make([]Tree, len(parents))

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

func (w *Walker) partitionPath(path string) string {
	if w.Partition == "" {
		return path
	}

	return w.Partition + "/" + path
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}
