package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Tree wraps a libgit2 tree.
type Tree struct {
	tree *git2go.Tree
	repo *Repository
}

// Hash returns the tree hash.
func (t *Tree) Hash() Hash {
	return HashFromOid(t.tree.Id())
}

// EntryCount returns the number of entries in the tree.
func (t *Tree) EntryCount() uint64 {
	return t.tree.EntryCount()
}

// EntryByIndex returns the tree entry at the given index.
func (t *Tree) EntryByIndex(i uint64) *TreeEntry {
	entry := t.tree.EntryByIndex(i)
	if entry == nil {
		return nil
	}

	return &TreeEntry{entry: entry}
}

// EntryByName returns the direct tree entry with the given name, or nil if
// the tree has no such entry.
func (t *Tree) EntryByName(name string) *TreeEntry {
	entry := t.tree.EntryByName(name)
	if entry == nil {
		return nil
	}

	return &TreeEntry{entry: entry}
}

// Subtree looks up the direct subtree with the given name. The second return
// is false when the entry is absent or not a tree; both are expected when
// aligning parent trees.
func (t *Tree) Subtree(name string) (*Tree, bool) {
	entry := t.tree.EntryByName(name)
	if entry == nil || entry.Type != git2go.ObjectTree {
		return nil, false
	}

	subtree, err := t.repo.LookupTree(HashFromOid(entry.Id))
	if err != nil {
		return nil, false
	}

	return subtree, true
}

// EntryByPath returns the tree entry at the given path.
func (t *Tree) EntryByPath(path string) (*TreeEntry, error) {
	entry, err := t.tree.EntryByPath(path)
	if err != nil {
		return nil, fmt.Errorf("entry by path: %w", err)
	}

	return &TreeEntry{entry: entry}, nil
}

// Free releases the tree resources.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// Native returns the underlying libgit2 tree.
func (t *Tree) Native() *git2go.Tree {
	return t.tree
}

// TreeEntry wraps a libgit2 tree entry.
type TreeEntry struct {
	entry *git2go.TreeEntry
}

// Name returns the entry name.
func (e *TreeEntry) Name() string {
	return e.entry.Name
}

// Hash returns the entry object hash.
func (e *TreeEntry) Hash() Hash {
	return HashFromOid(e.entry.Id)
}

// Type returns the entry type.
func (e *TreeEntry) Type() git2go.ObjectType {
	return e.entry.Type
}

// Filemode returns the entry's tree mode bits.
func (e *TreeEntry) Filemode() uint32 {
	return uint32(e.entry.Filemode)
}

// IsBlob returns true if the entry is a blob.
func (e *TreeEntry) IsBlob() bool {
	return e.entry.Type == git2go.ObjectBlob
}
