package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Line origins of a blob patch, matching the diff stream characters.
const (
	// OriginContext marks a line present in both blobs.
	OriginContext byte = ' '
	// OriginAddition marks a line only present in the new blob.
	OriginAddition byte = '+'
	// OriginDeletion marks a line only present in the old blob.
	OriginDeletion byte = '-'
)

// HunkLine is one line of a hunk. Line numbers are 1-based; zero means the
// line has no number on that side (additions have no old number, deletions no
// new number).
type HunkLine struct {
	Origin    byte
	OldLineno int
	NewLineno int
	Content   string
}

// BlobPatch is the line-oriented diff of a blob pair, grouped by hunk.
type BlobPatch struct {
	Binary bool
	Hunks  [][]HunkLine
}

// PatchBlobs diffs two blobs and collects their hunk lines. Binary blobs
// yield a patch with Binary set and no hunks.
func PatchBlobs(oldBlob, newBlob *Blob, oldPath, newPath string) (*BlobPatch, error) {
	patch := &BlobPatch{}

	var oldNative, newNative *git2go.Blob

	if oldBlob != nil {
		oldNative = oldBlob.Native()
	}

	if newBlob != nil {
		newNative = newBlob.Native()
	}

	fileCallback := func(delta git2go.DiffDelta, _ float64) (git2go.DiffForEachHunkCallback, error) {
		if delta.Flags&git2go.DiffFlagBinary != 0 {
			patch.Binary = true
		}

		return func(_ git2go.DiffHunk) (git2go.DiffForEachLineCallback, error) {
			patch.Hunks = append(patch.Hunks, nil)

			return func(line git2go.DiffLine) error {
				origin, ok := lineOrigin(line.Origin)
				if !ok {
					return nil
				}

				hunkIdx := len(patch.Hunks) - 1
				patch.Hunks[hunkIdx] = append(patch.Hunks[hunkIdx], HunkLine{
					Origin:    origin,
					OldLineno: line.OldLineno,
					NewLineno: line.NewLineno,
					Content:   line.Content,
				})

				return nil
			}, nil
		}, nil
	}

	err := git2go.DiffBlobs(oldNative, oldPath, newNative, newPath, nil, fileCallback, git2go.DiffDetailLines)
	if err != nil {
		return nil, fmt.Errorf("diff blobs: %w", err)
	}

	if patch.Binary {
		patch.Hunks = nil
	}

	return patch, nil
}

func lineOrigin(origin git2go.DiffLineType) (byte, bool) {
	switch origin {
	case git2go.DiffLineContext:
		return OriginContext, true
	case git2go.DiffLineAddition:
		return OriginAddition, true
	case git2go.DiffLineDeletion:
		return OriginDeletion, true
	case git2go.DiffLineContextEOFNL,
		git2go.DiffLineAddEOFNL,
		git2go.DiffLineDelEOFNL,
		git2go.DiffLineFileHdr,
		git2go.DiffLineHunkHdr,
		git2go.DiffLineBinary:
		return 0, false
	default:
		return 0, false
	}
}

// CountLines counts the lines of a blob's content; a missing trailing
// newline still counts as a line.
func CountLines(data []byte) int {
	return countLines(data)
}
