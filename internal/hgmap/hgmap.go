// Package hgmap resolves git commit ids to their Mercurial equivalents
// through a long-running `git cinnabar git2hg --batch` process. Repositories
// without a Mercurial ancestry get a resolver that always reports absence.
package hgmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// nullRev is cinnabar's answer for a commit with no Mercurial counterpart.
const nullRev = "0000000000000000000000000000000000000000"

// ErrResolverClosed reports a lookup after Close.
var ErrResolverClosed = errors.New("hg resolver closed")

// Resolver maps git revisions to Mercurial revisions.
type Resolver interface {
	// Resolve returns the Mercurial revision for a git revision. The second
	// return is false when the commit has no Mercurial counterpart.
	Resolve(gitRev string) (string, bool, error)
	Close() error
}

// none is the resolver for git-only repositories.
type none struct{}

func (none) Resolve(string) (string, bool, error) { return "", false, nil }
func (none) Close() error                         { return nil }

// None returns a resolver that reports every revision as unmapped.
func None() Resolver {
	return none{}
}

// Cinnabar queries one cinnabar batch process, one lookup per line.
type Cinnabar struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	cache  map[string]string
	closed bool
}

// Start launches the batch process against the given repository.
func Start(repoPath string) (*Cinnabar, error) {
	cmd := exec.Command("git", "cinnabar", "git2hg", "--batch")
	cmd.Dir = repoPath

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open cinnabar stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open cinnabar stdout: %w", err)
	}

	startErr := cmd.Start()
	if startErr != nil {
		return nil, fmt.Errorf("start git cinnabar: %w", startErr)
	}

	resolver := New(stdin, stdout)
	resolver.cmd = cmd

	return resolver, nil
}

// New wires a resolver over explicit pipes. Used directly in tests.
func New(w io.WriteCloser, r io.Reader) *Cinnabar {
	return &Cinnabar{
		stdin:  w,
		stdout: bufio.NewReader(r),
		cache:  make(map[string]string),
	}
}

// Resolve looks up one git revision.
func (c *Cinnabar) Resolve(gitRev string) (string, bool, error) {
	if c.closed {
		return "", false, ErrResolverClosed
	}

	if cached, ok := c.cache[gitRev]; ok {
		return cached, cached != "", nil
	}

	_, writeErr := fmt.Fprintf(c.stdin, "%s\n", gitRev)
	if writeErr != nil {
		return "", false, fmt.Errorf("query cinnabar: %w", writeErr)
	}

	line, readErr := c.stdout.ReadString('\n')
	if readErr != nil {
		return "", false, fmt.Errorf("read cinnabar answer: %w", readErr)
	}

	hgRev := strings.TrimSpace(line)
	if hgRev == nullRev || hgRev == "" {
		c.cache[gitRev] = ""

		return "", false, nil
	}

	c.cache[gitRev] = hgRev

	return hgRev, true, nil
}

// Close shuts the batch process down.
func (c *Cinnabar) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	closeErr := c.stdin.Close()

	if c.cmd != nil {
		waitErr := c.cmd.Wait()

		return errors.Join(closeErr, waitErr)
	}

	return closeErr
}
