package fastimport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// NullParent is the parent id of a root commit.
const NullParent = "0000000000000000000000000000000000000000"

// EmptyTreeOID is the reproducible id of an empty tree, used as the
// submodule placeholder entry.
const EmptyTreeOID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// SubmoduleMode is the tree entry mode of a submodule (gitlink).
const SubmoduleMode = 0o160000

// ErrProtocol is returned when the session's read side produces a response
// the client cannot parse.
var ErrProtocol = errors.New("fast-import protocol error")

// ErrSessionFailed is returned when the fast-import process exits non-zero.
var ErrSessionFailed = errors.New("fast-import session failed")

// Ident is an author or committer identity.
type Ident struct {
	Name  string
	Email string
	When  time.Time
}

// CommitHeader describes a new commit to begin on a ref. The first parent is
// declared with "from", any further parents with "merge". A header without
// parents starts a new root commit.
type CommitHeader struct {
	Ref       string
	Mark      int
	Author    Ident
	Committer Ident
	Message   string
	Parents   []Commitish
}

// Client speaks the fast-import protocol over a duplex byte stream.
type Client struct {
	w    *bufio.Writer
	r    *bufio.Reader
	cmd  *exec.Cmd
	done func() error
}

// Start spawns `git fast-import` against the repository at repoPath and
// returns a client bound to its pipes. --force is required because the ref
// being extended may have been initialized from an unrelated branch head.
func Start(repoPath string) (*Client, error) {
	cmd := exec.Command("git", "fast-import", "--force", "--quiet")
	cmd.Dir = repoPath

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("fast-import stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("fast-import stdout: %w", err)
	}

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("start fast-import: %w", err)
	}

	client := New(stdin, stdout)
	client.cmd = cmd
	client.done = func() error {
		closeErr := stdin.Close()
		if closeErr != nil {
			return fmt.Errorf("close fast-import stdin: %w", closeErr)
		}

		waitErr := cmd.Wait()
		if waitErr != nil {
			return fmt.Errorf("%w: %w", ErrSessionFailed, waitErr)
		}

		return nil
	}

	return client, nil
}

// New builds a client over explicit endpoints. Used directly in tests and by
// Start.
func New(w io.Writer, r io.Reader) *Client {
	return &Client{
		w: bufio.NewWriter(w),
		r: bufio.NewReader(r),
	}
}

// BeginCommit writes the commit header: ref, mark, identities, message
// (length-prefixed) and parent declarations.
func (c *Client) BeginCommit(header CommitHeader) error {
	fmt.Fprintf(c.w, "commit %s\n", header.Ref)
	fmt.Fprintf(c.w, "mark :%d\n", header.Mark)
	c.writeIdent("author", header.Author)
	c.writeIdent("committer", header.Committer)
	fmt.Fprintf(c.w, "data %d\n%s\n", len(header.Message), header.Message)

	if len(header.Parents) == 0 {
		fmt.Fprintf(c.w, "from %s\n", NullParent)
	} else {
		fmt.Fprintf(c.w, "from %s\n", header.Parents[0])
		for _, parent := range header.Parents[1:] {
			fmt.Fprintf(c.w, "merge %s\n", parent)
		}
	}

	return c.flush()
}

// writeIdent writes an author/committer line in the raw date format:
// seconds-since-epoch plus zone offset.
func (c *Client) writeIdent(role string, ident Ident) {
	_, offsetSeconds := ident.When.Zone()

	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}

	const secondsPerMinute, minutesPerHour = 60, 60

	offsetMinutes := offsetSeconds / secondsPerMinute

	fmt.Fprintf(c.w, "%s %s <%s> %d %s%02d%02d\n",
		role, ident.Name, ident.Email, ident.When.Unix(),
		sign, offsetMinutes/minutesPerHour, offsetMinutes%minutesPerHour)
}

// DeletePath deletes the subtree or file at path in the commit being built,
// leaving sibling subtrees untouched.
func (c *Client) DeletePath(path string) error {
	fmt.Fprintf(c.w, "D %s\n", QuotePath(path))

	return c.flush()
}

// ModifyOID adds a file entry referencing an existing object, the structural
// sharing write.
func (c *Client) ModifyOID(mode uint32, oid, path string) error {
	fmt.Fprintf(c.w, "M %06o %s %s\n", mode, oid, QuotePath(path))

	return c.flush()
}

// ModifyInline adds a file entry with inline, length-prefixed content.
func (c *Client) ModifyInline(mode uint32, path string, data []byte) error {
	fmt.Fprintf(c.w, "M %06o inline %s\n", mode, QuotePath(path))
	fmt.Fprintf(c.w, "data %d\n", len(data))

	_, err := c.w.Write(data)
	if err != nil {
		return fmt.Errorf("write inline data: %w", err)
	}

	// The optional trailing LF after inline data is skipped; annotated
	// blobs always end in LF already.
	return c.flush()
}

// ModifySubmodule adds a submodule placeholder entry at path.
func (c *Client) ModifySubmodule(path string) error {
	return c.ModifyOID(SubmoduleMode, EmptyTreeOID, path)
}

// Ls looks up the object id at path under the given commit. The second
// return is false when the path does not exist there; that is an expected
// absence, not an error.
func (c *Client) Ls(commit Commitish, path string) (string, bool, error) {
	fmt.Fprintf(c.w, "ls %s %s\n", commit, QuotePath(path))

	err := c.flush()
	if err != nil {
		return "", false, err
	}

	// Response: <mode> SP ('blob'|'tree'|'commit') SP <dataref> HT <path> LF
	// or:       'missing' SP <path> LF
	line, err := c.readLine()
	if err != nil {
		return "", false, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, fmt.Errorf("%w: empty ls response", ErrProtocol)
	}

	if fields[0] == "missing" {
		return "", false, nil
	}

	const datarefField = 3
	if len(fields) < datarefField {
		return "", false, fmt.Errorf("%w: ls response %q", ErrProtocol, line)
	}

	return fields[2], true, nil
}

// CatBlob fetches a blob's bytes by id. The response carries an explicit
// byte count, so embedded newlines in content never confuse the framing.
func (c *Client) CatBlob(oid string) ([]byte, error) {
	fmt.Fprintf(c.w, "cat-blob %s\n", oid)

	err := c.flush()
	if err != nil {
		return nil, err
	}

	// Response: <sha1> SP 'blob' SP <size> LF <size bytes> LF
	header, err := c.readLine()
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(header)

	const headerFields = 3
	if len(fields) != headerFields || fields[1] != "blob" {
		return nil, fmt.Errorf("%w: cat-blob header %q", ErrProtocol, header)
	}

	size, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: cat-blob size %q", ErrProtocol, fields[2])
	}

	// Read size bytes plus the trailing LF, then drop the LF.
	buf := make([]byte, size+1)

	_, err = io.ReadFull(c.r, buf)
	if err != nil {
		return nil, fmt.Errorf("read cat-blob payload: %w", err)
	}

	return buf[:size], nil
}

// GetMark resolves a mark assigned earlier in the stream to its final object
// id. Needed when a durable id must be persisted before the session ends.
func (c *Client) GetMark(mark int) (string, error) {
	fmt.Fprintf(c.w, "get-mark :%d\n", mark)

	err := c.flush()
	if err != nil {
		return "", err
	}

	line, err := c.readLine()
	if err != nil {
		return "", err
	}

	if line == "" || strings.ContainsRune(line, ' ') {
		return "", fmt.Errorf("%w: get-mark response %q", ErrProtocol, line)
	}

	return line, nil
}

// Checkpoint flushes the session's pending refs and objects, bounding the
// cost of a crash mid-run.
func (c *Client) Checkpoint() error {
	fmt.Fprint(c.w, "checkpoint\n")

	return c.flush()
}

// Close ends the session and surfaces the process exit status.
func (c *Client) Close() error {
	err := c.flush()
	if err != nil {
		return err
	}

	if c.done != nil {
		return c.done()
	}

	return nil
}

func (c *Client) flush() error {
	err := c.w.Flush()
	if err != nil {
		return fmt.Errorf("flush fast-import stream: %w", err)
	}

	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read fast-import response: %w", err)
	}

	return strings.TrimSuffix(line, "\n"), nil
}
