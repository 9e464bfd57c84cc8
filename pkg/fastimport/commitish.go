package fastimport

import "fmt"

// Commitish names a commit in the session: either a pre-existing object id,
// or a mark assigned to a commit written earlier in the same stream whose
// final id is not yet known.
type Commitish struct {
	oid  string
	mark int
}

// OID references a commit by its resolved object id.
func OID(oid string) Commitish {
	return Commitish{oid: oid}
}

// Mark references a commit by its in-stream mark number.
func Mark(id int) Commitish {
	return Commitish{mark: id}
}

// MarkID returns the mark number when the commitish is mark based.
func (c Commitish) MarkID() (int, bool) {
	return c.mark, c.oid == "" && c.mark != 0
}

// ObjectID returns the resolved object id, empty for mark-based commitishes.
func (c Commitish) ObjectID() string {
	return c.oid
}

// IsZero reports whether the commitish references nothing.
func (c Commitish) IsZero() bool {
	return c.oid == "" && c.mark == 0
}

// String renders the commitish in stream syntax; marks take the form
// ":<idnum>".
func (c Commitish) String() string {
	if c.oid != "" {
		return c.oid
	}

	return fmt.Sprintf(":%d", c.mark)
}
