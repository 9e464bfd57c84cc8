package timeline

import (
	"strings"
)

// CommitLinkage is the triple persisted in every history-store commit
// message. It is the only durable linkage between the source, syntax and
// history repositories and must remain parseable by downstream indexers.
type CommitLinkage struct {
	SourceRev  string
	SyntaxRev  string
	ForeignRev string // optional hg revision
}

// BuildMessage renders the commit message schema:
//
//	git <source-rev>
//	syntax <syntax-rev>
//	hg <foreign-rev>       (only when a mapping exists)
func (l CommitLinkage) BuildMessage() string {
	var sb strings.Builder

	sb.WriteString("git ")
	sb.WriteString(l.SourceRev)
	sb.WriteString("\nsyntax ")
	sb.WriteString(l.SyntaxRev)
	sb.WriteByte('\n')

	if l.ForeignRev != "" {
		sb.WriteString("hg ")
		sb.WriteString(l.ForeignRev)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// ParseMessage extracts the linkage triple from a history commit message.
// The second return is false when the message does not carry the schema.
func ParseMessage(message string) (CommitLinkage, bool) {
	var linkage CommitLinkage

	for _, line := range strings.Split(message, "\n") {
		switch {
		case strings.HasPrefix(line, "git "):
			linkage.SourceRev = strings.TrimSpace(line[len("git "):])
		case strings.HasPrefix(line, "syntax "):
			linkage.SyntaxRev = strings.TrimSpace(line[len("syntax "):])
		case strings.HasPrefix(line, "hg "):
			linkage.ForeignRev = strings.TrimSpace(line[len("hg "):])
		}
	}

	return linkage, linkage.SourceRev != "" && linkage.SyntaxRev != ""
}
