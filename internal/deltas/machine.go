// Package deltas accumulates token add/remove events from diff ingestion
// into contiguous same-context runs, clustered by (namespace, context) for
// move and evolution inference once every file in the revision has been
// classified.
package deltas

import (
	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
)

// Token is one added or removed token with its 1-based line number in the
// respective revision. Consumed tokens have been explained by a move or
// evolution; the raw token is retained for invariant checks.
type Token struct {
	Consumed bool
	Line     int
	Text     string
}

// Evolution pairs a removed token with the added token it evolved into.
type Evolution struct {
	OldLine int
	OldText string
	NewLine int
	NewText string
}

// Run is a maximal sequence of added and/or removed tokens sharing one
// context within one file's diff against one parent.
type Run struct {
	// ParentRev identifies the parent revision the removals refer to.
	ParentRev string
	// OldPath is the file's path in that parent; NewPath its path now.
	OldPath string
	NewPath string

	Added   []Token
	Removed []Token
	Evolved []Evolution
}

// Cluster groups the runs of one (namespace, context) pair across all files
// touched in the revision.
type Cluster struct {
	Runs []*Run
}

// Similarity decides whether a removed and an added token are close enough
// to classify as a single-token evolution.
type Similarity func(removed, added string) bool

// Machine accumulates runs for one revision. It implements
// [hunks.TokenSink]; callers must bracket each file's ingestion with
// BeginFile and EndFile.
type Machine struct {
	similar Similarity

	namespace string
	parentRev string
	oldPath   string
	newPath   string

	curContext string
	inRun      bool
	added      []Token
	removed    []Token

	clusters map[string]map[string]*Cluster
}

// NewMachine builds an empty accumulator.
func NewMachine(similar Similarity) *Machine {
	return &Machine{
		similar:  similar,
		clusters: make(map[string]map[string]*Cluster),
	}
}

// BeginFile starts accumulation for one file diffed against one parent.
func (m *Machine) BeginFile(namespace, parentRev, oldPath, newPath string) {
	m.flush(false)

	m.namespace = namespace
	m.parentRev = parentRev
	m.oldPath = oldPath
	m.newPath = newPath
}

// EndFile closes the file's trailing run.
func (m *Machine) EndFile() {
	m.flush(false)
}

// AbortFile discards the pending run after aborted ingestion. Tokens from a
// diff with inconsistent offsets must not reach the clusters.
func (m *Machine) AbortFile() {
	m.added = nil
	m.removed = nil
	m.inRun = false
}

// Token implements [hunks.TokenSink]. A context change between consecutive
// events closes the current run without single-token evolution inference.
func (m *Machine) Token(origin byte, lineno int, context, token string) {
	if m.inRun && context != m.curContext {
		m.flush(false)
	}

	if !m.inRun {
		m.curContext = context
		m.inRun = true
	}

	switch origin {
	case hunks.OriginAddition:
		m.added = append(m.added, Token{Line: lineno, Text: token})
	case hunks.OriginDeletion:
		m.removed = append(m.removed, Token{Line: lineno, Text: token})
	}
}

// Unchanged implements [hunks.TokenSink]: an unchanged line closes the run
// and permits single-token evolution inference.
func (m *Machine) Unchanged() {
	m.flush(true)
}

// FlushHunk implements [hunks.TokenSink]. A hunk boundary is not an
// unchanged-line signal, so no evolution is inferred.
func (m *Machine) FlushHunk() {
	m.flush(false)
}

// Clusters returns the accumulated (namespace, context) clusters.
func (m *Machine) Clusters() map[string]map[string]*Cluster {
	return m.clusters
}

func (m *Machine) flush(inferSingleEvolution bool) {
	if len(m.added) == 0 && len(m.removed) == 0 {
		m.inRun = false

		return
	}

	run := &Run{
		ParentRev: m.parentRev,
		OldPath:   m.oldPath,
		NewPath:   m.newPath,
	}

	if inferSingleEvolution && len(m.added) == 1 && len(m.removed) == 1 &&
		m.similar != nil && m.similar(m.removed[0].Text, m.added[0].Text) {
		run.Evolved = []Evolution{{
			OldLine: m.removed[0].Line,
			OldText: m.removed[0].Text,
			NewLine: m.added[0].Line,
			NewText: m.added[0].Text,
		}}
	} else {
		run.Added = m.added
		run.Removed = m.removed
	}

	contexts, ok := m.clusters[m.namespace]
	if !ok {
		contexts = make(map[string]*Cluster)
		m.clusters[m.namespace] = contexts
	}

	cluster, ok := contexts[m.curContext]
	if !ok {
		cluster = &Cluster{}
		contexts[m.curContext] = cluster
	}

	cluster.Runs = append(cluster.Runs, run)

	m.added = nil
	m.removed = nil
	m.inRun = false
}
