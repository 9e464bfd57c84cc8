package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenDeltaDetails holds per-token change counts for one revision. Unlike a
// net-change view, a token can have both added and removed greater than zero
// in the same revision.
type TokenDeltaDetails struct {
	// Added counts "+" deltas not attributed to a matching "-" delta.
	Added uint32 `json:"added"`
	// Moved counts paired "+"/"-" deltas believed to be moved or very
	// lightly refactored code.
	Moved uint32 `json:"moved"`
	// EvolvedFrom counts additions believed to be renames of a removed
	// token.
	EvolvedFrom uint32 `json:"evolved_from"`
	// Removed counts "-" deltas not attributed to "moved".
	Removed uint32 `json:"removed"`
}

// IsZero reports whether no change was recorded.
func (d TokenDeltaDetails) IsZero() bool {
	return d == TokenDeltaDetails{}
}

// Accumulate adds the counts of other into d.
func (d *TokenDeltaDetails) Accumulate(other TokenDeltaDetails) {
	d.Added += other.Added
	d.Moved += other.Moved
	d.EvolvedFrom += other.EvolvedFrom
	d.Removed += other.Removed
}

// ChangeKind classifies what happened to a symbol or token in a revision.
type ChangeKind string

const (
	// ChangeAdded marks a newly added symbol.
	ChangeAdded ChangeKind = "added"
	// ChangeChanged marks a symbol that existed before and still exists,
	// but whose contents or position changed.
	ChangeChanged ChangeKind = "changed"
	// ChangeEvolved marks a symbol that was renamed or otherwise
	// fundamentally changed, with a known prior identity.
	ChangeEvolved ChangeKind = "evolved"
	// ChangeRemoved marks a removed symbol.
	ChangeRemoved ChangeKind = "removed"
)

// SymbolDelta summarizes changes at symbol granularity; the symbol's pretty
// identifier is the key of the owning map.
type SymbolDelta struct {
	Change ChangeKind `json:"change"`

	// TokenChanges maps tokens within the symbol's scope to their deltas.
	TokenChanges map[string]TokenDeltaDetails `json:"token_changes"`
}

// SymbolDeltaGroup aggregates symbol deltas for one revision. The NoContext
// sentinel keys changes outside any scope.
type SymbolDeltaGroup struct {
	SymbolDeltas map[string]*SymbolDelta `json:"symbol_deltas"`
}

// DetailRecordRef identifies the revision a detail record describes.
type DetailRecordRef struct {
	// SourceRev is the source revision this record contains details for.
	SourceRev string `json:"source_rev"`
	// SyntaxRev is the syntax revision corresponding to that source
	// revision.
	SyntaxRev string `json:"syntax_rev"`
	// ISODate is the ISO 8601 committer date of the revision.
	ISODate string `json:"iso_date"`
}

// ISOWeekRange is the [year, newest week, oldest week] range a summary
// covers, both weeks inclusive. Summaries never overlap, so sorting by the
// triple orders them.
type ISOWeekRange struct {
	Year       int `json:"year"`
	NewestWeek int `json:"newest_week"`
	OldestWeek int `json:"oldest_week"`
}

// SummaryRecordRef identifies the revisions aggregated into a summary record.
type SummaryRecordRef struct {
	// SourceRevs lists the aggregated source revisions, newest first. A
	// single-element list is valid; aggregation is week based, not count
	// based.
	SourceRevs []string `json:"source_revs"`
	// PredTimelineRev is the history-store revision immediately preceding
	// the revision that wrote this summary; the constituent detail records
	// are all reachable there.
	PredTimelineRev string `json:"pred_timeline_rev"`
	// ISOWeekRange is the week range this summary covers.
	ISOWeekRange ISOWeekRange `json:"iso_week_range"`
}

// Record type tags of the ND-JSON union.
const (
	RecordTypeDetail  = "detail"
	RecordTypeSummary = "summary"
)

// TokenDeltaRecord is one line of a token shard file: either a per-revision
// detail or a weekly summary.
type TokenDeltaRecord struct {
	Type string `json:"type"`

	Detail  *DetailRecordRef  `json:"detail,omitempty"`
	Summary *SummaryRecordRef `json:"summary,omitempty"`

	Delta TokenDeltaDetails `json:"delta"`
}

// AppendNDJSON renders records as newline-delimited JSON.
func AppendNDJSON(records []TokenDeltaRecord) ([]byte, error) {
	var sb strings.Builder

	for i := range records {
		encoded, err := json.Marshal(&records[i])
		if err != nil {
			return nil, fmt.Errorf("marshal token delta record: %w", err)
		}

		sb.Write(encoded)
		sb.WriteByte('\n')
	}

	return []byte(sb.String()), nil
}

// ParseNDJSON decodes a token shard blob.
func ParseNDJSON(data []byte) ([]TokenDeltaRecord, error) {
	var records []TokenDeltaRecord

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}

		var rec TokenDeltaRecord

		err := json.Unmarshal([]byte(line), &rec)
		if err != nil {
			return nil, fmt.Errorf("parse token delta record: %w", err)
		}

		records = append(records, rec)
	}

	return records, nil
}

// WeekOf returns the ISO week bucket of a timestamp.
func WeekOf(when time.Time) (year, week int) {
	return when.UTC().ISOWeek()
}
