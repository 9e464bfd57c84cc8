package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// blobMode is the tree entry mode of the record and provenance files.
const blobMode = 0o100644

// recordSink appends one revision's aggregate records: a detail line per
// touched token shard, with week roll-up of older details, and the
// per-revision symbol summary.
type recordSink struct {
	client *fastimport.Client
}

// write appends the revision's records to the commit currently being built.
// prev is the history commit preceding this one (zero for a root commit);
// predSHA lazily resolves prev to a durable id, only consulted when a
// roll-up actually happens.
func (s *recordSink) write(data *TimelineData, prev fastimport.Commitish, predSHA func() (string, error)) error {
	year, week := timeline.WeekOf(data.Committer.When)

	detail := timeline.TokenDeltaRecord{
		Type: timeline.RecordTypeDetail,
		Detail: &timeline.DetailRecordRef{
			SourceRev: data.Linkage.SourceRev,
			SyntaxRev: data.Linkage.SyntaxRev,
			ISODate:   data.Committer.When.UTC().Format(time.RFC3339),
		},
	}

	for _, token := range sortedTokens(data.TokenDeltas) {
		delta := data.TokenDeltas[token]
		if delta.IsZero() {
			continue
		}

		err := s.writeShard(token, detail, delta, year, week, prev, predSHA)
		if err != nil {
			return err
		}
	}

	return s.writeSummary(data)
}

func (s *recordSink) writeShard(
	token string,
	detail timeline.TokenDeltaRecord,
	delta timeline.TokenDeltaDetails,
	year, week int,
	prev fastimport.Commitish,
	predSHA func() (string, error),
) error {
	path := timeline.ShardPath(token)

	records, err := s.readShard(prev, path)
	if err != nil {
		return err
	}

	if needsRollUp(records, year, week) {
		pred, predErr := predSHA()
		if predErr != nil {
			return predErr
		}

		records = timeline.RollUp(records, year, week, pred, weekOfISO)
	}

	detail.Delta = delta
	records = append(records, detail)

	encoded, err := timeline.AppendNDJSON(records)
	if err != nil {
		return err
	}

	writeErr := s.client.ModifyInline(blobMode, path, encoded)
	if writeErr != nil {
		return fmt.Errorf("write token shard %q: %w", path, writeErr)
	}

	return nil
}

func (s *recordSink) readShard(prev fastimport.Commitish, path string) ([]timeline.TokenDeltaRecord, error) {
	if prev.IsZero() {
		return nil, nil
	}

	oid, found, err := s.client.Ls(prev, path)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	content, err := s.client.CatBlob(oid)
	if err != nil {
		return nil, err
	}

	records, err := timeline.ParseNDJSON(content)
	if err != nil {
		return nil, fmt.Errorf("parse token shard %q: %w", path, err)
	}

	return records, nil
}

func (s *recordSink) writeSummary(data *TimelineData) error {
	if data.SymbolDeltas == nil || len(data.SymbolDeltas.SymbolDeltas) == 0 {
		return nil
	}

	encoded, err := json.Marshal(data.SymbolDeltas)
	if err != nil {
		return fmt.Errorf("marshal symbol deltas: %w", err)
	}

	path := timeline.RevSummaryPath(data.Linkage.SourceRev)

	writeErr := s.client.ModifyInline(blobMode, path, append(encoded, '\n'))
	if writeErr != nil {
		return fmt.Errorf("write revision summary %q: %w", path, writeErr)
	}

	return nil
}

// needsRollUp reports whether the shard's trailing detail records include
// one strictly older than the given week.
func needsRollUp(records []timeline.TokenDeltaRecord, year, week int) bool {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Type != timeline.RecordTypeDetail {
			return false
		}

		recYear, recWeek := weekOfISO(records[i].Detail.ISODate)
		if recYear != year || recWeek != week {
			return true
		}
	}

	return false
}

// weekOfISO buckets an ISO 8601 date into its ISO week. Unparseable dates
// land in week zero, which always rolls up.
func weekOfISO(iso string) (year, week int) {
	when, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return 0, 0
	}

	return timeline.WeekOf(when)
}

func sortedTokens(deltas map[string]timeline.TokenDeltaDetails) []string {
	tokens := make([]string, 0, len(deltas))
	for token := range deltas {
		tokens = append(tokens, token)
	}

	sort.Strings(tokens)

	return tokens
}
