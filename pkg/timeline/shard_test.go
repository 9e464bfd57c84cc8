package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"plain_identifier", "mIdentifier", "timeline/tokens/mi/de/mIdentifier"},
		{"short_token", "ab", "timeline/tokens/ab/__/ab"},
		{"single_char", "x", "timeline/tokens/x_/__/x"},
		{"digits", "0x42", "timeline/tokens/0x/42/0x42"},
		{"non_alnum_prefix", "__init__", "timeline/tokens/__/__/__init__"},
		{"slash_escaped", "a/b", "timeline/tokens/a_/b_/a%2fb"},
		{"percent_escaped", "100%", "timeline/tokens/10/0_/100%25"},
		{"leading_dot_escaped", ".hidden", "timeline/tokens/_h/id/%2ehidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ShardPath(tt.token))
		})
	}
}

func TestRevSummaryPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "timeline/revs/ab/abcdef.json", RevSummaryPath("abcdef"))
	assert.Equal(t, "timeline/revs/a.json", RevSummaryPath("a"))
}

func isoWeekOf(iso string) (int, int) {
	when, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return 0, 0
	}

	return when.UTC().ISOWeek()
}

func detail(rev, iso string, added uint32) TokenDeltaRecord {
	return TokenDeltaRecord{
		Type:   RecordTypeDetail,
		Detail: &DetailRecordRef{SourceRev: rev, SyntaxRev: "s-" + rev, ISODate: iso},
		Delta:  TokenDeltaDetails{Added: added},
	}
}

func TestRollUp(t *testing.T) {
	t.Parallel()

	// 2026-08-24 is ISO week 35 of 2026; the week before is 34.
	const (
		lastWeekA = "2026-08-18T10:00:00Z"
		lastWeekB = "2026-08-20T10:00:00Z"
		thisWeek  = "2026-08-25T10:00:00Z"
	)

	year, week := WeekOf(mustParse(t, thisWeek))

	t.Run("collapses_older_weeks", func(t *testing.T) {
		t.Parallel()

		records := []TokenDeltaRecord{
			detail("r1", lastWeekA, 1),
			detail("r2", lastWeekB, 2),
			detail("r3", thisWeek, 4),
		}

		rolled := RollUp(records, year, week, "pred-rev", isoWeekOf)
		require.Len(t, rolled, 2)

		summary := rolled[0]
		assert.Equal(t, RecordTypeSummary, summary.Type)
		require.NotNil(t, summary.Summary)
		assert.Equal(t, []string{"r2", "r1"}, summary.Summary.SourceRevs)
		assert.Equal(t, "pred-rev", summary.Summary.PredTimelineRev)
		assert.Equal(t, 2026, summary.Summary.ISOWeekRange.Year)
		assert.Equal(t, uint32(3), summary.Delta.Added)

		assert.Equal(t, RecordTypeDetail, rolled[1].Type)
		assert.Equal(t, "r3", rolled[1].Detail.SourceRev)
	})

	t.Run("current_week_untouched", func(t *testing.T) {
		t.Parallel()

		records := []TokenDeltaRecord{detail("r1", thisWeek, 1)}

		rolled := RollUp(records, year, week, "pred-rev", isoWeekOf)
		assert.Equal(t, records, rolled)
	})

	t.Run("existing_summaries_preserved", func(t *testing.T) {
		t.Parallel()

		prior := TokenDeltaRecord{
			Type: RecordTypeSummary,
			Summary: &SummaryRecordRef{
				SourceRevs:      []string{"r0"},
				PredTimelineRev: "older-pred",
				ISOWeekRange:    ISOWeekRange{Year: 2026, NewestWeek: 30, OldestWeek: 30},
			},
			Delta: TokenDeltaDetails{Removed: 5},
		}
		records := []TokenDeltaRecord{prior, detail("r1", lastWeekA, 1), detail("r2", thisWeek, 2)}

		rolled := RollUp(records, year, week, "pred-rev", isoWeekOf)
		require.Len(t, rolled, 3)
		assert.Equal(t, prior, rolled[0])
		assert.Equal(t, RecordTypeSummary, rolled[1].Type)
		assert.Equal(t, []string{"r1"}, rolled[1].Summary.SourceRevs)
		assert.Equal(t, "r2", rolled[2].Detail.SourceRev)
	})

	t.Run("empty_shard", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, RollUp(nil, year, week, "pred-rev", isoWeekOf))
	})
}

func mustParse(t *testing.T, iso string) time.Time {
	t.Helper()

	when, err := time.Parse(time.RFC3339, iso)
	require.NoError(t, err)

	return when
}

func TestNDJSONRoundTrip(t *testing.T) {
	t.Parallel()

	records := []TokenDeltaRecord{
		detail("r1", "2026-08-18T10:00:00Z", 3),
		{
			Type: RecordTypeSummary,
			Summary: &SummaryRecordRef{
				SourceRevs:      []string{"r0"},
				PredTimelineRev: "pred",
				ISOWeekRange:    ISOWeekRange{Year: 2026, NewestWeek: 33, OldestWeek: 32},
			},
			Delta: TokenDeltaDetails{Moved: 2, EvolvedFrom: 1},
		},
	}

	blob, err := AppendNDJSON(records)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), blob[len(blob)-1])

	parsed, err := ParseNDJSON(blob)
	require.NoError(t, err)
	assert.Equal(t, records, parsed)
}

func TestParseNDJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseNDJSON([]byte("{\"type\":\"detail\"}\nnot json\n"))
	assert.Error(t, err)
}
