package timeline

import (
	"fmt"
	"strings"
)

// TokensRoot is the retained subtree holding per-token shard files.
const TokensRoot = "timeline/tokens"

// RevsRoot is the subtree holding per-revision symbol delta summaries.
const RevsRoot = "timeline/revs"

// ShardPath returns the shard file path for a token, bucketed by two pairs of
// characters from the lowercased token prefix to keep directory listings
// sane. Short tokens pad with '_'.
func ShardPath(token string) string {
	normalized := strings.ToLower(token)

	var buckets [4]byte

	for i := range buckets {
		if i < len(normalized) && isShardByte(normalized[i]) {
			buckets[i] = normalized[i]
		} else {
			buckets[i] = '_'
		}
	}

	return fmt.Sprintf("%s/%c%c/%c%c/%s",
		TokensRoot, buckets[0], buckets[1], buckets[2], buckets[3], escapeShardName(token))
}

// RevSummaryPath returns the path of a revision's symbol delta record.
func RevSummaryPath(sourceRev string) string {
	const bucketLen = 2
	if len(sourceRev) < bucketLen {
		return fmt.Sprintf("%s/%s.json", RevsRoot, sourceRev)
	}

	return fmt.Sprintf("%s/%s/%s.json", RevsRoot, sourceRev[:bucketLen], sourceRev)
}

func isShardByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// escapeShardName makes a token safe as a file name. '/' and a leading '.'
// are the only bytes git trees cannot represent usefully here.
func escapeShardName(token string) string {
	escaped := strings.ReplaceAll(token, "%", "%25")
	escaped = strings.ReplaceAll(escaped, "/", "%2f")

	if strings.HasPrefix(escaped, ".") {
		escaped = "%2e" + escaped[1:]
	}

	return escaped
}

// RollUp collapses the trailing run of detail records strictly older than the
// given ISO week into a single summary record, leaving earlier records (and
// pre-existing summaries) untouched. pred is the history-store revision
// preceding the commit performing the roll-up.
//
// Records arrive oldest-first; the newest records sit at the end of the
// shard. A shard whose trailing details are all in the current week rolls
// nothing up.
func RollUp(records []TokenDeltaRecord, year, week int, pred string, weekOf func(iso string) (int, int)) []TokenDeltaRecord {
	// Find the trailing run of detail records.
	start := len(records)
	for start > 0 && records[start-1].Type == RecordTypeDetail {
		start--
	}

	if start == len(records) {
		return records
	}

	trailing := records[start:]

	var (
		aggregate TokenDeltaDetails
		revs      []string
		newest    = -1
		oldest    = -1
		aggYear   int
		collapsed int
	)

	for _, rec := range trailing {
		recYear, recWeek := weekOf(rec.Detail.ISODate)
		if recYear == year && recWeek == week {
			break // Still in the open bucket.
		}

		aggregate.Accumulate(rec.Delta)
		// Newest first in the summary.
		revs = append([]string{rec.Detail.SourceRev}, revs...)

		aggYear = recYear
		if newest < 0 || recWeek > newest {
			newest = recWeek
		}

		if oldest < 0 || recWeek < oldest {
			oldest = recWeek
		}

		collapsed++
	}

	if collapsed == 0 {
		return records
	}

	summary := TokenDeltaRecord{
		Type: RecordTypeSummary,
		Summary: &SummaryRecordRef{
			SourceRevs:      revs,
			PredTimelineRev: pred,
			ISOWeekRange:    ISOWeekRange{Year: aggYear, NewestWeek: newest, OldestWeek: oldest},
		},
		Delta: aggregate,
	}

	result := make([]TokenDeltaRecord, 0, len(records)-collapsed+1)
	result = append(result, records[:start]...)
	result = append(result, summary)
	result = append(result, trailing[collapsed:]...)

	return result
}
