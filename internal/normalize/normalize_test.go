package normalize_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrace/internal/common"
	"casetrace/internal/normalize"
)

func payload(timeline, evidence string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"summary": "a case about a delayed shipment", "timeline": [%s], "evidence": [%s]}`,
		timeline, evidence,
	))
}

func event(date string, pageStart, pageEnd int) string {
	return fmt.Sprintf(
		`{"event_id": 1, "name": "filing", "description": "claim was filed", "date": %q, "page_start": %d, "page_end": %d}`,
		date, pageStart, pageEnd,
	)
}

func TestNormalizeValidPayload(t *testing.T) {
	ext, err := normalize.Normalize(payload(
		event("2023-05-10", 2, 4),
		`{"evidence_id": 7, "name": "invoice", "flaw": "unsigned", "page_start": 5, "page_end": 5}`,
	))
	require.NoError(t, err)
	require.Len(t, ext.Timeline, 1)
	require.Len(t, ext.Evidence, 1)
	assert.Equal(t, "filing", ext.Timeline[0].Name)
	assert.Equal(t, 7, ext.Evidence[0].EvidenceID)
	assert.Equal(t, "unsigned", ext.Evidence[0].Flaw)
}

func TestNormalizeEmptyCollections(t *testing.T) {
	ext, err := normalize.Normalize(payload("", ""))
	require.NoError(t, err)
	assert.Empty(t, ext.Timeline)
	assert.Empty(t, ext.Evidence)
}

func TestNormalizeUndecodablePayload(t *testing.T) {
	_, err := normalize.Normalize(json.RawMessage(`{"summary": 42}`))
	require.Error(t, err)
	assert.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestNormalizeEmptySummary(t *testing.T) {
	_, err := normalize.Normalize(json.RawMessage(`{"summary": "  ", "timeline": [], "evidence": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary")
}

func TestNormalizeInvertedPageRangeFailsClosed(t *testing.T) {
	_, err := normalize.Normalize(payload(event("2023-05-10", 9, 3), ""))
	require.Error(t, err, "no silent repair of inverted ranges")
	assert.Equal(t, common.KindValidation, common.KindOf(err))
	assert.Contains(t, err.Error(), "timeline[0].page_end")
}

func TestNormalizePageLowerBound(t *testing.T) {
	_, err := normalize.Normalize(payload(event("2023-05-10", 0, 3), ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeline[0].page_start")
}

func TestNormalizeDateIsSyntacticOnly(t *testing.T) {
	// Shape is enforced; calendar validity is not.
	_, err := normalize.Normalize(payload(event("2024-13-40", 1, 1), ""))
	assert.NoError(t, err)

	for _, bad := range []string{"10/05/2023", "2023-5-1", "yesterday", ""} {
		_, err := normalize.Normalize(payload(event(bad, 1, 1), ""))
		require.Error(t, err, "date %q", bad)
		assert.Contains(t, err.Error(), "timeline[0].date")
	}
}

func TestNormalizeEvidenceValidation(t *testing.T) {
	_, err := normalize.Normalize(payload("",
		`{"evidence_id": -1, "name": "invoice", "page_start": 1, "page_end": 1}`,
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence[0].evidence_id")

	_, err = normalize.Normalize(payload("",
		`{"evidence_id": 1, "name": " ", "page_start": 1, "page_end": 1}`,
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence[0].name")
}

func TestNormalizePreservesOrderAndDuplicates(t *testing.T) {
	first := event("2023-05-10", 1, 1)
	second := `{"event_id": 1, "name": "filing", "description": "claim was filed", "date": "2023-05-10", "page_start": 2, "page_end": 2}`
	ext, err := normalize.Normalize(payload(first+","+second, ""))
	require.NoError(t, err)
	require.Len(t, ext.Timeline, 2, "duplicate ids are kept, not merged")
	assert.Equal(t, 1, ext.Timeline[0].PageStart)
	assert.Equal(t, 2, ext.Timeline[1].PageStart)
}
