package export_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"casetrace/internal/common"
	"casetrace/internal/entity"
	"casetrace/internal/export"
	"casetrace/internal/repository"
)

func TestExportCaseXLSX(t *testing.T) {
	store, err := repository.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Put(context.Background(), &entity.ExtractionRecord{
		CaseID:  "CASE-1",
		Summary: "dispute over a delayed shipment",
		Timeline: []entity.TimelineEvent{
			{EventID: 1, Name: "filing", Description: "claim filed", Date: "2023-05-10", PageStart: 1, PageEnd: 2},
			{EventID: 2, Name: "hearing", Description: "first hearing held", Date: "2023-07-01", PageStart: 4, PageEnd: 6},
		},
		Evidence: []entity.EvidenceItem{
			{EvidenceID: 1, Name: "invoice", Flaw: "unsigned", PageStart: 3, PageEnd: 3},
		},
		PersistedAt: time.Date(2023, 8, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	svc := export.NewService(store, nil)
	data, err := svc.ExportCaseXLSX(context.Background(), "CASE-1")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Summary", "Timeline", "Evidence"}, f.GetSheetList())

	caseID, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "CASE-1", caseID)

	name, err := f.GetCellValue("Timeline", "B3")
	require.NoError(t, err)
	assert.Equal(t, "hearing", name, "second event lands on the third row")

	flaw, err := f.GetCellValue("Evidence", "C2")
	require.NoError(t, err)
	assert.Equal(t, "unsigned", flaw)
}

func TestExportCaseXLSXAbsent(t *testing.T) {
	store, err := repository.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	svc := export.NewService(store, nil)
	_, err = svc.ExportCaseXLSX(context.Background(), "never-seen")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
