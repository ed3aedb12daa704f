package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
)

func aggregateRoster() []models.StudentRecord {
	hum := student("CHITRA", 2, models.StreamHUM, models.StatusTemporary, "2024-06-02")
	hum.SecondLanguage = models.LanguageHIN
	hum.Caste = models.CasteSC

	return []models.StudentRecord{
		student("ANU", 4, models.StreamBIO, models.StatusPermanent, "2024-06-02"),
		student("BINU", 1, models.StreamCS, models.StatusPermanent, "2024-06-01"),
		hum,
		student("DEVI", 1, models.StreamBIO, models.StatusTemporary, "2024-06-01"),
		student("ELSA", 7, models.StreamHUM, models.StatusPermanent, "2024-06-02"),
	}
}

func TestAggregateByFieldOrdersByCount(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{roster: aggregateRoster()}, nil)

	result, err := svc.AggregateByField(context.Background(), models.FieldStream)
	require.NoError(t, err)
	require.Equal(t, 5, result.Total)
	require.Equal(t, []dto.CountEntry{
		{Value: "BIO", Count: 2},
		{Value: "HUM", Count: 2},
		{Value: "CS", Count: 1},
	}, result.Counts)

	for _, field := range []models.Field{models.FieldCaste, models.FieldSecondLanguage, models.FieldAdmissionStatus} {
		result, err := svc.AggregateByField(context.Background(), field)
		require.NoError(t, err)
		sum := 0
		for _, entry := range result.Counts {
			sum += entry.Count
		}
		require.Equal(t, result.Total, sum, "field %s", field)
	}

	_, err = svc.AggregateByField(context.Background(), models.Field("rank"))
	require.True(t, IsValidationError(err))
}

func TestAggregatesOnEmptyRoster(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{}, nil)
	ctx := context.Background()

	result, err := svc.AggregateByField(ctx, models.FieldCaste)
	require.NoError(t, err)
	require.Empty(t, result.Counts)

	pivot, err := svc.CrossTabulate(ctx, models.FieldStream, models.FieldAdmissionStatus)
	require.NoError(t, err)
	require.Empty(t, pivot.Rows)
	require.Empty(t, pivot.Cells)

	dates, err := svc.AdmissionsByDate(ctx)
	require.NoError(t, err)
	require.Empty(t, dates)
}

func TestCrossTabulateFillsZeros(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{roster: aggregateRoster()}, nil)

	pivot, err := svc.CrossTabulate(context.Background(), models.FieldStream, models.FieldAdmissionStatus)
	require.NoError(t, err)

	require.Equal(t, []string{"BIO", "CS", "HUM"}, pivot.Rows)
	require.Equal(t, []string{"PERMANENT", "TEMPORARY"}, pivot.Columns)
	require.Equal(t, [][]int{{1, 1}, {1, 0}, {1, 1}}, pivot.Counts)
	require.Len(t, pivot.Cells, 6)

	require.Equal(t, 0, pivot.Count("CS", "TEMPORARY"))
	require.Equal(t, 0, pivot.Count("COM", "PERMANENT"))
	require.Equal(t, 1, pivot.Count("HUM", "TEMPORARY"))

	total := 0
	for _, cell := range pivot.Cells {
		total += cell.Count
	}
	require.Equal(t, 5, total)
}

func TestAdmissionsByDateSortsByDateThenStream(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{roster: aggregateRoster()}, nil)

	result, err := svc.AdmissionsByDate(context.Background())
	require.NoError(t, err)
	require.Equal(t, []dto.DateStreamCount{
		{Date: "2024-06-01", Stream: models.StreamBIO, Count: 1},
		{Date: "2024-06-01", Stream: models.StreamCS, Count: 1},
		{Date: "2024-06-02", Stream: models.StreamBIO, Count: 1},
		{Date: "2024-06-02", Stream: models.StreamHUM, Count: 2},
	}, result)

	daily, err := svc.DailyTotals(context.Background())
	require.NoError(t, err)
	require.Equal(t, []dto.DailyTotal{
		{Date: "2024-06-01", Total: 2},
		{Date: "2024-06-02", Total: 3},
	}, daily)
}

func TestDateAggregatesRejectMalformedDates(t *testing.T) {
	roster := aggregateRoster()
	roster[2].DateOfAdmission = "02/06/2024"
	svc := newTestLedger(t, &memoryLedgerStore{roster: roster}, nil)

	_, err := svc.AdmissionsByDate(context.Background())
	var dateErr *DateParseError
	require.ErrorAs(t, err, &dateErr)
	require.Equal(t, "CHITRA", dateErr.Name)
	require.Equal(t, "02/06/2024", dateErr.Value)

	_, err = svc.DailyTotals(context.Background())
	require.ErrorAs(t, err, &dateErr)

	// Categorical aggregates do not depend on dates.
	_, err = svc.AggregateByField(context.Background(), models.FieldStream)
	require.NoError(t, err)
}

func TestRecentAdmissionsNewestFirst(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{roster: aggregateRoster()}, nil)

	recent := svc.RecentAdmissions(context.Background(), 3)
	names := make([]string, 0, len(recent))
	for _, record := range recent {
		names = append(names, record.Name)
	}
	require.Equal(t, []string{"ELSA", "CHITRA", "ANU"}, names)

	require.Len(t, svc.RecentAdmissions(context.Background(), 0), 5)
}

func TestStreamViewSortsByRank(t *testing.T) {
	svc := newTestLedger(t, &memoryLedgerStore{roster: aggregateRoster()}, nil)

	view := svc.StreamView(context.Background(), models.StreamHUM)
	require.Equal(t, 2, view.Total)
	require.Equal(t, "CHITRA", view.Students[0].Name)
	require.Equal(t, "ELSA", view.Students[1].Name)
	require.Equal(t, 1, view.Permanent)
	require.Equal(t, 1, view.Temporary)
	require.Len(t, view.Languages, 2)

	empty := svc.StreamView(context.Background(), models.StreamCOM)
	require.Zero(t, empty.Total)
	require.NotNil(t, empty.Students)
}

func TestSummary(t *testing.T) {
	store := &memoryLedgerStore{
		roster:  aggregateRoster(),
		archive: []models.TcRecord{{StudentRecord: student("GONE", 9, models.StreamCOM, models.StatusPermanent, "2024-05-30"), TCDate: "2024-06-01"}},
	}
	svc := newTestLedger(t, store, nil)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "GHSS Test", summary.SchoolName)
	require.Equal(t, 2024, summary.AdmissionYear)
	require.Equal(t, 5, summary.RosterSize)
	require.Equal(t, 1, summary.ArchiveSize)
	require.Zero(t, summary.PendingTC)
	require.Equal(t, dto.CountEntry{Value: "PERMANENT", Count: 3}, summary.ByStatus[0])
	require.Equal(t, admissionDay, summary.GeneratedAt)
}
