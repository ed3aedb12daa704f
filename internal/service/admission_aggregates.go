package service

import (
	"context"
	"sort"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
)

const defaultRecentAdmissions = 5

func (s *admissionService) AggregateByField(ctx context.Context, field models.Field) (dto.FieldAggregateResponse, error) {
	_, span := s.tracer.Start(ctx, "ledger.aggregate_by_field")
	defer span.End()

	if len(field.Domain()) == 0 {
		err := &ValidationError{Field: "field", Reason: "unknown field " + string(field)}
		s.finishSpan(span, "aggregate", err)
		return dto.FieldAggregateResponse{}, err
	}

	roster := s.snapshot()
	s.finishSpan(span, "aggregate", nil)
	return dto.FieldAggregateResponse{
		Field:  field,
		Total:  len(roster),
		Counts: tally(roster, field),
	}, nil
}

func (s *admissionService) CrossTabulate(ctx context.Context, rowField, columnField models.Field) (dto.CrossTabResponse, error) {
	_, span := s.tracer.Start(ctx, "ledger.cross_tabulate")
	defer span.End()

	for name, field := range map[string]models.Field{"row": rowField, "col": columnField} {
		if len(field.Domain()) == 0 {
			err := &ValidationError{Field: name, Reason: "unknown field " + string(field)}
			s.finishSpan(span, "cross_tabulate", err)
			return dto.CrossTabResponse{}, err
		}
	}

	result := crossTabulate(s.snapshot(), rowField, columnField)
	s.finishSpan(span, "cross_tabulate", nil)
	return result, nil
}

func (s *admissionService) AdmissionsByDate(ctx context.Context) ([]dto.DateStreamCount, error) {
	_, span := s.tracer.Start(ctx, "ledger.admissions_by_date")
	defer span.End()

	roster := s.snapshot()
	if err := checkAdmissionDates(roster); err != nil {
		s.finishSpan(span, "admissions_by_date", err)
		return nil, err
	}

	type key struct {
		date   string
		stream models.Stream
	}
	counts := make(map[key]int)
	for _, record := range roster {
		counts[key{date: record.DateOfAdmission, stream: record.Stream}]++
	}

	result := make([]dto.DateStreamCount, 0, len(counts))
	for k, count := range counts {
		result = append(result, dto.DateStreamCount{Date: k.date, Stream: k.stream, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return streamOrder(result[i].Stream) < streamOrder(result[j].Stream)
	})

	s.finishSpan(span, "admissions_by_date", nil)
	return result, nil
}

func (s *admissionService) DailyTotals(ctx context.Context) ([]dto.DailyTotal, error) {
	_, span := s.tracer.Start(ctx, "ledger.daily_totals")
	defer span.End()

	roster := s.snapshot()
	if err := checkAdmissionDates(roster); err != nil {
		s.finishSpan(span, "daily_totals", err)
		return nil, err
	}

	counts := make(map[string]int)
	for _, record := range roster {
		counts[record.DateOfAdmission]++
	}

	result := make([]dto.DailyTotal, 0, len(counts))
	for date, total := range counts {
		result = append(result, dto.DailyTotal{Date: date, Total: total})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })

	s.finishSpan(span, "daily_totals", nil)
	return result, nil
}

// RecentAdmissions returns the latest admissions by date; same-day entries keep
// the most recently appended first.
func (s *admissionService) RecentAdmissions(_ context.Context, limit int) []models.StudentRecord {
	if limit <= 0 {
		limit = defaultRecentAdmissions
	}

	roster := s.snapshot()
	recent := make([]models.StudentRecord, len(roster))
	for i, record := range roster {
		recent[len(roster)-1-i] = record
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].DateOfAdmission > recent[j].DateOfAdmission
	})

	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

func (s *admissionService) StreamView(_ context.Context, stream models.Stream) dto.StreamViewResponse {
	students := make([]models.StudentRecord, 0)
	for _, record := range s.snapshot() {
		if record.Stream == stream {
			students = append(students, record)
		}
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].Rank < students[j].Rank })

	view := dto.StreamViewResponse{
		Stream:    stream,
		Students:  students,
		Total:     len(students),
		Languages: tally(students, models.FieldSecondLanguage),
	}
	for _, record := range students {
		switch record.AdmissionStatus {
		case models.StatusPermanent:
			view.Permanent++
		case models.StatusTemporary:
			view.Temporary++
		}
	}
	return view
}

func (s *admissionService) Summary(ctx context.Context) (dto.LedgerSummaryResponse, error) {
	archive, err := s.ListTcArchive(ctx)
	if err != nil {
		return dto.LedgerSummaryResponse{}, err
	}

	roster := s.snapshot()
	return dto.LedgerSummaryResponse{
		SchoolName:    s.school.Name,
		AdmissionYear: s.school.AdmissionYear,
		RosterSize:    len(roster),
		ArchiveSize:   len(archive),
		PendingTC:     len(s.PendingTC(ctx)),
		ByStream:      tally(roster, models.FieldStream),
		ByStatus:      tally(roster, models.FieldAdmissionStatus),
		ByCaste:       tally(roster, models.FieldCaste),
		ByLanguage:    tally(roster, models.FieldSecondLanguage),
		GeneratedAt:   s.now().UTC(),
	}, nil
}

// tally counts records per field value, ordered by count descending with ties
// kept in first-seen order.
func tally(roster []models.StudentRecord, field models.Field) []dto.CountEntry {
	positions := make(map[string]int)
	counts := make([]dto.CountEntry, 0)
	for _, record := range roster {
		value := field.Value(record)
		pos, ok := positions[value]
		if !ok {
			pos = len(counts)
			positions[value] = pos
			counts = append(counts, dto.CountEntry{Value: value})
		}
		counts[pos].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts
}

func crossTabulate(roster []models.StudentRecord, rowField, columnField models.Field) dto.CrossTabResponse {
	rowsSeen := make(map[string]bool)
	colsSeen := make(map[string]bool)
	for _, record := range roster {
		rowsSeen[rowField.Value(record)] = true
		colsSeen[columnField.Value(record)] = true
	}

	rows := orderedLabels(rowField, rowsSeen)
	columns := orderedLabels(columnField, colsSeen)
	rowIndex := indexOf(rows)
	colIndex := indexOf(columns)

	counts := make([][]int, len(rows))
	for i := range counts {
		counts[i] = make([]int, len(columns))
	}
	for _, record := range roster {
		counts[rowIndex[rowField.Value(record)]][colIndex[columnField.Value(record)]]++
	}

	cells := make([]dto.CrossTabCell, 0, len(rows)*len(columns))
	for i, row := range rows {
		for j, column := range columns {
			cells = append(cells, dto.CrossTabCell{Row: row, Column: column, Count: counts[i][j]})
		}
	}

	return dto.CrossTabResponse{
		RowField:    rowField,
		ColumnField: columnField,
		Rows:        rows,
		Columns:     columns,
		Counts:      counts,
		Cells:       cells,
	}
}

// orderedLabels returns the observed values in canonical order, followed by any
// values outside the closed set in lexical order.
func orderedLabels(field models.Field, seen map[string]bool) []string {
	labels := make([]string, 0, len(seen))
	known := make(map[string]bool)
	for _, value := range field.Domain() {
		known[value] = true
		if seen[value] {
			labels = append(labels, value)
		}
	}

	var extra []string
	for value := range seen {
		if !known[value] {
			extra = append(extra, value)
		}
	}
	sort.Strings(extra)
	return append(labels, extra...)
}

func indexOf(labels []string) map[string]int {
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	return index
}

func checkAdmissionDates(roster []models.StudentRecord) error {
	for _, record := range roster {
		if _, err := models.ParseDate(record.DateOfAdmission); err != nil {
			return &DateParseError{Name: record.Name, Value: record.DateOfAdmission, Err: err}
		}
	}
	return nil
}

func streamOrder(stream models.Stream) int {
	for i, s := range models.Streams {
		if s == stream {
			return i
		}
	}
	return len(models.Streams)
}
