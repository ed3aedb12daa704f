package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

// ExportFormat selects the snapshot encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	// ErrUnsupportedFormat indicates an unknown export format or import file type.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyImport indicates an import file without data rows.
	ErrEmptyImport = errors.New("import file has no rows")
)

// ParseExportFormat resolves a format name; empty selects CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return ExportCSV, nil
	case "xlsx", "excel":
		return ExportXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return xlsxContentType
	}
	return "text/csv; charset=utf-8"
}

// Filename appends the format's extension to base.
func (f ExportFormat) Filename(base string) string {
	return base + "." + string(f)
}

// RosterTransfer exports ledger snapshots and bulk-imports admissions.
type RosterTransfer interface {
	ExportRoster(ctx context.Context, w io.Writer, format ExportFormat, stream models.Stream) error
	ExportTcArchive(ctx context.Context, w io.Writer, format ExportFormat) error
	Import(ctx context.Context, data []byte) (dto.ImportResult, error)
}

type rosterTransfer struct {
	ledger AdmissionService
	logger zerolog.Logger
}

// NewRosterTransfer constructs the import/export service over the ledger.
func NewRosterTransfer(ledger AdmissionService, logger zerolog.Logger) RosterTransfer {
	return &rosterTransfer{
		ledger: ledger,
		logger: logger.With().Str("component", "roster_transfer").Logger(),
	}
}

func (t *rosterTransfer) ExportRoster(ctx context.Context, w io.Writer, format ExportFormat, stream models.Stream) error {
	roster := t.ledger.ListRoster(ctx)
	if stream != "" {
		roster = t.ledger.StreamView(ctx, stream).Students
	}

	switch format {
	case ExportCSV:
		return repository.EncodeRoster(w, roster)
	case ExportXLSX:
		rows := make([][]string, 0, len(roster))
		for _, record := range roster {
			rows = append(rows, rosterRow(record))
		}
		return writeWorkbook(w, "Roster", repository.RosterColumns, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (t *rosterTransfer) ExportTcArchive(ctx context.Context, w io.Writer, format ExportFormat) error {
	archive, err := t.ledger.ListTcArchive(ctx)
	if err != nil {
		return err
	}

	switch format {
	case ExportCSV:
		return repository.EncodeTcArchive(w, archive)
	case ExportXLSX:
		header := append(append([]string{}, repository.RosterColumns...), repository.ColumnTCDate, repository.ColumnTCReason)
		rows := make([][]string, 0, len(archive))
		for _, record := range archive {
			rows = append(rows, append(rosterRow(record.StudentRecord), record.TCDate, record.TCReason))
		}
		return writeWorkbook(w, "TC Records", header, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Import admits every row of a CSV or XLSX upload through the ledger, so each
// row gets the same validation, uniqueness check and date stamp as a form admission.
func (t *rosterTransfer) Import(ctx context.Context, data []byte) (dto.ImportResult, error) {
	table, err := readImportTable(data)
	if err != nil {
		return dto.ImportResult{}, err
	}
	if len(table) < 2 {
		return dto.ImportResult{}, ErrEmptyImport
	}

	required := []string{
		repository.ColumnName,
		repository.ColumnRank,
		repository.ColumnStream,
		repository.ColumnSecondLanguage,
		repository.ColumnCaste,
		repository.ColumnAdmissionStatus,
	}
	index, err := repository.HeaderIndex(table[0], required)
	if err != nil {
		return dto.ImportResult{}, &ValidationError{Field: "file", Reason: err.Error(), Err: err}
	}

	result := dto.ImportResult{
		Admitted: make([]models.StudentRecord, 0),
		Rejected: make([]dto.ImportRowError, 0),
	}
	for i, row := range table[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}

		cell := func(column string) string {
			pos := index[column]
			if pos >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[pos])
		}

		name := cell(repository.ColumnName)
		rank, convErr := strconv.Atoi(cell(repository.ColumnRank))
		if convErr != nil {
			result.Rejected = append(result.Rejected, dto.ImportRowError{Line: line, Name: name, Error: "rank must be a whole number"})
			continue
		}

		record, admitErr := t.ledger.Admit(ctx, dto.AdmitRequest{
			Name:            name,
			Rank:            rank,
			Stream:          cell(repository.ColumnStream),
			SecondLanguage:  cell(repository.ColumnSecondLanguage),
			Caste:           cell(repository.ColumnCaste),
			AdmissionStatus: cell(repository.ColumnAdmissionStatus),
		})
		if admitErr != nil {
			if !isRowLevelError(admitErr) {
				// Storage and concurrency failures stop the import; earlier rows stay admitted.
				return result, admitErr
			}
			result.Rejected = append(result.Rejected, dto.ImportRowError{Line: line, Name: name, Error: admitErr.Error()})
			continue
		}
		result.Admitted = append(result.Admitted, record)
	}

	t.logger.Info().Int("admitted", len(result.Admitted)).Int("rejected", len(result.Rejected)).Msg("roster import finished")
	return result, nil
}

func readImportTable(data []byte) ([][]string, error) {
	mime := mimetype.Detect(data)
	switch {
	case detectedAs(mime, xlsxContentType, "application/zip"):
		book, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, &ValidationError{Field: "file", Reason: "unreadable workbook", Err: err}
		}
		defer func() { _ = book.Close() }()

		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyImport
		}
		return book.GetRows(sheets[0])
	case detectedAs(mime, "text/csv", "text/plain"):
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, &ValidationError{Field: "file", Reason: err.Error(), Err: err}
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime.String())
	}
}

// detectedAs walks the detected type and its parents looking for any of types.
func detectedAs(mime *mimetype.MIME, types ...string) bool {
	for m := mime; m != nil; m = m.Parent() {
		for _, t := range types {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

func writeWorkbook(w io.Writer, sheet string, header []string, rows [][]string) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName(book.GetSheetName(0), sheet); err != nil {
		return err
	}
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := book.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return book.Write(w)
}

func rosterRow(record models.StudentRecord) []string {
	return []string{
		record.Name,
		strconv.Itoa(record.Rank),
		string(record.Stream),
		string(record.SecondLanguage),
		string(record.Caste),
		string(record.AdmissionStatus),
		record.DateOfAdmission,
	}
}

func isBlankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func isRowLevelError(err error) bool {
	var duplicate *DuplicateNameError
	return IsValidationError(err) || errors.As(err, &duplicate)
}
