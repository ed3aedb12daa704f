package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

// Column headers of the delimited ledger tables.
const (
	ColumnName            = "Name"
	ColumnRank            = "Rank"
	ColumnStream          = "Stream"
	ColumnSecondLanguage  = "Second_Language"
	ColumnCaste           = "Caste"
	ColumnAdmissionStatus = "Admission_Status"
	ColumnDateOfAdmission = "Date_of_Admission"
	ColumnTCDate          = "TC_Date"
	ColumnTCReason        = "TC_Reason"
)

// RosterColumns is the canonical column order of the roster table.
var RosterColumns = []string{
	ColumnName,
	ColumnRank,
	ColumnStream,
	ColumnSecondLanguage,
	ColumnCaste,
	ColumnAdmissionStatus,
	ColumnDateOfAdmission,
}

// EncodeRoster writes the roster as CSV with the canonical header, in input order.
func EncodeRoster(w io.Writer, rows []models.StudentRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(RosterColumns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(studentFields(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// EncodeTcArchive writes the archive as CSV. TC_Reason is only emitted when at
// least one record carries a reason.
func EncodeTcArchive(w io.Writer, rows []models.TcRecord) error {
	withReason := false
	for _, row := range rows {
		if row.TCReason != "" {
			withReason = true
			break
		}
	}

	header := append(append([]string{}, RosterColumns...), ColumnTCDate)
	if withReason {
		header = append(header, ColumnTCReason)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		fields := append(studentFields(row.StudentRecord), row.TCDate)
		if withReason {
			fields = append(fields, row.TCReason)
		}
		if err := writer.Write(fields); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodeRoster parses a roster CSV. Columns are located by header name.
func DecodeRoster(r io.Reader, strictDates bool) ([]models.StudentRecord, error) {
	records, index, err := readTable(r, TableRoster, RosterColumns)
	if err != nil || records == nil {
		return []models.StudentRecord{}, err
	}

	rows := make([]models.StudentRecord, 0, len(records))
	for i, fields := range records {
		line := i + 2
		row, err := studentFromFields(fields, index)
		if err != nil {
			return nil, &StorageReadError{Table: TableRoster, Line: line, Err: err}
		}
		if err := row.Validate(strictDates); err != nil {
			return nil, &StorageReadError{Table: TableRoster, Line: line, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DecodeTcArchive parses an archive CSV. TC_Reason is optional.
func DecodeTcArchive(r io.Reader, strictDates bool) ([]models.TcRecord, error) {
	required := append(append([]string{}, RosterColumns...), ColumnTCDate)
	records, index, err := readTable(r, TableTcArchive, required)
	if err != nil || records == nil {
		return []models.TcRecord{}, err
	}

	rows := make([]models.TcRecord, 0, len(records))
	for i, fields := range records {
		line := i + 2
		student, err := studentFromFields(fields, index)
		if err != nil {
			return nil, &StorageReadError{Table: TableTcArchive, Line: line, Err: err}
		}
		row := models.TcRecord{
			StudentRecord: student,
			TCDate:        strings.TrimSpace(fields[index[ColumnTCDate]]),
		}
		if pos, ok := index[ColumnTCReason]; ok {
			row.TCReason = fields[pos]
		}
		if err := row.Validate(strictDates); err != nil {
			return nil, &StorageReadError{Table: TableTcArchive, Line: line, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HeaderIndex maps header names to their column positions and checks that every
// required column is present.
func HeaderIndex(header []string, required []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func readTable(r io.Reader, table string, required []string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &StorageReadError{Table: table, Line: 1, Err: err}
	}

	index, err := HeaderIndex(header, required)
	if err != nil {
		return nil, nil, &StorageReadError{Table: table, Line: 1, Err: err}
	}

	records := make([][]string, 0)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, nil, &StorageReadError{Table: table, Line: parseErr.Line, Err: parseErr.Err}
			}
			return nil, nil, &StorageReadError{Table: table, Err: err}
		}
		records = append(records, fields)
	}
	return records, index, nil
}

func studentFromFields(fields []string, index map[string]int) (models.StudentRecord, error) {
	rankRaw := strings.TrimSpace(fields[index[ColumnRank]])
	rank, err := strconv.Atoi(rankRaw)
	if err != nil {
		return models.StudentRecord{}, fmt.Errorf("invalid rank %q", rankRaw)
	}

	return models.StudentRecord{
		Name:            strings.TrimSpace(fields[index[ColumnName]]),
		Rank:            rank,
		Stream:          models.Stream(strings.TrimSpace(fields[index[ColumnStream]])),
		SecondLanguage:  models.SecondLanguage(strings.TrimSpace(fields[index[ColumnSecondLanguage]])),
		Caste:           models.Caste(strings.TrimSpace(fields[index[ColumnCaste]])),
		AdmissionStatus: models.AdmissionStatus(strings.TrimSpace(fields[index[ColumnAdmissionStatus]])),
		DateOfAdmission: strings.TrimSpace(fields[index[ColumnDateOfAdmission]]),
	}, nil
}

func studentFields(r models.StudentRecord) []string {
	return []string{
		r.Name,
		strconv.Itoa(r.Rank),
		string(r.Stream),
		string(r.SecondLanguage),
		string(r.Caste),
		string(r.AdmissionStatus),
		r.DateOfAdmission,
	}
}
