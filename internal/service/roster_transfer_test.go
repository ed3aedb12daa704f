package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

func TestImportCSVAdmitsValidRows(t *testing.T) {
	store := &memoryLedgerStore{roster: []models.StudentRecord{
		student("ANU", 3, models.StreamBIO, models.StatusPermanent, "2024-06-01"),
	}}
	ledger := newTestLedger(t, store, nil)
	transfer := NewRosterTransfer(ledger, testLogger())

	upload := strings.Join([]string{
		"Stream,Name,Rank,Second_Language,Caste,Admission_Status",
		"cs,Binu,5,hin,obh,permanent",
		"BIO,anu,9,MAL,GEN,PERMANENT",
		"HUM,Chitra,two,MAL,SC,TEMPORARY",
		",,,,,",
		"COM,Devi,1,SKT,ARTS,TEMPORARY",
		"COM,Elsa,2,SKT,ST,TEMPORARY",
	}, "\n")

	result, err := transfer.Import(context.Background(), []byte(upload))
	require.NoError(t, err)

	require.Len(t, result.Admitted, 2)
	require.Equal(t, "BINU", result.Admitted[0].Name)
	require.Equal(t, models.CasteOBH, result.Admitted[0].Caste)
	require.Equal(t, "2024-06-03", result.Admitted[1].DateOfAdmission)

	lines := make([]int, 0, len(result.Rejected))
	for _, rejected := range result.Rejected {
		lines = append(lines, rejected.Line)
	}
	require.Equal(t, []int{3, 4, 6}, lines)
	require.Contains(t, result.Rejected[0].Error, "already admitted")

	require.Len(t, store.roster, 3)
}

func TestImportRejectsMissingColumnsAndBinary(t *testing.T) {
	transfer := NewRosterTransfer(newTestLedger(t, &memoryLedgerStore{}, nil), testLogger())

	_, err := transfer.Import(context.Background(), []byte("Name,Rank\nANU,3\n"))
	require.True(t, IsValidationError(err))

	_, err = transfer.Import(context.Background(), []byte("Name,Rank,Stream,Second_Language,Caste,Admission_Status\n"))
	require.ErrorIs(t, err, ErrEmptyImport)

	_, err = transfer.Import(context.Background(), []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImportStopsOnStorageFailure(t *testing.T) {
	store := &memoryLedgerStore{}
	transfer := NewRosterTransfer(newTestLedger(t, store, nil), testLogger())
	store.saveErr = assertErr("disk full")

	upload := "Name,Rank,Stream,Second_Language,Caste,Admission_Status\nANU,3,BIO,MAL,GEN,PERMANENT\nBINU,4,CS,MAL,GEN,PERMANENT\n"
	result, err := transfer.Import(context.Background(), []byte(upload))
	require.True(t, IsStorageError(err))
	require.Empty(t, result.Admitted)
}

func TestExportRosterCSV(t *testing.T) {
	roster := aggregateRoster()
	transfer := NewRosterTransfer(newTestLedger(t, &memoryLedgerStore{roster: roster}, nil), testLogger())

	var buf bytes.Buffer
	require.NoError(t, transfer.ExportRoster(context.Background(), &buf, ExportCSV, ""))

	decoded, err := repository.DecodeRoster(&buf, true)
	require.NoError(t, err)
	require.Equal(t, roster, decoded)

	buf.Reset()
	require.NoError(t, transfer.ExportRoster(context.Background(), &buf, ExportCSV, models.StreamHUM))
	decoded, err = repository.DecodeRoster(&buf, true)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, "CHITRA", decoded[0].Name)
}

func TestExportXLSXRoundTripsThroughImport(t *testing.T) {
	roster := aggregateRoster()
	source := NewRosterTransfer(newTestLedger(t, &memoryLedgerStore{roster: roster}, nil), testLogger())

	var buf bytes.Buffer
	require.NoError(t, source.ExportRoster(context.Background(), &buf, ExportXLSX, ""))

	book, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rows, err := book.GetRows("Roster")
	require.NoError(t, err)
	require.NoError(t, book.Close())
	require.Equal(t, repository.RosterColumns, rows[0])
	require.Len(t, rows, len(roster)+1)

	store := &memoryLedgerStore{}
	target := NewRosterTransfer(newTestLedger(t, store, nil), testLogger())
	result, err := target.Import(context.Background(), buf.Bytes())
	require.NoError(t, err)
	require.Len(t, result.Admitted, len(roster))
	require.Empty(t, result.Rejected)
	require.Equal(t, "ANU", store.roster[0].Name)
}

func TestExportTcArchiveXLSX(t *testing.T) {
	store := &memoryLedgerStore{archive: []models.TcRecord{{
		StudentRecord: student("GONE", 9, models.StreamCOM, models.StatusPermanent, "2024-05-30"),
		TCDate:        "2024-06-01",
		TCReason:      "Relocated",
	}}}
	transfer := NewRosterTransfer(newTestLedger(t, store, nil), testLogger())

	var buf bytes.Buffer
	require.NoError(t, transfer.ExportTcArchive(context.Background(), &buf, ExportXLSX))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("TC Records")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"GONE", "9", "COM", "MAL", "GEN", "PERMANENT", "2024-05-30", "2024-06-01", "Relocated"}, rows[1])
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("")
	require.NoError(t, err)
	require.Equal(t, ExportCSV, format)
	require.Equal(t, "admission_data.csv", format.Filename("admission_data"))

	format, err = ParseExportFormat("XLSX")
	require.NoError(t, err)
	require.Contains(t, format.ContentType(), "spreadsheetml")

	_, err = ParseExportFormat("pdf")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
