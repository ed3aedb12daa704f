package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memoryLedgerStore keeps both tables in memory and counts roster saves as revisions.
type memoryLedgerStore struct {
	mu       sync.Mutex
	roster   []models.StudentRecord
	archive  []models.TcRecord
	revision int

	saveErr   error
	appendErr error
}

func (m *memoryLedgerStore) LoadRoster(context.Context) ([]models.StudentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StudentRecord{}, m.roster...), nil
}

func (m *memoryLedgerStore) SaveRoster(_ context.Context, rows []models.StudentRecord, expectedRevision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", &repository.StorageWriteError{Table: repository.TableRoster, Err: m.saveErr}
	}
	if current := strconv.Itoa(m.revision); current != expectedRevision {
		return "", fmt.Errorf("%w: stored %s, expected %s", repository.ErrRevisionConflict, current, expectedRevision)
	}
	m.roster = append([]models.StudentRecord{}, rows...)
	m.revision++
	return strconv.Itoa(m.revision), nil
}

func (m *memoryLedgerStore) LoadTcArchive(context.Context) ([]models.TcRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TcRecord{}, m.archive...), nil
}

func (m *memoryLedgerStore) AppendTcRecord(_ context.Context, record models.TcRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return &repository.StorageWriteError{Table: repository.TableTcArchive, Err: m.appendErr}
	}
	m.archive = append(m.archive, record)
	return nil
}

func (m *memoryLedgerStore) RosterRevision(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strconv.Itoa(m.revision), nil
}

// touchExternally simulates another process rewriting the roster.
func (m *memoryLedgerStore) touchExternally(extra models.StudentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = append(m.roster, extra)
	m.revision++
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event dto.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

var admissionDay = time.Date(2024, time.June, 3, 10, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T, store *memoryLedgerStore, events LedgerEventPublisher) *admissionService {
	t.Helper()
	return newLedgerOver(t, store, events)
}

// newLedgerOver builds a loaded ledger with a fixed clock over any store.
func newLedgerOver(t *testing.T, store repository.LedgerStore, events LedgerEventPublisher) *admissionService {
	t.Helper()

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAdmissionService(store, validate, nil, events, SchoolProfile{Name: "GHSS Test", AdmissionYear: 2024}, testLogger()).(*admissionService)
	svc.now = func() time.Time { return admissionDay }
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func student(name string, rank int, stream models.Stream, status models.AdmissionStatus, date string) models.StudentRecord {
	return models.StudentRecord{
		Name:            name,
		Rank:            rank,
		Stream:          stream,
		SecondLanguage:  models.LanguageMAL,
		Caste:           models.CasteGEN,
		AdmissionStatus: status,
		DateOfAdmission: date,
	}
}

func anuRequest() dto.AdmitRequest {
	return dto.AdmitRequest{
		Name:            "ANU",
		Rank:            3,
		Stream:          "BIO",
		SecondLanguage:  "MAL",
		Caste:           "GEN",
		AdmissionStatus: "PERMANENT",
	}
}
