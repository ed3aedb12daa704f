package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/observability"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

// AdmissionService owns the in-memory roster and enforces the admission invariants.
type AdmissionService interface {
	Load(ctx context.Context) error
	Admit(ctx context.Context, req dto.AdmitRequest) (models.StudentRecord, error)
	IsNameTaken(ctx context.Context, name string) (models.StudentRecord, bool)
	IssueTC(ctx context.Context, req dto.IssueTCRequest) (models.TcRecord, error)
	Reconcile(ctx context.Context) (int, error)
	ListRoster(ctx context.Context) []models.StudentRecord
	ListTcArchive(ctx context.Context) ([]models.TcRecord, error)
	PendingTC(ctx context.Context) []models.TcRecord
	Status(ctx context.Context) dto.LedgerStatus

	AggregateByField(ctx context.Context, field models.Field) (dto.FieldAggregateResponse, error)
	CrossTabulate(ctx context.Context, rowField, columnField models.Field) (dto.CrossTabResponse, error)
	AdmissionsByDate(ctx context.Context) ([]dto.DateStreamCount, error)
	DailyTotals(ctx context.Context) ([]dto.DailyTotal, error)
	RecentAdmissions(ctx context.Context, limit int) []models.StudentRecord
	StreamView(ctx context.Context, stream models.Stream) dto.StreamViewResponse
	Summary(ctx context.Context) (dto.LedgerSummaryResponse, error)
}

// SchoolProfile labels the dashboard summary.
type SchoolProfile struct {
	Name          string
	AdmissionYear int
}

type admissionService struct {
	store     repository.LedgerStore
	validator *validator.Validate
	lock      WriterLock
	events    LedgerEventPublisher
	sanitizer *bluemonday.Policy
	school    SchoolProfile
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu        sync.RWMutex
	loaded    bool
	roster    []models.StudentRecord
	revision  string
	outOfSync bool
	pending   []models.TcRecord
}

// NewAdmissionService constructs the admission ledger. lock and events may be nil.
func NewAdmissionService(store repository.LedgerStore, validate *validator.Validate, lock WriterLock, events LedgerEventPublisher, school SchoolProfile, logger zerolog.Logger) AdmissionService {
	return &admissionService{
		store:     store,
		validator: validate,
		lock:      lock,
		events:    events,
		sanitizer: bluemonday.StrictPolicy(),
		school:    school,
		logger:    logger.With().Str("component", "admission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/admission-ledger-api/internal/service/admission"),
		now:       time.Now,
	}
}

func (s *admissionService) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "ledger.load")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.store.LoadRoster(ctx)
	if err != nil {
		s.finishSpan(span, "load", err)
		return err
	}
	revision, err := s.store.RosterRevision(ctx)
	if err != nil {
		s.finishSpan(span, "load", err)
		return err
	}

	if dupes := duplicateNames(roster); len(dupes) > 0 {
		s.logger.Warn().Strs("names", dupes).Msg("stored roster contains duplicate names")
	}

	wasLoaded := s.loaded
	s.roster = roster
	s.revision = revision
	s.loaded = true
	s.outOfSync = false
	observability.LedgerRosterSize().Set(float64(len(roster)))
	span.SetAttributes(attribute.Int("ledger.roster_size", len(roster)))
	s.finishSpan(span, "load", nil)

	s.logger.Info().Int("roster_size", len(roster)).Str("revision", revision).Msg("roster loaded")
	if wasLoaded {
		s.publish(ctx, dto.LedgerEvent{Type: dto.EventRosterReloaded, RosterSize: len(roster)})
	}
	return nil
}

func (s *admissionService) Admit(ctx context.Context, req dto.AdmitRequest) (models.StudentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.admit")
	defer span.End()

	candidate, err := s.admissionCandidate(req)
	if err != nil {
		s.finishSpan(span, "admit", err)
		return models.StudentRecord{}, err
	}
	span.SetAttributes(attribute.String("ledger.stream", string(candidate.Stream)))

	var rosterSize int
	err = s.withWriter(ctx, func() error {
		if existing, ok := s.findByName(candidate.Name); ok {
			return &DuplicateNameError{Name: candidate.Name, Existing: existing}
		}

		candidate.DateOfAdmission = models.FormatDate(s.now())
		next := make([]models.StudentRecord, 0, len(s.roster)+1)
		next = append(append(next, s.roster...), candidate)
		if err := s.persistRoster(ctx, next); err != nil {
			return err
		}
		rosterSize = len(next)
		return nil
	})
	s.finishSpan(span, "admit", err)
	if err != nil {
		return models.StudentRecord{}, err
	}

	s.logger.Info().Str("name", candidate.Name).Str("stream", string(candidate.Stream)).Int("rank", candidate.Rank).Msg("student admitted")
	admitted := candidate
	s.publish(ctx, dto.LedgerEvent{Type: dto.EventStudentAdmitted, Student: &admitted, RosterSize: rosterSize})
	return candidate, nil
}

func (s *admissionService) IssueTC(ctx context.Context, req dto.IssueTCRequest) (models.TcRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.issue_tc")
	defer span.End()

	req.Name = models.NormalizeName(req.Name)
	req.Stream = strings.ToUpper(strings.TrimSpace(req.Stream))
	if req.Name == "" {
		err := &ValidationError{Field: "name", Reason: "is required", Err: ErrEmptyName}
		s.finishSpan(span, "issue_tc", err)
		return models.TcRecord{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		err = newValidationError(err)
		s.finishSpan(span, "issue_tc", err)
		return models.TcRecord{}, err
	}
	stream := models.Stream(req.Stream)
	reason := s.sanitizeReason(req.Reason)

	var (
		issued     models.TcRecord
		partial    error
		rosterSize int
	)
	err := s.withWriter(ctx, func() error {
		index, matches := s.findTriple(req.Name, stream, req.Rank)
		if matches == 0 {
			return &StudentNotFoundError{Name: req.Name, Stream: stream, Rank: req.Rank}
		}
		if matches > 1 {
			s.logger.Warn().Str("name", req.Name).Str("stream", string(stream)).Int("rank", req.Rank).Int("matches", matches).
				Msg("roster holds several records for one tc key, withdrawing the first")
		}

		issued = models.TcRecord{
			StudentRecord: s.roster[index],
			TCDate:        models.FormatDate(s.now()),
			TCReason:      reason,
		}

		next := make([]models.StudentRecord, 0, len(s.roster)-1)
		next = append(append(next, s.roster[:index]...), s.roster[index+1:]...)
		if err := s.persistRoster(ctx, next); err != nil {
			return err
		}
		rosterSize = len(next)

		if err := s.store.AppendTcRecord(ctx, issued); err != nil {
			s.pending = append(s.pending, issued)
			observability.LedgerPendingTC().Set(float64(len(s.pending)))
			s.logger.Error().Err(err).Str("name", issued.Name).Msg("tc archive append failed, record queued for reconciliation")
			partial = &PartialTcFailure{Record: issued, Err: err}
		}
		return nil
	})
	if err != nil {
		s.finishSpan(span, "issue_tc", err)
		return models.TcRecord{}, err
	}
	s.finishSpan(span, "issue_tc", partial)

	tc := issued
	s.publish(ctx, dto.LedgerEvent{Type: dto.EventTCIssued, TC: &tc, ArchivePending: partial != nil, RosterSize: rosterSize})
	if partial != nil {
		return models.TcRecord{}, partial
	}

	s.logger.Info().Str("name", issued.Name).Str("stream", string(issued.Stream)).Msg("tc issued")
	return issued, nil
}

func (s *admissionService) Reconcile(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.reconcile")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx)
		if err != nil {
			s.finishSpan(span, "reconcile", err)
			return 0, err
		}
		defer release()
	}

	done := 0
	var err error
	for _, record := range s.pending {
		if err = s.store.AppendTcRecord(ctx, record); err != nil {
			break
		}
		done++
	}
	s.pending = append([]models.TcRecord(nil), s.pending[done:]...)
	observability.LedgerPendingTC().Set(float64(len(s.pending)))
	span.SetAttributes(attribute.Int("ledger.reconciled", done))
	s.finishSpan(span, "reconcile", err)

	if done > 0 {
		s.logger.Info().Int("reconciled", done).Int("remaining", len(s.pending)).Msg("pending tc records archived")
	}
	return done, err
}

// IsNameTaken looks the name up case-insensitively and returns the holder.
func (s *admissionService) IsNameTaken(_ context.Context, name string) (models.StudentRecord, bool) {
	normalized := models.NormalizeName(name)
	if normalized == "" {
		return models.StudentRecord{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByName(normalized)
}

func (s *admissionService) ListRoster(_ context.Context) []models.StudentRecord {
	return s.snapshot()
}

func (s *admissionService) ListTcArchive(ctx context.Context) ([]models.TcRecord, error) {
	return s.store.LoadTcArchive(ctx)
}

func (s *admissionService) PendingTC(_ context.Context) []models.TcRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TcRecord{}, s.pending...)
}

func (s *admissionService) Status(_ context.Context) dto.LedgerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dto.LedgerStatus{
		Loaded:     s.loaded,
		RosterSize: len(s.roster),
		PendingTC:  len(s.pending),
		Revision:   s.revision,
		OutOfSync:  s.outOfSync,
	}
}

// withWriter runs fn as the single writer. The revision read here fails fast on
// a stale ledger; persistRoster repeats the check atomically with the write.
func (s *admissionService) withWriter(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrLedgerNotLoaded
	}

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	current, err := s.store.RosterRevision(ctx)
	if err != nil {
		return err
	}
	if current != s.revision {
		s.outOfSync = true
		return fmt.Errorf("%w: stored revision %q, ledger revision %q", ErrConcurrentModification, current, s.revision)
	}

	return fn()
}

// persistRoster writes next only if storage still holds the revision this
// ledger last saw, then replaces the in-memory roster. Caller holds s.mu.
func (s *admissionService) persistRoster(ctx context.Context, next []models.StudentRecord) error {
	revision, err := s.store.SaveRoster(ctx, next, s.revision)
	if errors.Is(err, repository.ErrRevisionConflict) {
		s.outOfSync = true
		s.logger.Warn().Err(err).Msg("roster changed in storage during write, ledger marked out of sync")
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	if err != nil {
		return err
	}

	s.roster = next
	s.revision = revision
	observability.LedgerRosterSize().Set(float64(len(next)))
	return nil
}

func (s *admissionService) admissionCandidate(req dto.AdmitRequest) (models.StudentRecord, error) {
	req.Name = models.NormalizeName(req.Name)
	req.Stream = strings.ToUpper(strings.TrimSpace(req.Stream))
	req.SecondLanguage = strings.ToUpper(strings.TrimSpace(req.SecondLanguage))
	req.Caste = strings.ToUpper(strings.TrimSpace(req.Caste))
	req.AdmissionStatus = strings.ToUpper(strings.TrimSpace(req.AdmissionStatus))

	if req.Name == "" {
		return models.StudentRecord{}, &ValidationError{Field: "name", Reason: "is required", Err: ErrEmptyName}
	}
	if err := s.validator.Struct(req); err != nil {
		return models.StudentRecord{}, newValidationError(err)
	}

	return models.StudentRecord{
		Name:            req.Name,
		Rank:            req.Rank,
		Stream:          models.Stream(req.Stream),
		SecondLanguage:  models.SecondLanguage(req.SecondLanguage),
		Caste:           models.Caste(req.Caste),
		AdmissionStatus: models.AdmissionStatus(req.AdmissionStatus),
	}, nil
}

func (s *admissionService) findByName(name string) (models.StudentRecord, bool) {
	for _, record := range s.roster {
		if strings.EqualFold(strings.TrimSpace(record.Name), name) {
			return record, true
		}
	}
	return models.StudentRecord{}, false
}

// findTriple returns the first matching index and the number of matches.
func (s *admissionService) findTriple(name string, stream models.Stream, rank int) (int, int) {
	first, matches := -1, 0
	for i, record := range s.roster {
		if record.Matches(name, stream, rank) {
			if first < 0 {
				first = i
			}
			matches++
		}
	}
	return first, matches
}

func (s *admissionService) sanitizeReason(reason string) string {
	clean := s.sanitizer.Sanitize(reason)
	return strings.TrimSpace(html.UnescapeString(clean))
}

func (s *admissionService) snapshot() []models.StudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StudentRecord{}, s.roster...)
}

func (s *admissionService) publish(ctx context.Context, event dto.LedgerEvent) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	s.events.Publish(ctx, event)
}

func (s *admissionService) finishSpan(span trace.Span, operation string, err error) {
	observability.LedgerOperations().WithLabelValues(operation, operationOutcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+"_failed")
	}
}

func duplicateNames(roster []models.StudentRecord) []string {
	seen := make(map[string]int, len(roster))
	var dupes []string
	for _, record := range roster {
		key := models.NormalizeName(record.Name)
		seen[key]++
		if seen[key] == 2 {
			dupes = append(dupes, key)
		}
	}
	return dupes
}
