package dto

import (
	"time"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

// AdmitRequest is the admission form payload.
type AdmitRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Rank            int    `json:"rank" validate:"required,min=1"`
	Stream          string `json:"stream" validate:"required,oneof=BIO CS HUM COM"`
	SecondLanguage  string `json:"second_language" validate:"required,oneof=MAL HIN SKT"`
	Caste           string `json:"caste" validate:"required,oneof=GEN ETB MUSLIM SC LSA OBH DV VK KN KU ST OBCHRISTIAN"`
	AdmissionStatus string `json:"admission_status" validate:"required,oneof=PERMANENT TEMPORARY"`
}

// IssueTCRequest identifies the student leaving and the optional reason.
type IssueTCRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Stream string `json:"stream" validate:"required,oneof=BIO CS HUM COM"`
	Rank   int    `json:"rank" validate:"required,min=1"`
	Reason string `json:"reason" validate:"max=500"`
}

// RosterListResponse wraps a roster listing.
type RosterListResponse struct {
	Items []models.StudentRecord `json:"items"`
	Total int                    `json:"total"`
}

// NameCheckResponse reports whether a name is already on the roster.
type NameCheckResponse struct {
	Name     string                `json:"name"`
	Taken    bool                  `json:"taken"`
	Existing *models.StudentRecord `json:"existing,omitempty"`
}

// TcArchiveListResponse wraps an archive listing.
type TcArchiveListResponse struct {
	Items []models.TcRecord `json:"items"`
	Total int               `json:"total"`
}

// CountEntry is one bucket of a categorical tally.
type CountEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldAggregateResponse is a tally of the roster by one field.
type FieldAggregateResponse struct {
	Field  models.Field `json:"field"`
	Total  int          `json:"total"`
	Counts []CountEntry `json:"counts"`
}

// CrossTabCell is one (row, column) combination in long form.
type CrossTabCell struct {
	Row    string `json:"row"`
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// CrossTabResponse is a two-dimensional count pivot over the roster.
type CrossTabResponse struct {
	RowField    models.Field   `json:"row_field"`
	ColumnField models.Field   `json:"column_field"`
	Rows        []string       `json:"rows"`
	Columns     []string       `json:"columns"`
	Counts      [][]int        `json:"counts"`
	Cells       []CrossTabCell `json:"cells"`
}

// Count returns the tally for a combination, zero when it was never observed.
func (c CrossTabResponse) Count(row, column string) int {
	for i, r := range c.Rows {
		if r != row {
			continue
		}
		for j, col := range c.Columns {
			if col == column {
				return c.Counts[i][j]
			}
		}
	}
	return 0
}

// DateStreamCount is the number of admissions to a stream on a date.
type DateStreamCount struct {
	Date   string        `json:"date"`
	Stream models.Stream `json:"stream"`
	Count  int           `json:"count"`
}

// DailyTotal is the number of admissions on a date.
type DailyTotal struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
}

// StreamViewResponse lists one stream's students by rank with headline figures.
type StreamViewResponse struct {
	Stream    models.Stream          `json:"stream"`
	Students  []models.StudentRecord `json:"students"`
	Total     int                    `json:"total"`
	Permanent int                    `json:"permanent"`
	Temporary int                    `json:"temporary"`
	Languages []CountEntry           `json:"languages"`
}

// LedgerSummaryResponse is the dashboard overview.
type LedgerSummaryResponse struct {
	SchoolName    string       `json:"school_name"`
	AdmissionYear int          `json:"admission_year"`
	RosterSize    int          `json:"roster_size"`
	ArchiveSize   int          `json:"archive_size"`
	PendingTC     int          `json:"pending_tc"`
	ByStream      []CountEntry `json:"by_stream"`
	ByStatus      []CountEntry `json:"by_status"`
	ByCaste       []CountEntry `json:"by_caste"`
	ByLanguage    []CountEntry `json:"by_language"`
	GeneratedAt   time.Time    `json:"generated_at"`
	CacheHit      bool         `json:"cache_hit"`
}

// LedgerStatus reports whether the in-memory roster is in step with storage.
type LedgerStatus struct {
	Loaded     bool   `json:"loaded"`
	RosterSize int    `json:"roster_size"`
	PendingTC  int    `json:"pending_tc"`
	Revision   string `json:"revision"`
	OutOfSync  bool   `json:"out_of_sync"`
}

// ImportRowError describes a rejected import row.
type ImportRowError struct {
	Line  int    `json:"line"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ImportResult summarises a bulk admission import.
type ImportResult struct {
	Admitted []models.StudentRecord `json:"admitted"`
	Rejected []ImportRowError       `json:"rejected"`
}

// Ledger event types.
const (
	EventStudentAdmitted = "student.admitted"
	EventTCIssued        = "tc.issued"
	EventRosterReloaded  = "roster.reloaded"
)

// LedgerEvent announces a roster change so dashboards can refresh their aggregates.
type LedgerEvent struct {
	Type           string                `json:"type"`
	Student        *models.StudentRecord `json:"student,omitempty"`
	TC             *models.TcRecord      `json:"tc,omitempty"`
	ArchivePending bool                  `json:"archive_pending,omitempty"`
	RosterSize     int                   `json:"roster_size"`
	OccurredAt     time.Time             `json:"occurred_at"`
}
