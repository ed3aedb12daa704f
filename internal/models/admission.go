package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk and wire format of every ledger date.
const DateLayout = "2006-01-02"

// Stream enumerates the higher secondary streams offered.
type Stream string

const (
	StreamBIO Stream = "BIO"
	StreamCS  Stream = "CS"
	StreamHUM Stream = "HUM"
	StreamCOM Stream = "COM"
)

// SecondLanguage enumerates the second language options.
type SecondLanguage string

const (
	LanguageMAL SecondLanguage = "MAL"
	LanguageHIN SecondLanguage = "HIN"
	LanguageSKT SecondLanguage = "SKT"
)

// Caste enumerates the reservation categories recorded at admission.
type Caste string

const (
	CasteGEN         Caste = "GEN"
	CasteETB         Caste = "ETB"
	CasteMUSLIM      Caste = "MUSLIM"
	CasteSC          Caste = "SC"
	CasteLSA         Caste = "LSA"
	CasteOBH         Caste = "OBH"
	CasteDV          Caste = "DV"
	CasteVK          Caste = "VK"
	CasteKN          Caste = "KN"
	CasteKU          Caste = "KU"
	CasteST          Caste = "ST"
	CasteOBCHRISTIAN Caste = "OBCHRISTIAN"
)

// AdmissionStatus captures whether an admission is final.
type AdmissionStatus string

const (
	StatusPermanent AdmissionStatus = "PERMANENT"
	StatusTemporary AdmissionStatus = "TEMPORARY"
)

// Canonical orderings used for display and pivots.
var (
	Streams         = []Stream{StreamBIO, StreamCS, StreamHUM, StreamCOM}
	SecondLanguages = []SecondLanguage{LanguageMAL, LanguageHIN, LanguageSKT}
	Castes          = []Caste{
		CasteGEN, CasteETB, CasteMUSLIM, CasteSC, CasteLSA, CasteOBH,
		CasteDV, CasteVK, CasteKN, CasteKU, CasteST, CasteOBCHRISTIAN,
	}
	AdmissionStatuses = []AdmissionStatus{StatusPermanent, StatusTemporary}
)

// Valid reports whether the stream belongs to the closed set.
func (s Stream) Valid() bool {
	for _, v := range Streams {
		if v == s {
			return true
		}
	}
	return false
}

// Valid reports whether the language belongs to the closed set.
func (l SecondLanguage) Valid() bool {
	for _, v := range SecondLanguages {
		if v == l {
			return true
		}
	}
	return false
}

// Valid reports whether the caste belongs to the closed set.
func (c Caste) Valid() bool {
	for _, v := range Castes {
		if v == c {
			return true
		}
	}
	return false
}

// Valid reports whether the status belongs to the closed set.
func (s AdmissionStatus) Valid() bool {
	return s == StatusPermanent || s == StatusTemporary
}

// NormalizeName trims and upper-cases a student name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// StudentRecord is an active admission held in the roster.
type StudentRecord struct {
	Name            string          `json:"name"`
	Rank            int             `json:"rank"`
	Stream          Stream          `json:"stream"`
	SecondLanguage  SecondLanguage  `json:"second_language"`
	Caste           Caste           `json:"caste"`
	AdmissionStatus AdmissionStatus `json:"admission_status"`
	DateOfAdmission string          `json:"date_of_admission"`
}

// Validate checks the record against the roster invariants. Dates are only
// checked when checkDates is set.
func (r StudentRecord) Validate(checkDates bool) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is empty")
	}
	if r.Rank < 1 {
		return fmt.Errorf("rank %d must be positive", r.Rank)
	}
	if !r.Stream.Valid() {
		return fmt.Errorf("unknown stream %q", r.Stream)
	}
	if !r.SecondLanguage.Valid() {
		return fmt.Errorf("unknown second language %q", r.SecondLanguage)
	}
	if !r.Caste.Valid() {
		return fmt.Errorf("unknown caste %q", r.Caste)
	}
	if !r.AdmissionStatus.Valid() {
		return fmt.Errorf("unknown admission status %q", r.AdmissionStatus)
	}
	if checkDates {
		if _, err := ParseDate(r.DateOfAdmission); err != nil {
			return fmt.Errorf("invalid date of admission: %w", err)
		}
	}
	return nil
}

// Matches reports whether the record is identified by the (name, stream, rank) triple.
func (r StudentRecord) Matches(name string, stream Stream, rank int) bool {
	return strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(name)) &&
		r.Stream == stream &&
		r.Rank == rank
}

// TcRecord is a withdrawn student kept in the append-only transfer certificate archive.
type TcRecord struct {
	StudentRecord
	TCDate   string `json:"tc_date"`
	TCReason string `json:"tc_reason,omitempty"`
}

// Validate checks the archived record, including the TC date when checkDates is set.
func (r TcRecord) Validate(checkDates bool) error {
	if err := r.StudentRecord.Validate(checkDates); err != nil {
		return err
	}
	if checkDates {
		if _, err := ParseDate(r.TCDate); err != nil {
			return fmt.Errorf("invalid tc date: %w", err)
		}
	}
	return nil
}

// FormatDate renders t as a ledger date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD ledger date.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}
