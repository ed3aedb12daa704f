package models

import "time"

// RosterRow is the SQL representation of a roster entry. Position keeps the
// roster's insertion order across whole-table rewrites.
type RosterRow struct {
	ID              uint   `gorm:"primaryKey"`
	Position        int    `gorm:"not null;index"`
	Name            string `gorm:"size:255;not null"`
	Rank            int    `gorm:"not null"`
	Stream          string `gorm:"size:16;not null"`
	SecondLanguage  string `gorm:"size:16;not null"`
	Caste           string `gorm:"size:32;not null"`
	AdmissionStatus string `gorm:"size:16;not null"`
	DateOfAdmission string `gorm:"size:10;not null"`
}

// TableName pins the roster table name.
func (RosterRow) TableName() string { return "roster" }

// TcArchiveRow is the SQL representation of an archived transfer certificate.
type TcArchiveRow struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"size:255;not null"`
	Rank            int    `gorm:"not null"`
	Stream          string `gorm:"size:16;not null"`
	SecondLanguage  string `gorm:"size:16;not null"`
	Caste           string `gorm:"size:32;not null"`
	AdmissionStatus string `gorm:"size:16;not null"`
	DateOfAdmission string `gorm:"size:10;not null"`
	TCDate          string `gorm:"column:tc_date;size:10;not null"`
	TCReason        string `gorm:"column:tc_reason;type:text"`
	CreatedAt       time.Time
}

// TableName pins the archive table name.
func (TcArchiveRow) TableName() string { return "tc_archive" }

// LedgerRevision holds the roster revision counter bumped on every roster rewrite.
type LedgerRevision struct {
	ID        uint  `gorm:"primaryKey"`
	Revision  int64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName pins the revision table name.
func (LedgerRevision) TableName() string { return "ledger_revision" }

// NewRosterRow converts a record into its SQL row.
func NewRosterRow(position int, r StudentRecord) RosterRow {
	return RosterRow{
		Position:        position,
		Name:            r.Name,
		Rank:            r.Rank,
		Stream:          string(r.Stream),
		SecondLanguage:  string(r.SecondLanguage),
		Caste:           string(r.Caste),
		AdmissionStatus: string(r.AdmissionStatus),
		DateOfAdmission: r.DateOfAdmission,
	}
}

// Record converts the row back into a StudentRecord.
func (r RosterRow) Record() StudentRecord {
	return StudentRecord{
		Name:            r.Name,
		Rank:            r.Rank,
		Stream:          Stream(r.Stream),
		SecondLanguage:  SecondLanguage(r.SecondLanguage),
		Caste:           Caste(r.Caste),
		AdmissionStatus: AdmissionStatus(r.AdmissionStatus),
		DateOfAdmission: r.DateOfAdmission,
	}
}

// NewTcArchiveRow converts an archived record into its SQL row.
func NewTcArchiveRow(r TcRecord) TcArchiveRow {
	return TcArchiveRow{
		Name:            r.Name,
		Rank:            r.Rank,
		Stream:          string(r.Stream),
		SecondLanguage:  string(r.SecondLanguage),
		Caste:           string(r.Caste),
		AdmissionStatus: string(r.AdmissionStatus),
		DateOfAdmission: r.DateOfAdmission,
		TCDate:          r.TCDate,
		TCReason:        r.TCReason,
	}
}

// Record converts the row back into a TcRecord.
func (r TcArchiveRow) Record() TcRecord {
	return TcRecord{
		StudentRecord: StudentRecord{
			Name:            r.Name,
			Rank:            r.Rank,
			Stream:          Stream(r.Stream),
			SecondLanguage:  SecondLanguage(r.SecondLanguage),
			Caste:           Caste(r.Caste),
			AdmissionStatus: AdmissionStatus(r.AdmissionStatus),
			DateOfAdmission: r.DateOfAdmission,
		},
		TCDate:   r.TCDate,
		TCReason: r.TCReason,
	}
}
