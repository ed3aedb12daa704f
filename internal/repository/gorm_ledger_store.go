package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

const (
	ledgerRevisionID = 1
	rosterBatchSize  = 200
)

type gormLedgerStore struct {
	db          *gorm.DB
	strictDates bool
}

// NewGormLedgerStore constructs a ledger store over any gorm dialect.
func NewGormLedgerStore(db *gorm.DB, strictDates bool) LedgerStore {
	return &gormLedgerStore{db: db, strictDates: strictDates}
}

// MigrateLedger creates the ledger tables and seeds the revision counter.
func MigrateLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.RosterRow{}, &models.TcArchiveRow{}, &models.LedgerRevision{}); err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.LedgerRevision{ID: ledgerRevisionID}).Error
}

func (s *gormLedgerStore) LoadRoster(ctx context.Context) ([]models.StudentRecord, error) {
	var rows []models.RosterRow
	if err := s.db.WithContext(ctx).Order("position ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, &StorageReadError{Table: TableRoster, Err: err}
	}

	records := make([]models.StudentRecord, 0, len(rows))
	for i, row := range rows {
		record := row.Record()
		if err := record.Validate(s.strictDates); err != nil {
			return nil, &StorageReadError{Table: TableRoster, Line: i + 1, Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *gormLedgerStore) SaveRoster(ctx context.Context, records []models.StudentRecord, expectedRevision string) (string, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claiming the revision first takes the row lock, so a writer that
		// committed since expectedRevision was read makes this one fail.
		revision, err := claimRevision(tx, expectedRevision)
		if err != nil {
			return err
		}
		next = revision

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.RosterRow{}).Error; err != nil {
			return err
		}

		if len(records) > 0 {
			rows := make([]models.RosterRow, 0, len(records))
			for i, record := range records {
				rows = append(rows, models.NewRosterRow(i, record))
			}
			if err := tx.CreateInBatches(&rows, rosterBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrRevisionConflict) {
		return "", err
	}
	if err != nil {
		return "", &StorageWriteError{Table: TableRoster, Err: err}
	}
	return strconv.FormatInt(next, 10), nil
}

func (s *gormLedgerStore) LoadTcArchive(ctx context.Context) ([]models.TcRecord, error) {
	var rows []models.TcArchiveRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, &StorageReadError{Table: TableTcArchive, Err: err}
	}

	records := make([]models.TcRecord, 0, len(rows))
	for i, row := range rows {
		record := row.Record()
		if err := record.Validate(s.strictDates); err != nil {
			return nil, &StorageReadError{Table: TableTcArchive, Line: i + 1, Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *gormLedgerStore) AppendTcRecord(ctx context.Context, record models.TcRecord) error {
	row := models.NewTcArchiveRow(record)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &StorageWriteError{Table: TableTcArchive, Err: err}
	}
	return nil
}

func (s *gormLedgerStore) RosterRevision(ctx context.Context) (string, error) {
	var revision models.LedgerRevision
	result := s.db.WithContext(ctx).Where("id = ?", ledgerRevisionID).Limit(1).Find(&revision)
	if result.Error != nil {
		return "", &StorageReadError{Table: TableRoster, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return "0", nil
	}
	return strconv.FormatInt(revision.Revision, 10), nil
}

// claimRevision bumps the counter from expected to expected+1 or reports a conflict.
func claimRevision(tx *gorm.DB, expected string) (int64, error) {
	current, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a revision of this store", ErrRevisionConflict, expected)
	}

	result := tx.Model(&models.LedgerRevision{}).
		Where("id = ? AND revision = ?", ledgerRevisionID, current).
		Update("revision", gorm.Expr("revision + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 1 {
		return current + 1, nil
	}

	if current == 0 {
		// Tables migrated before the counter row was seeded.
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.LedgerRevision{ID: ledgerRevisionID, Revision: 1})
		if created.Error != nil {
			return 0, created.Error
		}
		if created.RowsAffected == 1 {
			return 1, nil
		}
	}
	return 0, fmt.Errorf("%w: expected revision %d", ErrRevisionConflict, current)
}
