package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

// interleavedStore runs beforeSave once, just ahead of the first roster write
// it forwards, after the ledger's own revision check has already passed.
type interleavedStore struct {
	repository.LedgerStore
	once       sync.Once
	beforeSave func()
}

func (s *interleavedStore) SaveRoster(ctx context.Context, rows []models.StudentRecord, expectedRevision string) (string, error) {
	s.once.Do(s.beforeSave)
	return s.LedgerStore.SaveRoster(ctx, rows, expectedRevision)
}

// sharedStores returns two stores over the same backing data.
type sharedStores func(t *testing.T) (repository.LedgerStore, repository.LedgerStore)

func ledgerBackends() map[string]sharedStores {
	return map[string]sharedStores{
		"memory": func(t *testing.T) (repository.LedgerStore, repository.LedgerStore) {
			store := &memoryLedgerStore{}
			return store, store
		},
		"csv": func(t *testing.T) (repository.LedgerStore, repository.LedgerStore) {
			dir := t.TempDir()
			open := func() repository.LedgerStore {
				store, err := repository.NewCSVLedgerStore(repository.CSVLedgerStoreConfig{
					RosterPath:    filepath.Join(dir, "admission_data.csv"),
					TcArchivePath: filepath.Join(dir, "tc_records.csv"),
					StrictDates:   true,
				})
				require.NoError(t, err)
				return store
			}
			return open(), open()
		},
		"sqlite": func(t *testing.T) (repository.LedgerStore, repository.LedgerStore) {
			db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{})
			require.NoError(t, err)
			require.NoError(t, repository.MigrateLedger(db))
			t.Cleanup(func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			})
			return repository.NewGormLedgerStore(db, true), repository.NewGormLedgerStore(db, true)
		},
	}
}

func rosterNames(t *testing.T, store repository.LedgerStore) []string {
	t.Helper()
	roster, err := store.LoadRoster(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(roster))
	for _, record := range roster {
		names = append(names, record.Name)
	}
	return names
}

func TestAdmitLosingRaceToAnotherLedgerIsRejected(t *testing.T) {
	for name, open := range ledgerBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			storeA, storeB := open(t)

			other := newLedgerOver(t, storeB, nil)
			binu := anuRequest()
			binu.Name = "BINU"
			binu.Stream = "CS"

			var otherErr error
			racing := &interleavedStore{LedgerStore: storeA, beforeSave: func() {
				_, otherErr = other.Admit(ctx, binu)
			}}
			ledger := newLedgerOver(t, racing, nil)

			_, err := ledger.Admit(ctx, anuRequest())
			require.ErrorIs(t, err, ErrConcurrentModification)
			require.NoError(t, otherErr)
			require.True(t, ledger.Status(ctx).OutOfSync)
			require.Empty(t, ledger.ListRoster(ctx))
			require.Equal(t, []string{"BINU"}, rosterNames(t, storeB), "the acknowledged admission must survive")

			require.NoError(t, ledger.Load(ctx))
			_, err = ledger.Admit(ctx, anuRequest())
			require.NoError(t, err)
			require.Equal(t, []string{"BINU", "ANU"}, rosterNames(t, storeB))
		})
	}
}

func TestIssueTCLosingRaceToAnotherLedgerIsRejected(t *testing.T) {
	for name, open := range ledgerBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			storeA, storeB := open(t)

			other := newLedgerOver(t, storeB, nil)
			_, err := other.Admit(ctx, anuRequest())
			require.NoError(t, err)

			binu := anuRequest()
			binu.Name = "BINU"
			var otherErr error
			racing := &interleavedStore{LedgerStore: storeA, beforeSave: func() {
				_, otherErr = other.Admit(ctx, binu)
			}}
			ledger := newLedgerOver(t, racing, nil)

			_, err = ledger.IssueTC(ctx, dto.IssueTCRequest{Name: "ANU", Stream: "BIO", Rank: 3})
			require.ErrorIs(t, err, ErrConcurrentModification)
			require.NoError(t, otherErr)
			require.Equal(t, []string{"ANU", "BINU"}, rosterNames(t, storeB))

			archive, err := storeB.LoadTcArchive(ctx)
			require.NoError(t, err)
			require.Empty(t, archive, "no tc record may be archived for a rejected withdrawal")
		})
	}
}
