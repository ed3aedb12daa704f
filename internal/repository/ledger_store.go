package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

// Table names used in storage errors.
const (
	TableRoster    = "roster"
	TableTcArchive = "tc_archive"
)

// ErrRevisionConflict reports a roster write whose expected revision no longer
// matches storage. Nothing is written when it is returned.
var ErrRevisionConflict = errors.New("stored roster revision changed")

// LedgerStore persists the roster and the transfer certificate archive as whole tables.
type LedgerStore interface {
	LoadRoster(ctx context.Context) ([]models.StudentRecord, error)
	// SaveRoster replaces the roster only if the stored revision still equals
	// expectedRevision, checked atomically with the write, and returns the new revision.
	SaveRoster(ctx context.Context, rows []models.StudentRecord, expectedRevision string) (string, error)
	LoadTcArchive(ctx context.Context) ([]models.TcRecord, error)
	AppendTcRecord(ctx context.Context, record models.TcRecord) error
	// RosterRevision returns a token that changes whenever the stored roster changes.
	RosterRevision(ctx context.Context) (string, error)
}

// StorageReadError reports malformed or unreadable stored data.
type StorageReadError struct {
	Table string
	Line  int
	Err   error
}

func (e *StorageReadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("read %s: line %d: %v", e.Table, e.Line, e.Err)
	}
	return fmt.Sprintf("read %s: %v", e.Table, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// StorageWriteError reports a failed write to the backing medium.
type StorageWriteError struct {
	Table string
	Err   error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Table, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }
