package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

const (
	lockRetryDelay  = 10 * time.Millisecond
	defaultLockWait = 5 * time.Second
)

// errLockBusy reports a table lock that stayed held for the whole wait.
var errLockBusy = errors.New("table is locked by another writer")

// CSVLedgerStoreConfig locates the delimited files backing the ledger.
type CSVLedgerStoreConfig struct {
	RosterPath    string
	TcArchivePath string
	StrictDates   bool
	// LockWait bounds how long a write waits for another writer's table lock.
	LockWait time.Duration
}

// csvLedgerStore serialises writers through an advisory lock file next to each
// table, so separate processes sharing the files exclude each other too.
type csvLedgerStore struct {
	rosterPath    string
	tcArchivePath string
	strictDates   bool
	lockWait      time.Duration
}

// NewCSVLedgerStore constructs a flat-file ledger store.
func NewCSVLedgerStore(cfg CSVLedgerStoreConfig) (LedgerStore, error) {
	if cfg.RosterPath == "" || cfg.TcArchivePath == "" {
		return nil, fmt.Errorf("csv ledger store requires roster and tc archive paths")
	}
	lockWait := cfg.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &csvLedgerStore{
		rosterPath:    cfg.RosterPath,
		tcArchivePath: cfg.TcArchivePath,
		strictDates:   cfg.StrictDates,
		lockWait:      lockWait,
	}, nil
}

func (s *csvLedgerStore) LoadRoster(ctx context.Context) ([]models.StudentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readOptional(s.rosterPath)
	if err != nil {
		return nil, &StorageReadError{Table: TableRoster, Err: err}
	}
	if data == nil {
		return []models.StudentRecord{}, nil
	}
	return DecodeRoster(bytes.NewReader(data), s.strictDates)
}

func (s *csvLedgerStore) SaveRoster(ctx context.Context, rows []models.StudentRecord, expectedRevision string) (string, error) {
	var encoded bytes.Buffer
	if err := EncodeRoster(&encoded, rows); err != nil {
		return "", &StorageWriteError{Table: TableRoster, Err: err}
	}

	var revision string
	err := s.withTableLock(ctx, s.rosterPath, func() error {
		current, err := readOptional(s.rosterPath)
		if err != nil {
			return err
		}
		if stored := fileRevision(current); stored != expectedRevision {
			return fmt.Errorf("%w: stored %q, expected %q", ErrRevisionConflict, stored, expectedRevision)
		}

		if err := writeFileAtomic(s.rosterPath, encoded.Bytes()); err != nil {
			return err
		}
		revision = fileRevision(encoded.Bytes())
		return nil
	})
	if errors.Is(err, ErrRevisionConflict) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if err != nil {
		return "", &StorageWriteError{Table: TableRoster, Err: err}
	}
	return revision, nil
}

func (s *csvLedgerStore) LoadTcArchive(ctx context.Context) ([]models.TcRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readOptional(s.tcArchivePath)
	if err != nil {
		return nil, &StorageReadError{Table: TableTcArchive, Err: err}
	}
	if data == nil {
		return []models.TcRecord{}, nil
	}
	return DecodeTcArchive(bytes.NewReader(data), s.strictDates)
}

func (s *csvLedgerStore) AppendTcRecord(ctx context.Context, record models.TcRecord) error {
	var readErr error
	err := s.withTableLock(ctx, s.tcArchivePath, func() error {
		existing, err := s.LoadTcArchive(ctx)
		if err != nil {
			readErr = err
			return err
		}

		var encoded bytes.Buffer
		if err := EncodeTcArchive(&encoded, append(existing, record)); err != nil {
			return err
		}
		return writeFileAtomic(s.tcArchivePath, encoded.Bytes())
	})
	if readErr != nil {
		return readErr
	}
	if err != nil {
		return &StorageWriteError{Table: TableTcArchive, Err: err}
	}
	return nil
}

func (s *csvLedgerStore) RosterRevision(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := readOptional(s.rosterPath)
	if err != nil {
		return "", &StorageReadError{Table: TableRoster, Err: err}
	}
	return fileRevision(data), nil
}

// withTableLock runs fn while holding the advisory lock of the table at path.
func (s *csvLedgerStore) withTableLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return errLockBusy
		}
		return err
	}
	if !locked {
		return errLockBusy
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

// fileRevision fingerprints stored roster bytes; a missing file has revision "".
func fileRevision(data []byte) string {
	if data == nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// readOptional returns nil data when the file does not exist.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// writeFileAtomic writes data into a temp file next to path and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
