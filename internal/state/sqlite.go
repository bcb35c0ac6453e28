package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BCCDC-PHL/qc-collector/internal/model"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

// Invocation is one row of the invocation journal.
type Invocation struct {
	UUID          string
	InProgress    bool
	Success       *bool
	NewRuns       *int
	FailureReason *string
}

func (i Invocation) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("uuid: %q, in_progress: %t", i.UUID, i.InProgress))
	if i.Success != nil {
		sb.WriteString(fmt.Sprintf(", success: %t", *i.Success))
	} else {
		sb.WriteString(", success: nil")
	}
	if i.NewRuns != nil {
		sb.WriteString(fmt.Sprintf(", new_runs: %d", *i.NewRuns))
	} else {
		sb.WriteString(", new_runs: nil")
	}
	if i.FailureReason != nil {
		sb.WriteString(fmt.Sprintf(", failure_reason: %q", *i.FailureReason))
	} else {
		sb.WriteString(", failure_reason: nil")
	}
	return sb.String()
}

// SQLStore keeps Known and the invocation journal in a sqlite database.
type SQLStore struct {
	db *sql.DB
}

func OpenSQLStore(ctx context.Context, dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection serializes the invocation and keeps transactions simple
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`CREATE TABLE IF NOT EXISTS known_runs (
			run_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			in_progress BOOLEAN NOT NULL,
			success BOOLEAN DEFAULT NULL,
			new_runs INTEGER DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing database: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Load(ctx context.Context) (Known, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM known_runs`)
	if err != nil {
		return Known{}, fmt.Errorf("%w: executing sql query failed: %w", model.ErrCorruptState, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Known{}, fmt.Errorf("%w: scanning row failed: %w", model.ErrCorruptState, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Known{}, fmt.Errorf("%w: reading rows failed: %w", model.ErrCorruptState, err)
	}
	return NewKnown(ids...), nil
}

// Save replaces the stored set with known in one transaction.
func (s *SQLStore) Save(ctx context.Context, known Known) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrStatePersistence, err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM known_runs`); err != nil {
		return fmt.Errorf("%w: executing sql delete failed: %w", model.ErrStatePersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO known_runs (run_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("%w: preparing sql insert failed: %w", model.ErrStatePersistence, err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, id := range known.IDs() {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("%w: executing sql insert failed: %w", model.ErrStatePersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction failed: %w", model.ErrStatePersistence, err)
	}
	return nil
}

// Start records that an invocation identified by 'uuid' is in progress.
// If it has already finished ErrAlreadyFinished is returned.
func (s *SQLStore) Start(ctx context.Context, uuid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM invocations WHERE uuid=?`, uuid,
	).Scan(&inProgress)
	switch {
	case err == nil && inProgress:
		return nil
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invocations (uuid, in_progress) VALUES (?,?)`, uuid, true,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// FinishOK stores that the invocation succeeded and reported newRuns runs.
func (s *SQLStore) FinishOK(ctx context.Context, uuid string, newRuns int) error {
	return s.finish(ctx, uuid,
		`UPDATE invocations SET in_progress = false, success = true, new_runs = ? WHERE uuid = ?`,
		newRuns, uuid,
	)
}

// FinishErr stores that the invocation failed and why.
func (s *SQLStore) FinishErr(ctx context.Context, uuid, reason string) error {
	return s.finish(ctx, uuid,
		`UPDATE invocations SET in_progress = false, success = false, failure_reason = ? WHERE uuid = ?`,
		reason, uuid,
	)
}

func (s *SQLStore) finish(ctx context.Context, uuid, update string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM invocations WHERE uuid=?`, uuid,
	).Scan(&inProgress)
	switch {
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Invocation returns the journal entry identified by 'uuid' or ErrNotFound.
func (s *SQLStore) Invocation(ctx context.Context, uuid string) (Invocation, error) {
	var inv Invocation
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, in_progress, success, new_runs, failure_reason FROM invocations WHERE uuid=?`, uuid,
	).Scan(
		&inv.UUID,
		&inv.InProgress,
		&inv.Success,
		&inv.NewRuns,
		&inv.FailureReason,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Invocation{}, ErrNotFound
	case err != nil:
		return Invocation{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return inv, nil
}

func rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "calling `tx.Rollback()` failed", "error", err)
	}
}
